// Package coord описывает контракт координационного сервиса.
//
// Включает:
//   - client.go  — интерфейс Client и Session поверх хранилища entries и шины переменных
//   - memory.go  — in-memory реализации для тестов и локального запуска
//   - notify.go  — Notifier для ожидания изменений
//
// Production-реализации: repo.EntryRepo (Postgres), storage.EntryStore (SQLite),
// mq.VariableBus (RabbitMQ).
package coord
