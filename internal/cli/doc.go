// Package cli реализует команды утилиты playbook.
//
// # Обзор
//
// Команды загружают настройки (internal/config), playbook-документ
// (internal/engine) и запускают роли через internal/host.
//
// # Ключевые компоненты
//
// ## App
//
// Глобальные флаги (--settings, --config, --user-id, --backend, --json)
// и логгер. Флаги перекрывают файл настроек и переменные окружения.
//
// ## Backend
//
// Подключения координационного сервиса:
//   - service: Postgres (entries, история invocations) и RabbitMQ
//   - local: SQLite (entries) и шина переменных в памяти
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
//
// ## Commands
//
//   - validate: разбор документа и список точек входа
//   - run PROTOCOL:ROLE: одна роль от имени пользователя
//   - serve: хост, принимающий назначения task из RabbitMQ
//   - task start PROTOCOL: рассылка назначения участникам
//   - local PROTOCOL: весь task в одном процессе
package cli
