// Package repo содержит Postgres-хранилища.
//
// Включает:
//   - db.go             — пул соединений pgx и схема
//   - entry_repo.go     — entries координационного сервиса (LISTEN/NOTIFY для ожидания)
//   - invocation_repo.go — журнал invocation
package repo
