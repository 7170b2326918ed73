// Package api содержит HTTP API хоста playbook.
//
// Структура:
//   - handler.go            — Handler с DI (реестр, история invocations, publisher, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - invocation_handler.go — обработчики для /entries и /invocations
//   - task_handler.go       — обработчики для /tasks
//
// API монтируется командой serve рядом с /healthz и /metrics.
package api
