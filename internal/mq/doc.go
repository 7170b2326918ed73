// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//   - variables.go  — coord.VariableBus поверх очередей переменных
//
// Типы сообщений:
//   - task.assigned   — task назначен пользователю
//   - task.completed  — пользователь закончил свои invocation task
//   - variable        — переменная от одного участника другому
//
// Exchanges:
//   - playbook.tasks      — назначения и завершения tasks
//   - playbook.variables  — переменные
//   - playbook.dlq        — dead letter queue
package mq
