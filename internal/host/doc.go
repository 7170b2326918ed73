// Package host запускает playbook на стороне пользователя.
//
// Host загружает протоколы документа, регистрирует точки входа
// <protocol>:<role> и для каждого назначения task запускает
// invocations всех ролей пользователя.
//
// Режимы:
//
//   - service: назначения приходят из очереди playbook.tasks.<user_id>
//     (RabbitMQ), entries хранятся в Postgres, переменные передаются
//     через обменник playbook.variables; итог публикуется в tasks.completed
//   - local: RunLocal выполняет всех участников в одном процессе,
//     entries в SQLite или в памяти, переменные в памяти
//
// Рассылка назначения участникам — StartTask.
package host
