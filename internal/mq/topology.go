package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks     Exchange = "playbook.tasks"
	ExchangeVariables Exchange = "playbook.variables"
	ExchangeDLQ       Exchange = "playbook.dlq"
)

// Queues — имена общих очередей.
// Очереди пользователей и переменных создаются по требованию.
const (
	QueueTasksCompleted Queue = "playbook.tasks.completed"
	QueueDLQTasks       Queue = "playbook.dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyCompleted RoutingKey = "completed"
	RoutingKeyDLQTasks  RoutingKey = "tasks"
)

// UserQueue возвращает очередь назначений task пользователя.
func UserQueue(userID string) Queue {
	return Queue("playbook.tasks." + userID)
}

// AssignedKey возвращает routing key назначений для пользователя.
func AssignedKey(userID string) RoutingKey {
	return RoutingKey("assigned." + userID)
}

// SetupTopology объявляет обменники и общие очереди.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		queues := []struct {
			name Queue
			args amqp.Table
		}{
			// task.completed — события завершения, читает инициатор
			{QueueTasksCompleted, nil},

			// сама DLQ очередь
			{QueueDLQTasks, nil},
		}
		for _, q := range queues {
			if err := declareQueue(ch, q.name, q.args); err != nil {
				return err
			}
		}

		// 3. Привязываем queues к exchanges
		bindings := []struct {
			queue      Queue
			routingKey RoutingKey
			exchange   Exchange
		}{
			{QueueTasksCompleted, RoutingKeyCompleted, ExchangeTasks},
			{QueueDLQTasks, RoutingKeyDLQTasks, ExchangeDLQ},
		}
		for _, b := range bindings {
			if err := bindQueue(ch, b.queue, b.routingKey, b.exchange); err != nil {
				return err
			}
		}

		return nil
	})
}

// DeclareUserQueue объявляет очередь назначений пользователя.
// Необработанные назначения уходят в DLQ.
func DeclareUserQueue(ctx context.Context, conn *Connection, userID string) (Queue, error) {
	queue := UserQueue(userID)
	err := conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		args := amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQTasks),
		}
		if err := declareQueue(ch, queue, args); err != nil {
			return err
		}
		return bindQueue(ch, queue, AssignedKey(userID), ExchangeTasks)
	})
	return queue, err
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeVariables, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

func declareQueue(ch *amqp.Channel, name Queue, args amqp.Table) error {
	_, err := ch.QueueDeclare(
		string(name), // name
		true,         // durable
		false,        // delete when unused
		false,        // exclusive
		false,        // no-wait
		args,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

func bindQueue(ch *amqp.Channel, queue Queue, key RoutingKey, exchange Exchange) error {
	err := ch.QueueBind(
		string(queue),    // queue name
		string(key),      // routing key
		string(exchange), // exchange
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("bind queue %s to %s: %w", queue, exchange, err)
	}
	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Playbook RabbitMQ Topology:

    playbook.tasks (direct)
    ├── playbook.tasks.<user_id> [routing: assigned.<user_id>]
    │       Consumer: playbook serve (host пользователя)
    │       DLQ: playbook.dlq.tasks
    └── playbook.tasks.completed [routing: completed]
            Consumer: инициатор task

    playbook.variables (direct)
    └── playbook.var.<sha1(task, name, sender, receiver)> [routing: = имя очереди]
            Consumer: recv_variable получателя

    playbook.dlq (direct)
    └── playbook.dlq.tasks [routing: tasks]
            Manual processing
  `
}
