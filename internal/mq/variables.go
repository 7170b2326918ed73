package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/playbook/internal/coord"
)

// variableNamespace — пространство имён для UUID очередей переменных.
var variableNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("playbook/variables"))

// VariablePayload — payload сообщения с переменной.
type VariablePayload struct {
	Addr coord.VariableAddr `json:"addr"`
	Data []byte             `json:"data"`
}

// VariableQueue возвращает имя очереди для адреса переменной.
// Имя детерминировано: отправитель и получатель вычисляют его независимо.
func VariableQueue(addr coord.VariableAddr) Queue {
	key, _ := json.Marshal(addr)
	return Queue("playbook.var." + uuid.NewSHA1(variableNamespace, key).String())
}

// VariableBus — coord.VariableBus поверх RabbitMQ.
//
// Каждому адресу соответствует своя durable-очередь в обменнике
// playbook.variables. Отправка кладёт сообщение в очередь,
// получение забирает одно сообщение и удаляет опустевшую очередь.
type VariableBus struct {
	conn      *Connection
	publisher *Publisher
	logger    *slog.Logger
}

// NewVariableBus создаёт VariableBus.
func NewVariableBus(conn *Connection, publisher *Publisher, logger *slog.Logger) *VariableBus {
	if logger == nil {
		logger = slog.Default()
	}
	return &VariableBus{conn: conn, publisher: publisher, logger: logger}
}

// Send публикует переменную в очередь адреса.
func (b *VariableBus) Send(ctx context.Context, addr coord.VariableAddr, payload []byte) error {
	queue := VariableQueue(addr)
	if err := b.declare(ctx, queue); err != nil {
		return err
	}

	return b.publisher.PublishJSON(ctx, ExchangeVariables, RoutingKey(queue), MessageTypeVariable,
		VariablePayload{Addr: addr, Data: payload})
}

// Recv ждёт одно сообщение в очереди адреса.
func (b *VariableBus) Recv(ctx context.Context, addr coord.VariableAddr) ([]byte, error) {
	queue := VariableQueue(addr)
	if err := b.declare(ctx, queue); err != nil {
		return nil, err
	}

	// Отдельный канал: Recv может ждать долго
	ch, err := b.conn.OpenChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "recv-" + uuid.New().String()
	deliveries, err := ch.Consume(
		string(queue), // queue
		tag,           // consumer tag
		false,         // auto-ack
		false,         // exclusive
		false,         // no-local
		false,         // no-wait
		nil,           // args
	)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", queue, err)
	}

	var raw amqp.Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-deliveries:
		if !ok {
			return nil, ErrDeliveriesClosed
		}
		raw = d
	}

	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		raw.Nack(false, false)
		return nil, fmt.Errorf("unmarshal message: %w", err)
	}
	payload, err := ParsePayload[VariablePayload](&msg)
	if err != nil {
		raw.Nack(false, false)
		return nil, err
	}

	if err := raw.Ack(false); err != nil {
		return nil, fmt.Errorf("ack: %w", err)
	}
	if err := ch.Cancel(tag, false); err != nil {
		b.logger.Warn("failed to cancel consumer", "queue", queue, "error", err)
	}
	// Очередь удаляется, только если в ней ничего не осталось
	if _, err := ch.QueueDelete(string(queue), false, true, false); err != nil {
		b.logger.Debug("variable queue kept", "queue", queue, "error", err)
	}

	return payload.Data, nil
}

// declare объявляет очередь адреса и привязывает её к обменнику.
func (b *VariableBus) declare(ctx context.Context, queue Queue) error {
	return b.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		if err := declareQueue(ch, queue, nil); err != nil {
			return err
		}
		return bindQueue(ch, queue, RoutingKey(queue), ExchangeVariables)
	})
}
