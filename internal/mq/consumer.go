package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает сообщение. Ошибка — nack (в DLQ или обратно в очередь).
type Handler func(ctx context.Context, delivery *Delivery) error

// Delivery — разобранное сообщение очереди.
type Delivery struct {
	Message Message
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — очередь (назначения пользователя или tasks.completed).
	Queue Queue

	// Handler вызывается для каждого сообщения по очереди.
	Handler Handler

	// Prefetch — сколько неподтверждённых сообщений держит канал (default: 1).
	Prefetch int

	// Requeue — при ошибке обработчика вернуть сообщение в очередь.
	// false — сообщение уходит в DLQ очереди.
	Requeue bool
}

// Consumer читает очередь на собственном канале и переживает переподключения.
type Consumer struct {
	conn   *Connection
	logger *slog.Logger
	cfg    ConsumerConfig

	cancelFunc context.CancelFunc
}

// NewConsumer создаёт Consumer.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		conn:   conn,
		logger: logger.With("queue", cfg.Queue),
		cfg:    cfg,
	}
}

// Start потребляет сообщения до отмены ctx, Stop или закрытия соединения.
// После разрыва ждёт переподключения и подписывается заново.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel

	for {
		// Берём до подписки: переподключение во время run не теряется
		reconnected := c.conn.Reconnected()

		err := c.run(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.Done():
			return ErrNotConnected
		case <-reconnected:
			c.logger.Info("consumer resubscribing")
		}
	}
}

// Stop останавливает consumer.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

// run подписывается на очередь и обрабатывает доставки, пока канал жив.
func (c *Consumer) run(ctx context.Context) error {
	ch, err := c.conn.OpenChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := ch.Qos(c.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(
		string(c.cfg.Queue), // queue
		"",                  // consumer tag (auto-generated)
		false,               // auto-ack
		false,               // exclusive
		false,               // no-local
		false,               // no-wait
		nil,                 // args
	)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	c.logger.Info("consumer started", "prefetch", c.cfg.Prefetch)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			c.handle(ctx, raw)
		}
	}
}

// handle разбирает сообщение, вызывает обработчик и подтверждает доставку.
// Неразбираемое сообщение сразу уходит в DLQ.
func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("malformed message", "error", err, "body", string(raw.Body))
		raw.Nack(false, false)
		return
	}

	logger := c.logger.With("message_id", msg.ID, "type", msg.Type)
	logger.Debug("message received")

	if err := c.cfg.Handler(ctx, &Delivery{Message: msg}); err != nil {
		logger.Error("handler failed", "error", err, "requeue", c.cfg.Requeue)
		raw.Nack(false, c.cfg.Requeue)
		return
	}
	if err := raw.Ack(false); err != nil {
		logger.Warn("failed to ack message", "error", err)
	}
}

// ParsePayload декодирует Message.Payload в T.
// После json.Unmarshal сообщения payload — map[string]any, поэтому он
// перекодируется через JSON.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	data, err := json.Marshal(msg.Payload)
	if err != nil {
		return result, fmt.Errorf("marshal payload: %w", err)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, fmt.Errorf("unmarshal payload: %w", err)
	}
	return result, nil
}
