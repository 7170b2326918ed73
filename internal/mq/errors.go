package mq

import "errors"

// Ошибки MQ.
var (
	// ErrNotConnected — соединение с RabbitMQ не установлено.
	ErrNotConnected = errors.New("no channel available")

	// ErrDeliveriesClosed — канал доставки закрылся до получения сообщения.
	ErrDeliveriesClosed = errors.New("deliveries channel closed")
)
