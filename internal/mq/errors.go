package mq

import "errors"

// Ошибки mq.
var (
	// ErrNoChannel — нет открытого AMQP канала (соединение восстанавливается).
	ErrNoChannel = errors.New("no channel available")

	// ErrInvalidPayload — сообщение не удалось разобрать.
	// Такие сообщения не возвращаются в очередь, а уходят в DLQ.
	ErrInvalidPayload = errors.New("invalid payload")
)
