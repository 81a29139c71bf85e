// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — соединение с RabbitMQ (reconnect с backoff, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений и PublisherSink для результатов
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - run.requested — запрос на выполнение job (payload: JobSpec)
//   - step.finished — шаг run завершён (SUCCESS или FAILED)
//   - run.finished  — run завершён (COMPLETED или HALTED)
//
// Exchanges:
//   - stepflow.runs    — запросы на выполнение
//   - stepflow.results — результаты шагов и runs
//   - stepflow.dlq     — dead letter queue для неразборчивых запросов
package mq
