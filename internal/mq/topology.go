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
	ExchangeRuns    Exchange = "stepflow.runs"
	ExchangeResults Exchange = "stepflow.results"
	ExchangeDLQ     Exchange = "stepflow.dlq"
)

// Queues — имена очередей.
const (
	QueueRunsRequested Queue = "runs.requested"
	QueueResultsSteps  Queue = "results.steps"
	QueueResultsRuns   Queue = "results.runs"
	QueueDLQRuns       Queue = "dlq.runs"
)

// Routing keys.
const (
	RoutingKeyRequested    RoutingKey = "requested"
	RoutingKeyStepFinished RoutingKey = "step.finished"
	RoutingKeyRunFinished  RoutingKey = "run.finished"
	RoutingKeyDLQRuns      RoutingKey = "runs"
)

type exchangeDecl struct {
	name Exchange
	kind string
}

type queueDecl struct {
	name Queue
	args amqp.Table
}

type binding struct {
	queue      Queue
	routingKey RoutingKey
	exchange   Exchange
}

// topology возвращает exchanges, queues и bindings stepflow.
//
//	stepflow.runs (direct)
//	└── runs.requested [requested] → consumer: orchestrator, DLQ: dlq.runs
//	stepflow.results (topic)
//	├── results.steps [step.finished]
//	└── results.runs  [run.finished]
//	stepflow.dlq (direct)
//	└── dlq.runs [runs]
func topology() ([]exchangeDecl, []queueDecl, []binding) {
	exchanges := []exchangeDecl{
		{ExchangeRuns, "direct"},
		{ExchangeResults, "topic"},
		{ExchangeDLQ, "direct"},
	}

	queues := []queueDecl{
		// Запросы, которые не удалось разобрать, уходят в DLQ
		{QueueRunsRequested, amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQRuns),
		}},
		{QueueResultsSteps, nil},
		{QueueResultsRuns, nil},
		{QueueDLQRuns, nil},
	}

	bindings := []binding{
		{QueueRunsRequested, RoutingKeyRequested, ExchangeRuns},
		{QueueResultsSteps, RoutingKeyStepFinished, ExchangeResults},
		{QueueResultsRuns, RoutingKeyRunFinished, ExchangeResults},
		{QueueDLQRuns, RoutingKeyDLQRuns, ExchangeDLQ},
	}

	return exchanges, queues, bindings
}

// SetupTopology объявляет exchanges, queues и bindings.
func SetupTopology(ctx context.Context, conn *Connection) error {
	exchanges, queues, bindings := topology()

	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range exchanges {
			if err := ch.ExchangeDeclare(string(ex.name), ex.kind, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex.name, err)
			}
		}

		for _, q := range queues {
			if _, err := ch.QueueDeclare(string(q.name), true, false, false, false, q.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", q.name, err)
			}
		}

		for _, b := range bindings {
			if err := ch.QueueBind(string(b.queue), string(b.routingKey), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}

		return nil
	})
}
