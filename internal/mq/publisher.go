package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/shaiso/stepflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeRunRequested MessageType = "run.requested"
	MessageTypeStepFinished MessageType = "step.finished"
	MessageTypeRunFinished  MessageType = "run.finished"
)

// Message — конверт сообщения.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка (JSON).
	Payload json.RawMessage `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage создаёт сообщение с сериализованным payload.
func NewMessage(msgType MessageType, payload any) (*Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	return &Message{
		ID:        uuid.New().String(),
		Type:      msgType,
		Payload:   body,
		Timestamp: time.Now().UTC(),
	}, nil
}

// RunRequestedPayload — запрос на выполнение job.
type RunRequestedPayload struct {
	Job domain.JobSpec `json:"job"`

	// MaxParallelTasks — общий потолок tasks для этого run (опционально).
	MaxParallelTasks int `json:"max_parallel_tasks,omitempty"`
}

// StepFinishedPayload — шаг завершён.
type StepFinishedPayload struct {
	RunID   uuid.UUID         `json:"run_id"`
	JobName string            `json:"job_name"`
	Step    domain.StepResult `json:"step"`
}

// RunFinishedPayload — run завершён.
type RunFinishedPayload struct {
	RunID       uuid.UUID        `json:"run_id"`
	JobName     string           `json:"job_name"`
	Status      domain.RunStatus `json:"status"`
	Steps       int              `json:"steps"`
	Tasks       int              `json:"tasks"`
	FailedSteps []string         `json:"failed_steps,omitempty"`
	DurationMs  int64            `json:"duration_ms"`
}

// NewRunFinishedPayload собирает payload из итогового run.
func NewRunFinishedPayload(run *domain.Run) RunFinishedPayload {
	return RunFinishedPayload{
		RunID:       run.ID,
		JobName:     run.JobName,
		Status:      run.Status,
		Steps:       len(run.Steps),
		Tasks:       run.TaskCount(),
		FailedSteps: run.FailedSteps(),
		DurationMs:  run.Duration().Milliseconds(),
	}
}

// sendFunc отправляет AMQP сообщение.
type sendFunc func(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg amqp.Publishing) error

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	send   sendFunc
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	send := func(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg amqp.Publishing) error {
		return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
			return ch.PublishWithContext(ctx, string(exchange), string(routingKey), false, false, msg)
		})
	}

	return &Publisher{send: send, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = p.send(ctx, exchange, routingKey, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
		MessageId:    msg.ID,
		Type:         string(msg.Type),
		Timestamp:    msg.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
	}

	p.logger.Debug("published message",
		"exchange", exchange,
		"routing_key", routingKey,
		"message_id", msg.ID,
		"type", msg.Type,
	)

	return nil
}

// publishJSON оборачивает payload в Message и публикует его.
func (p *Publisher) publishJSON(ctx context.Context, exchange Exchange, routingKey RoutingKey, msgType MessageType, payload any) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	return p.Publish(ctx, exchange, routingKey, msg)
}

// PublishRunRequested ставит job в очередь на выполнение.
// Потребитель: Orchestrator.
func (p *Publisher) PublishRunRequested(ctx context.Context, payload RunRequestedPayload) error {
	return p.publishJSON(ctx, ExchangeRuns, RoutingKeyRequested, MessageTypeRunRequested, payload)
}

// PublishStepFinished публикует результат шага.
func (p *Publisher) PublishStepFinished(ctx context.Context, runID uuid.UUID, jobName string, result domain.StepResult) error {
	payload := StepFinishedPayload{RunID: runID, JobName: jobName, Step: result}
	return p.publishJSON(ctx, ExchangeResults, RoutingKeyStepFinished, MessageTypeStepFinished, payload)
}

// PublishRunFinished публикует итог run.
func (p *Publisher) PublishRunFinished(ctx context.Context, run *domain.Run) error {
	return p.publishJSON(ctx, ExchangeResults, RoutingKeyRunFinished, MessageTypeRunFinished, NewRunFinishedPayload(run))
}

// PublisherSink публикует run.finished как sink результатов.
type PublisherSink struct {
	Publisher *Publisher
}

// Save реализует scheduler.ResultSink.
func (s PublisherSink) Save(ctx context.Context, run *domain.Run) error {
	return s.Publisher.PublishRunFinished(ctx, run)
}
