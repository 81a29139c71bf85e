package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
	"github.com/shaiso/stepflow/internal/mq"
)

// handleRunRequested обрабатывает запрос из очереди runs.requested.
//
// Неверный job уходит в DLQ (ErrInvalidPayload). Остановка оркестратора
// и отмена ctx до завершения run возвращают сообщение в очередь.
// Упавший шаг и ошибки sink'ов сообщение не возвращают: повтор job —
// решение вызывающей стороны.
func (o *Orchestrator) handleRunRequested(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunRequestedPayload](msg)
	if err != nil {
		return err
	}

	job := payload.Job
	if err := engine.Validate(&job); err != nil {
		return fmt.Errorf("%w: %v", mq.ErrInvalidPayload, err)
	}

	o.logger.Info("run requested",
		"message_id", msg.ID,
		"job", job.Name,
		"steps", len(job.Steps),
	)

	// Сообщение пришло после отмены: job не запускаем
	if err := ctx.Err(); err != nil {
		return err
	}

	run, err := o.Submit(ctx, &job)
	if run == nil {
		if isJobError(err) {
			// Цикл в needs и т.п. — повтор не поможет
			return fmt.Errorf("%w: %v", mq.ErrInvalidPayload, err)
		}
		return err
	}

	if interrupted(ctx, run) {
		o.logger.Warn("run interrupted, requeueing request",
			"run_id", run.ID,
			"job", run.JobName,
			"steps_run", len(run.Steps),
		)
		return fmt.Errorf("run %s interrupted: %w", run.ID, ctx.Err())
	}

	o.logger.Info("run finished",
		"run_id", run.ID,
		"job", run.JobName,
		"status", run.Status,
		"duration", run.Duration(),
		"failed_steps", run.FailedSteps(),
	)

	return nil
}

// isJobError возвращает true для ошибок построения и валидации job.
func isJobError(err error) bool {
	var ve *engine.ValidationError
	return errors.Is(err, engine.ErrCyclicDependency) || errors.As(err, &ve)
}

// interrupted возвращает true, если run остановлен отменой ctx,
// а не упавшим шагом.
func interrupted(ctx context.Context, run *domain.Run) bool {
	return ctx.Err() != nil &&
		run.Status == domain.RunStatusHalted &&
		len(run.FailedSteps()) == 0
}
