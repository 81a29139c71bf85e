package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/shaiso/stepflow/internal/domain"
)

// ResultSink получает итоговый Run после завершения Schedule
// (БД, очередь, файл — на усмотрение реализации).
type ResultSink interface {
	Save(ctx context.Context, run *domain.Run) error
}

// SinkFunc — адаптер функции к ResultSink.
type SinkFunc func(ctx context.Context, run *domain.Run) error

// Save реализует ResultSink.
func (f SinkFunc) Save(ctx context.Context, run *domain.Run) error {
	return f(ctx, run)
}

// Execute создаёт Scheduler, выполняет job и передаёт Run во все sink'и.
//
// Ошибки sink'ов не меняют исход run: Run возвращается всегда, если job
// удалось запустить, а ошибки sink'ов объединяются в error.
func Execute(ctx context.Context, cfg Config, sinks ...ResultSink) (*domain.Run, error) {
	s, err := New(cfg)
	if err != nil {
		return nil, err
	}

	run, err := s.Run(ctx)
	if err != nil {
		return nil, err
	}

	if err := SaveRun(ctx, run, sinks...); err != nil {
		s.logger.Error("failed to save run", "error", err)
		return run, err
	}

	return run, nil
}

// SaveRun передаёт run во все sink'и (nil пропускаются).
// Ошибка одного sink'а не мешает остальным.
func SaveRun(ctx context.Context, run *domain.Run, sinks ...ResultSink) error {
	var errs []error
	for _, sink := range sinks {
		if sink == nil {
			continue
		}
		if err := sink.Save(ctx, run); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("save run %s: %w", run.ID, errors.Join(errs...))
	}
	return nil
}
