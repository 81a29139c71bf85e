package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/shaiso/stepflow/internal/domain"
)

// RunnerFunc — адаптер функции к domain.TaskRunner.
type RunnerFunc func(ctx context.Context, tc domain.TaskContext) error

// Run реализует domain.TaskRunner.
func (f RunnerFunc) Run(ctx context.Context, tc domain.TaskContext) error {
	return f(ctx, tc)
}

// Registry — реестр исполнителей.
//
// Исполнитель ищется в порядке:
//  1. по имени шага (RegisterStep)
//  2. по виду из params.runner (Register)
//  3. исполнитель по умолчанию (SetDefault)
type Registry struct {
	mu       sync.RWMutex
	steps    map[string]domain.TaskRunner
	kinds    map[string]domain.TaskRunner
	fallback domain.TaskRunner
}

// NewRegistry создаёт реестр с исполнителями по умолчанию.
//
// Регистрирует виды: exec, delay. Исполнитель по умолчанию — exec.
func NewRegistry() *Registry {
	r := &Registry{
		steps: make(map[string]domain.TaskRunner),
		kinds: make(map[string]domain.TaskRunner),
	}

	exec := &ExecRunner{}
	r.Register("exec", exec)
	r.Register("delay", &DelayRunner{})
	r.SetDefault(exec)
	return r
}

// Register добавляет исполнитель для вида (params.runner).
func (r *Registry) Register(kind string, runner domain.TaskRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = runner
}

// RegisterStep закрепляет исполнитель за конкретным шагом.
func (r *Registry) RegisterStep(step string, runner domain.TaskRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps[step] = runner
}

// SetDefault задаёт исполнитель по умолчанию (nil — без fallback).
func (r *Registry) SetDefault(runner domain.TaskRunner) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = runner
}

// Get возвращает исполнитель для task.
func (r *Registry) Get(tc domain.TaskContext) (domain.TaskRunner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if runner, ok := r.steps[tc.Step]; ok {
		return runner, nil
	}

	if kind, ok := tc.Params["runner"].(string); ok && kind != "" {
		runner, ok := r.kinds[kind]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownRunner, kind)
		}
		return runner, nil
	}

	if r.fallback != nil {
		return r.fallback, nil
	}

	return nil, fmt.Errorf("%w: step %s", ErrUnknownRunner, tc.Step)
}

// Run реализует domain.TaskRunner: выбирает исполнитель и выполняет task.
func (r *Registry) Run(ctx context.Context, tc domain.TaskContext) error {
	runner, err := r.Get(tc)
	if err != nil {
		return err
	}
	return runner.Run(ctx, tc)
}
