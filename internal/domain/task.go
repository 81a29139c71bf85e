package domain

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"
)

// TaskRunner — внешний исполнитель task.
//
// Как именно выполняется работа (подпроцесс, функция в процессе, контейнер),
// планировщику неважно: ему нужен только итог — nil или ошибка.
type TaskRunner interface {
	Run(ctx context.Context, tc TaskContext) error
}

// TaskID — идентификатор task: имя шага и индекс.
type TaskID struct {
	Step  string `json:"step"`
	Index int    `json:"index"`
}

// String возвращает ID в виде "step/index".
func (id TaskID) String() string {
	return fmt.Sprintf("%s/%d", id.Step, id.Index)
}

// TaskContext — контекст выполнения task.
type TaskContext struct {
	// Step — имя шага.
	Step string `json:"step"`

	// Index — индекс task в шаге, [0, Total).
	Index int `json:"index"`

	// Total — общее количество tasks шага.
	Total int `json:"total"`

	// Workdir — рабочая директория job.
	Workdir string `json:"workdir,omitempty"`

	// Datasets — ссылки на датасеты.
	Datasets []string `json:"datasets,omitempty"`

	// Params — произвольные параметры (job + step).
	Params map[string]any `json:"params,omitempty"`
}

func (tc TaskContext) clone() TaskContext {
	out := tc
	if tc.Datasets != nil {
		out.Datasets = make([]string, len(tc.Datasets))
		copy(out.Datasets, tc.Datasets)
	}
	if tc.Params != nil {
		out.Params = make(map[string]any, len(tc.Params))
		for k, v := range tc.Params {
			out.Params[k] = v
		}
	}
	return out
}

// Task — атомарная единица работы: пара (шаг, индекс).
type Task struct {
	ID      TaskID
	Context TaskContext
}

// Execute выполняет task через runner и возвращает результат.
//
// Ошибка runner'а и паника превращаются в FAILED результат —
// наружу ничего не пробрасывается.
func (t *Task) Execute(ctx context.Context, runner TaskRunner) (result TaskResult) {
	result = TaskResult{
		TaskID:    t.ID,
		StartedAt: time.Now(),
	}

	defer func() {
		if r := recover(); r != nil {
			result.Status = TaskStatusFailed
			result.Error = fmt.Sprintf("panic: %v\n%s", r, debug.Stack())
		}
		result.FinishedAt = time.Now()
	}()

	if runner == nil {
		result.Status = TaskStatusFailed
		result.Error = "no task runner"
		return result
	}

	if err := runner.Run(ctx, t.Context); err != nil {
		result.Status = TaskStatusFailed
		result.Error = err.Error()
		return result
	}

	result.Status = TaskStatusSuccess
	return result
}
