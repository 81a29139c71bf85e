package domain

import "sync"

// Step — шаг внутри одного запуска планировщика.
//
// Все поля, кроме статуса и списка tasks, неизменяемы после NewStep.
// Статус меняет только планировщик.
type Step struct {
	Name        string
	TaskNum     int
	Concurrency int
	Resources   []Resource
	Needs       []string

	mu     sync.Mutex
	status StepStatus
	tasks  []*Task
}

// NewStep создаёт шаг из определения.
func NewStep(def StepDef) *Step {
	concurrency := def.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	needs := make([]string, len(def.Needs))
	copy(needs, def.Needs)

	resources := make([]Resource, len(def.Resources))
	copy(resources, def.Resources)

	return &Step{
		Name:        def.Name,
		TaskNum:     def.TaskNum,
		Concurrency: concurrency,
		Resources:   resources,
		Needs:       needs,
		status:      StepStatusInit,
	}
}

// Status возвращает текущий статус шага.
func (s *Step) Status() StepStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus устанавливает статус шага.
func (s *Step) SetStatus(status StepStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// SplitTasks делит шаг на TaskNum tasks с индексами 0..TaskNum-1.
//
// Повторный вызов возвращает уже созданные tasks.
func (s *Step) SplitTasks(template TaskContext) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tasks != nil {
		return s.tasks
	}

	tasks := make([]*Task, 0, s.TaskNum)
	for i := 0; i < s.TaskNum; i++ {
		tc := template.clone()
		tc.Step = s.Name
		tc.Index = i
		tc.Total = s.TaskNum

		tasks = append(tasks, &Task{
			ID:      TaskID{Step: s.Name, Index: i},
			Context: tc,
		})
	}
	s.tasks = tasks

	return s.tasks
}

// Tasks возвращает tasks шага (nil, если шаг ещё не разделён).
func (s *Step) Tasks() []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tasks
}
