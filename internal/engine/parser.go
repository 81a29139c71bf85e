package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shaiso/stepflow/internal/domain"
)

// ParseJobSpec разбирает JobSpec из JSON и валидирует его.
//
// Неизвестные поля считаются ошибкой: опечатка в "needs" не должна
// молча превращаться в шаг без зависимостей.
func ParseJobSpec(data []byte) (*domain.JobSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var spec domain.JobSpec
	if err := dec.Decode(&spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJobSpec, err)
	}

	if err := Validate(&spec); err != nil {
		return nil, err
	}

	return &spec, nil
}

// LoadJobSpec читает JobSpec из файла.
func LoadJobSpec(path string) (*domain.JobSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job spec: %w", err)
	}

	spec, err := ParseJobSpec(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return spec, nil
}

// Validate выполняет полную валидацию JobSpec.
//
// Проверяет:
// - Наличие шагов
// - Имена шагов (непустые, уникальные)
// - task_num и concurrency
// - Отсутствие self-dependency и неизвестных needs
//
// Циклы проверяются при построении графа (BuildGraph).
func Validate(spec *domain.JobSpec) error {
	if spec == nil || len(spec.Steps) == 0 {
		return ErrEmptySteps
	}

	names := make(map[string]bool, len(spec.Steps))
	for i := range spec.Steps {
		if err := ValidateStep(&spec.Steps[i], names); err != nil {
			return err
		}
	}

	return validateNeeds(spec.Steps, names)
}

// ValidateStep валидирует один шаг.
// names — уже встреченные имена шагов (для проверки уникальности).
func ValidateStep(step *domain.StepDef, names map[string]bool) error {
	if step.Name == "" {
		return NewValidationError("", "name", "step has empty name", ErrEmptyStepName)
	}

	if names[step.Name] {
		return NewValidationError(step.Name, "name",
			fmt.Sprintf("duplicate step name: %s", step.Name), ErrDuplicateStepName)
	}
	names[step.Name] = true

	if step.TaskNum < 1 {
		return NewValidationError(step.Name, "task_num",
			fmt.Sprintf("task_num must be >= 1, got %d", step.TaskNum), ErrInvalidTaskNum)
	}

	if step.Concurrency < 0 {
		return NewValidationError(step.Name, "concurrency",
			fmt.Sprintf("concurrency must be >= 1, got %d", step.Concurrency), ErrInvalidConcurrency)
	}

	for _, dep := range step.Needs {
		if dep == step.Name {
			return NewValidationError(step.Name, "needs",
				"step needs itself", ErrSelfDependency)
		}
	}

	return nil
}

// validateNeeds проверяет, что все needs ссылаются на существующие шаги.
func validateNeeds(steps []domain.StepDef, names map[string]bool) error {
	for i := range steps {
		step := &steps[i]
		for _, dep := range step.Needs {
			if !names[dep] {
				return NewValidationError(step.Name, "needs",
					fmt.Sprintf("needs unknown step: %s", dep), ErrMissingDependency)
			}
		}
	}
	return nil
}
