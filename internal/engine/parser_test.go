package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shaiso/stepflow/internal/domain"
)

func TestParseJobSpec_Valid(t *testing.T) {
	data := []byte(`{
		"name": "eval-mnist",
		"workdir": "/data/eval",
		"datasets": ["mnist/version/latest"],
		"params": {"model": "mnist"},
		"steps": [
			{"name": "ppl", "task_num": 2, "concurrency": 1,
			 "resources": [{"name": "cpu", "request": 1, "limit": 2}]},
			{"name": "cmp", "task_num": 1, "needs": ["ppl"]}
		]
	}`)

	spec, err := ParseJobSpec(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if spec.Name != "eval-mnist" {
		t.Errorf("expected name eval-mnist, got %s", spec.Name)
	}
	if len(spec.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(spec.Steps))
	}
	if spec.Steps[0].Resources[0].Limit != 2 {
		t.Errorf("resources should be parsed, got %+v", spec.Steps[0].Resources)
	}
	if spec.Steps[1].Needs[0] != "ppl" {
		t.Errorf("needs should be parsed, got %v", spec.Steps[1].Needs)
	}
}

func TestParseJobSpec_UnknownField(t *testing.T) {
	data := []byte(`{"name": "x", "steps": [{"name": "a", "task_num": 1, "need": ["b"]}]}`)

	_, err := ParseJobSpec(data)
	if !errors.Is(err, ErrInvalidJobSpec) {
		t.Fatalf("expected ErrInvalidJobSpec, got %v", err)
	}
}

func TestParseJobSpec_InvalidJSON(t *testing.T) {
	_, err := ParseJobSpec([]byte(`{`))
	if !errors.Is(err, ErrInvalidJobSpec) {
		t.Fatalf("expected ErrInvalidJobSpec, got %v", err)
	}
}

func TestLoadJobSpec(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	if err := os.WriteFile(path, []byte(`{"name": "j", "steps": [{"name": "a", "task_num": 1}]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	spec, err := LoadJobSpec(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if spec.Name != "j" {
		t.Errorf("unexpected spec %+v", spec)
	}

	if _, err := LoadJobSpec(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    *domain.JobSpec
		wantErr error
	}{
		{"nil spec", nil, ErrEmptySteps},
		{"no steps", &domain.JobSpec{}, ErrEmptySteps},
		{"empty name", &domain.JobSpec{Steps: []domain.StepDef{{TaskNum: 1}}}, ErrEmptyStepName},
		{"duplicate", &domain.JobSpec{Steps: []domain.StepDef{
			{Name: "a", TaskNum: 1}, {Name: "a", TaskNum: 1},
		}}, ErrDuplicateStepName},
		{"zero task_num", &domain.JobSpec{Steps: []domain.StepDef{{Name: "a"}}}, ErrInvalidTaskNum},
		{"negative concurrency", &domain.JobSpec{Steps: []domain.StepDef{
			{Name: "a", TaskNum: 1, Concurrency: -1},
		}}, ErrInvalidConcurrency},
		{"self dependency", &domain.JobSpec{Steps: []domain.StepDef{
			{Name: "a", TaskNum: 1, Needs: []string{"a"}},
		}}, ErrSelfDependency},
		{"unknown needs", &domain.JobSpec{Steps: []domain.StepDef{
			{Name: "a", TaskNum: 1, Needs: []string{"b"}},
		}}, ErrMissingDependency},
		{"valid", &domain.JobSpec{Steps: []domain.StepDef{
			{Name: "a", TaskNum: 1},
			{Name: "b", TaskNum: 2, Concurrency: 2, Needs: []string{"a"}},
		}}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.spec)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}
