package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

// testRunner — исполнитель для тестов: записывает вызовы и порядок событий,
// считает максимальное число одновременно выполняемых tasks.
type testRunner struct {
	mu     sync.Mutex
	calls  []domain.TaskContext
	events []string

	running    atomic.Int32
	maxRunning atomic.Int32

	delay func(tc domain.TaskContext) time.Duration
	fail  func(tc domain.TaskContext) error
}

func (r *testRunner) Run(ctx context.Context, tc domain.TaskContext) error {
	r.mu.Lock()
	r.calls = append(r.calls, tc)
	r.events = append(r.events, "start:"+tc.Step)
	r.mu.Unlock()

	n := r.running.Add(1)
	for {
		max := r.maxRunning.Load()
		if n <= max || r.maxRunning.CompareAndSwap(max, n) {
			break
		}
	}

	if r.delay != nil {
		time.Sleep(r.delay(tc))
	}

	r.running.Add(-1)

	r.mu.Lock()
	r.events = append(r.events, "end:"+tc.Step)
	r.mu.Unlock()

	if r.fail != nil {
		return r.fail(tc)
	}
	return nil
}

func (r *testRunner) callsFor(step string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, tc := range r.calls {
		if tc.Step == step {
			n++
		}
	}
	return n
}

func (r *testRunner) totalCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// firstIndex возвращает позицию первого события (или -1).
func (r *testRunner) firstIndex(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, e := range r.events {
		if e == event {
			return i
		}
	}
	return -1
}

// lastIndex возвращает позицию последнего события (или -1).
func (r *testRunner) lastIndex(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i] == event {
			return i
		}
	}
	return -1
}

func pipelineJob() *domain.JobSpec {
	return &domain.JobSpec{
		Name:    "eval",
		Workdir: "/work",
		Params:  map[string]any{"model": "mnist"},
		Steps: []domain.StepDef{
			{Name: "ppl", TaskNum: 2, Concurrency: 1},
			{Name: "cmp", TaskNum: 1, Concurrency: 1, Needs: []string{"ppl"}},
		},
	}
}

func diamondJob() *domain.JobSpec {
	return &domain.JobSpec{
		Name: "diamond",
		Steps: []domain.StepDef{
			{Name: "base", TaskNum: 1},
			{Name: "ppl-1", TaskNum: 1, Needs: []string{"base"}},
			{Name: "ppl-2", TaskNum: 1, Needs: []string{"base"}},
			{Name: "cmp", TaskNum: 1, Needs: []string{"ppl-1", "ppl-2"}},
		},
	}
}

func newScheduler(t *testing.T, job *domain.JobSpec, runner domain.TaskRunner) *Scheduler {
	t.Helper()

	s, err := New(Config{Job: job, Runner: runner})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return s
}

func TestNew_Cycle(t *testing.T) {
	job := &domain.JobSpec{
		Steps: []domain.StepDef{
			{Name: "ppl-1", TaskNum: 1, Needs: []string{"cmp"}},
			{Name: "ppl-2", TaskNum: 1, Needs: []string{"ppl-1"}},
			{Name: "cmp", TaskNum: 1, Needs: []string{"ppl-2"}},
		},
	}

	_, err := New(Config{Job: job, Runner: &testRunner{}})

	var cycleErr *engine.CycleError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected *engine.CycleError, got %v", err)
	}
}

func TestNew_RequiresJobAndRunner(t *testing.T) {
	if _, err := New(Config{Runner: &testRunner{}}); !errors.Is(err, ErrNoJob) {
		t.Errorf("expected ErrNoJob, got %v", err)
	}
	if _, err := New(Config{Job: pipelineJob()}); !errors.Is(err, ErrNoRunner) {
		t.Errorf("expected ErrNoRunner, got %v", err)
	}
}

func TestNew_InvalidTaskNum(t *testing.T) {
	job := &domain.JobSpec{Steps: []domain.StepDef{{Name: "ppl"}}}

	_, err := New(Config{Job: job, Runner: &testRunner{}})
	if !errors.Is(err, engine.ErrInvalidTaskNum) {
		t.Fatalf("expected ErrInvalidTaskNum, got %v", err)
	}
}

func TestSchedule_EndToEnd(t *testing.T) {
	runner := &testRunner{}
	s := newScheduler(t, pipelineJob(), runner)

	results, err := s.Schedule(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 step results, got %d", len(results))
	}
	if results[0].StepName != "ppl" || results[0].Status != domain.StepStatusSuccess {
		t.Errorf("expected ppl SUCCESS first, got %s %s", results[0].StepName, results[0].Status)
	}
	if results[1].StepName != "cmp" || results[1].Status != domain.StepStatusSuccess {
		t.Errorf("expected cmp SUCCESS second, got %s %s", results[1].StepName, results[1].Status)
	}

	if runner.totalCalls() != 3 {
		t.Errorf("expected 3 task executions, got %d", runner.totalCalls())
	}
	if runner.callsFor("ppl") != 2 || runner.callsFor("cmp") != 1 {
		t.Errorf("expected 2 ppl + 1 cmp executions, got %d + %d", runner.callsFor("ppl"), runner.callsFor("cmp"))
	}

	// Результаты tasks упорядочены по индексу
	for i, tr := range results[0].Tasks {
		if tr.TaskID.Index != i {
			t.Errorf("task result %d has index %d", i, tr.TaskID.Index)
		}
	}

	if s.Status() != domain.RunStatusCompleted {
		t.Errorf("expected COMPLETED, got %s", s.Status())
	}
}

func TestSchedule_TaskContext(t *testing.T) {
	runner := &testRunner{}
	s := newScheduler(t, pipelineJob(), runner)

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	seen := make(map[int]bool)
	for _, tc := range runner.calls {
		if tc.Step != "ppl" {
			continue
		}
		seen[tc.Index] = true
		if tc.Total != 2 {
			t.Errorf("expected total 2, got %d", tc.Total)
		}
		if tc.Workdir != "/work" || tc.Params["model"] != "mnist" {
			t.Errorf("job context should be propagated, got %+v", tc)
		}
	}
	if !seen[0] || !seen[1] {
		t.Errorf("expected ppl tasks 0 and 1, got %v", seen)
	}
}

func TestSchedule_ReadinessOrdering(t *testing.T) {
	runner := &testRunner{
		delay: func(tc domain.TaskContext) time.Duration {
			if tc.Step == "ppl-2" {
				return 50 * time.Millisecond
			}
			return 5 * time.Millisecond
		},
	}
	s := newScheduler(t, diamondJob(), runner)

	results, err := s.Schedule(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	endBase := runner.lastIndex("end:base")
	if runner.firstIndex("start:ppl-1") < endBase || runner.firstIndex("start:ppl-2") < endBase {
		t.Error("ppl steps must start after base finishes")
	}

	startCmp := runner.firstIndex("start:cmp")
	if startCmp < runner.lastIndex("end:ppl-1") || startCmp < runner.lastIndex("end:ppl-2") {
		t.Error("cmp must start only after both ppl steps finish")
	}

	if results[0].StepName != "base" || results[3].StepName != "cmp" {
		t.Errorf("unexpected completion order: %s ... %s", results[0].StepName, results[3].StepName)
	}
}

func TestSchedule_ConcurrencyBound(t *testing.T) {
	runner := &testRunner{
		delay: func(domain.TaskContext) time.Duration { return 20 * time.Millisecond },
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{{Name: "ppl", TaskNum: 2, Concurrency: 1}},
	}
	s := newScheduler(t, job, runner)

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := runner.maxRunning.Load(); got != 1 {
		t.Errorf("expected at most 1 task in flight, observed %d", got)
	}
	if runner.totalCalls() != 2 {
		t.Errorf("expected 2 executions, got %d", runner.totalCalls())
	}
}

func TestSchedule_ConcurrencyUsesLimit(t *testing.T) {
	runner := &testRunner{
		delay: func(domain.TaskContext) time.Duration { return 30 * time.Millisecond },
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{{Name: "ppl", TaskNum: 6, Concurrency: 3}},
	}
	s := newScheduler(t, job, runner)

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := runner.maxRunning.Load(); got > 3 {
		t.Errorf("expected at most 3 tasks in flight, observed %d", got)
	}
	if runner.totalCalls() != 6 {
		t.Errorf("expected 6 executions, got %d", runner.totalCalls())
	}
}

func TestSchedule_MaxParallelTasks(t *testing.T) {
	runner := &testRunner{
		delay: func(domain.TaskContext) time.Duration { return 10 * time.Millisecond },
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{
			{Name: "a", TaskNum: 2, Concurrency: 2},
			{Name: "b", TaskNum: 2, Concurrency: 2},
		},
	}

	s, err := New(Config{Job: job, Runner: runner, MaxParallelTasks: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := runner.maxRunning.Load(); got != 1 {
		t.Errorf("global ceiling 1 violated, observed %d", got)
	}
	if runner.totalCalls() != 4 {
		t.Errorf("expected 4 executions, got %d", runner.totalCalls())
	}
}

func TestSchedule_HaltOnFailure(t *testing.T) {
	runner := &testRunner{
		fail: func(tc domain.TaskContext) error {
			if tc.Step == "ppl" {
				return errors.New("ppl crashed")
			}
			return nil
		},
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{
			{Name: "ppl", TaskNum: 1},
			{Name: "cmp", TaskNum: 1, Needs: []string{"ppl"}},
		},
	}
	s := newScheduler(t, job, runner)

	results, err := s.Schedule(context.Background())
	if err != nil {
		t.Fatalf("step failure must not be returned as error: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("expected exactly 1 step result, got %d", len(results))
	}
	if results[0].StepName != "ppl" || results[0].Status != domain.StepStatusFailed {
		t.Errorf("expected ppl FAILED, got %s %s", results[0].StepName, results[0].Status)
	}
	if results[0].Tasks[0].Error != "ppl crashed" {
		t.Errorf("task error should be kept, got %q", results[0].Tasks[0].Error)
	}

	if runner.callsFor("cmp") != 0 {
		t.Error("cmp must never be dispatched")
	}
	if status, _ := s.StepStatus("cmp"); status != domain.StepStatusInit {
		t.Errorf("cmp should stay INIT, got %s", status)
	}
	if s.Status() != domain.RunStatusHalted {
		t.Errorf("expected HALTED, got %s", s.Status())
	}
}

func TestSchedule_PartialTaskFailure(t *testing.T) {
	runner := &testRunner{
		fail: func(tc domain.TaskContext) error {
			if tc.Index == 2 {
				return errors.New("shard 2 failed")
			}
			return nil
		},
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{{Name: "ppl", TaskNum: 3, Concurrency: 3}},
	}
	s := newScheduler(t, job, runner)

	results, _ := s.Schedule(context.Background())

	if len(results) != 1 || results[0].Status != domain.StepStatusFailed {
		t.Fatalf("expected FAILED step, got %+v", results)
	}
	if runner.callsFor("ppl") != 3 {
		t.Errorf("all tasks of the step should run, got %d", runner.callsFor("ppl"))
	}
	if len(results[0].FailedTasks()) != 1 {
		t.Errorf("expected 1 failed task, got %d", len(results[0].FailedTasks()))
	}
}

func TestSchedule_RunningSiblingFinishesAfterFailure(t *testing.T) {
	runner := &testRunner{
		delay: func(tc domain.TaskContext) time.Duration {
			if tc.Step == "slow" {
				return 50 * time.Millisecond
			}
			return 0
		},
		fail: func(tc domain.TaskContext) error {
			if tc.Step == "fast" {
				return errors.New("boom")
			}
			return nil
		},
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{
			{Name: "fast", TaskNum: 1},
			{Name: "slow", TaskNum: 1},
			{Name: "after-slow", TaskNum: 1, Needs: []string{"slow"}},
			{Name: "after-fast", TaskNum: 1, Needs: []string{"fast"}},
		},
	}
	s := newScheduler(t, job, runner)

	results, _ := s.Schedule(context.Background())

	if len(results) != 2 {
		t.Fatalf("expected 2 results (fast, slow), got %d", len(results))
	}

	byName := make(map[string]domain.StepResult)
	for _, r := range results {
		byName[r.StepName] = r
	}
	if byName["fast"].Status != domain.StepStatusFailed {
		t.Errorf("fast should be FAILED, got %s", byName["fast"].Status)
	}
	if byName["slow"].Status != domain.StepStatusSuccess {
		t.Errorf("running sibling should finish with SUCCESS, got %s", byName["slow"].Status)
	}

	// Строгое правило: после падения не запускается ни один новый шаг
	if runner.callsFor("after-slow") != 0 || runner.callsFor("after-fast") != 0 {
		t.Error("no new steps may be dispatched after a failure")
	}
}

func TestSchedule_PanicInTask(t *testing.T) {
	runner := &testRunner{
		fail: func(tc domain.TaskContext) error {
			if tc.Index == 1 {
				panic("runner bug")
			}
			return nil
		},
	}
	job := &domain.JobSpec{
		Steps: []domain.StepDef{{Name: "ppl", TaskNum: 2, Concurrency: 2}},
	}
	s := newScheduler(t, job, runner)

	results, err := s.Schedule(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if results[0].Status != domain.StepStatusFailed {
		t.Errorf("panicking task should fail the step, got %s", results[0].Status)
	}
	if results[0].Tasks[0].Status != domain.TaskStatusSuccess {
		t.Error("other task of the step should not be affected")
	}
}

func TestSchedule_Twice(t *testing.T) {
	s := newScheduler(t, pipelineJob(), &testRunner{})

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Schedule(context.Background()); !errors.Is(err, ErrAlreadyScheduled) {
		t.Fatalf("expected ErrAlreadyScheduled, got %v", err)
	}
}

func TestSchedule_CanceledContext(t *testing.T) {
	runner := &testRunner{}
	s := newScheduler(t, pipelineJob(), runner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := s.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(run.Steps) != 0 || runner.totalCalls() != 0 {
		t.Error("nothing should be dispatched with a canceled context")
	}
	if run.Status != domain.RunStatusHalted {
		t.Errorf("expected HALTED, got %s", run.Status)
	}
}

func TestSchedule_OnStepFinished(t *testing.T) {
	var mu sync.Mutex
	var seen []string

	s, err := New(Config{
		Job:    pipelineJob(),
		Runner: &testRunner{},
		OnStepFinished: func(r domain.StepResult) {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, fmt.Sprintf("%s=%s", r.StepName, r.Status))
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(seen) != 2 || seen[0] != "ppl=SUCCESS" || seen[1] != "cmp=SUCCESS" {
		t.Errorf("unexpected callbacks %v", seen)
	}
}

func TestRun_Record(t *testing.T) {
	s := newScheduler(t, pipelineJob(), &testRunner{})

	run, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if run.ID != s.ID() {
		t.Error("run ID should match scheduler ID")
	}
	if run.JobName != "eval" || run.Status != domain.RunStatusCompleted {
		t.Errorf("unexpected run %s %s", run.JobName, run.Status)
	}
	if run.TaskCount() != 3 || run.FinishedAt == nil {
		t.Errorf("unexpected run record %+v", run)
	}
}

func TestScheduleOneTask_Bypass(t *testing.T) {
	runner := &testRunner{}
	s := newScheduler(t, pipelineJob(), runner)

	// cmp зависит от ppl, но одиночный task запускается без проверки
	result, err := s.ScheduleOneTask(context.Background(), "cmp", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.TaskStatusSuccess || result.TaskID.String() != "cmp/0" {
		t.Errorf("unexpected result %+v", result)
	}
	if runner.totalCalls() != 1 || runner.callsFor("cmp") != 1 {
		t.Errorf("exactly one task should run, got %d calls", runner.totalCalls())
	}

	for _, name := range []string{"ppl", "cmp"} {
		if status, _ := s.StepStatus(name); status != domain.StepStatusInit {
			t.Errorf("%s status should stay INIT, got %s", name, status)
		}
	}
}

func TestScheduleOneTask_UnknownReferences(t *testing.T) {
	s := newScheduler(t, pipelineJob(), &testRunner{})

	_, err := s.ScheduleOneTask(context.Background(), "missing", 0)
	if !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}

	_, err = s.ScheduleOneTask(context.Background(), "ppl", 2)
	if !errors.Is(err, ErrTaskIndexOutOfRange) {
		t.Errorf("expected ErrTaskIndexOutOfRange, got %v", err)
	}

	var unknownErr *UnknownStepError
	if !errors.As(err, &unknownErr) || unknownErr.Total != 2 || unknownErr.Index != 2 {
		t.Errorf("expected *UnknownStepError with context, got %v", err)
	}

	if _, err := s.ScheduleOneTask(context.Background(), "ppl", -1); !errors.Is(err, ErrTaskIndexOutOfRange) {
		t.Errorf("negative index should be rejected, got %v", err)
	}
}

func TestScheduleOneStep(t *testing.T) {
	runner := &testRunner{}
	s := newScheduler(t, pipelineJob(), runner)

	result, err := s.ScheduleOneStep(context.Background(), "cmp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.StepName != "cmp" || result.Status != domain.StepStatusSuccess {
		t.Errorf("unexpected result %+v", result)
	}
	if status, _ := s.StepStatus("cmp"); status != domain.StepStatusSuccess {
		t.Errorf("cmp should be SUCCESS, got %s", status)
	}
	if status, _ := s.StepStatus("ppl"); status != domain.StepStatusInit {
		t.Errorf("ppl should stay INIT, got %s", status)
	}
	if runner.callsFor("ppl") != 0 {
		t.Error("ppl must not run")
	}

	if _, err := s.ScheduleOneStep(context.Background(), "missing"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
}

func TestScheduleOneStep_RetryAfterFailure(t *testing.T) {
	var attempts atomic.Int32
	runner := &testRunner{
		fail: func(domain.TaskContext) error {
			if attempts.Add(1) == 1 {
				return errors.New("flaky")
			}
			return nil
		},
	}
	job := &domain.JobSpec{Steps: []domain.StepDef{{Name: "ppl", TaskNum: 1}}}
	s := newScheduler(t, job, runner)

	results, _ := s.Schedule(context.Background())
	if results[0].Status != domain.StepStatusFailed {
		t.Fatalf("first attempt should fail, got %s", results[0].Status)
	}

	retry, err := s.ScheduleOneStep(context.Background(), "ppl")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if retry.Status != domain.StepStatusSuccess {
		t.Errorf("retry should succeed, got %s", retry.Status)
	}
	if s.Status() != domain.RunStatusCompleted {
		t.Errorf("run should be COMPLETED after successful retry, got %s", s.Status())
	}
}

func TestStats(t *testing.T) {
	s := newScheduler(t, diamondJob(), &testRunner{})

	stats := s.Stats()
	if stats.TotalSteps != 4 || stats.PendingSteps != 4 {
		t.Errorf("unexpected initial stats %+v", stats)
	}

	if _, err := s.Schedule(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	stats = s.Stats()
	if stats.CompletedSteps != 4 || stats.PendingSteps != 0 || stats.RunningSteps != 0 {
		t.Errorf("unexpected final stats %+v", stats)
	}
}

func TestBeginStep_PreviousStatus(t *testing.T) {
	s := newScheduler(t, pipelineJob(), &testRunner{})
	step := s.steps["cmp"]

	prev, err := s.beginStep(step)
	if err != nil || prev != domain.StepStatusInit {
		t.Fatalf("expected INIT and no error, got %s, %v", prev, err)
	}

	if _, err := s.beginStep(step); !errors.Is(err, ErrStepRunning) {
		t.Errorf("expected ErrStepRunning for a running step, got %v", err)
	}

	s.finishStep(domain.NewStepResult("cmp", []domain.TaskResult{{Status: domain.TaskStatusFailed}}))

	prev, err = s.beginStep(step)
	if err != nil || !prev.IsTerminal() {
		t.Errorf("re-run should report the terminal status, got %s, %v", prev, err)
	}
}

func TestScheduleOneStep_ReportsBeforeReturn(t *testing.T) {
	var finished []string
	s, err := New(Config{
		Job:    pipelineJob(),
		Runner: &testRunner{},
		OnStepFinished: func(result domain.StepResult) {
			finished = append(finished, result.StepName)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.ScheduleOneStep(context.Background(), "ppl"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(finished) != 1 || finished[0] != "ppl" {
		t.Errorf("step report should be handled before ScheduleOneStep returns, got %v", finished)
	}
}
