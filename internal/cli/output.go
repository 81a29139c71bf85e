package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shaiso/stepflow/internal/domain"
	"github.com/shaiso/stepflow/internal/engine"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными writer'ами.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{jsonMode: jsonMode, w: w, errW: errW}
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(headers, rows)
}

// Table выводит данные в виде таблицы через tabwriter.
func (o *Output) Table(headers []string, rows [][]string) {
	tw := tabwriter.NewWriter(o.w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(headers, "\t"))

	dashes := make([]string, len(headers))
	for i, h := range headers {
		dashes[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(dashes, "\t"))

	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}

	tw.Flush()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

// PrintRun выводит результаты шагов run.
func (o *Output) PrintRun(run *domain.Run) {
	headers := []string{"STEP", "STATUS", "TASKS", "FAILED", "DURATION", "ERROR"}
	rows := make([][]string, len(run.Steps))
	for i, s := range run.Steps {
		failed := s.FailedTasks()
		errMsg := ""
		if len(failed) > 0 {
			errMsg = firstLine(failed[0].Error)
		}
		rows[i] = []string{
			s.StepName,
			string(s.Status),
			strconv.Itoa(len(s.Tasks)),
			strconv.Itoa(len(failed)),
			formatDuration(stepDuration(s)),
			errMsg,
		}
	}

	o.Print(headers, rows, run)
	o.Success(fmt.Sprintf("Run %s %s in %s (%d tasks)",
		run.ID, run.Status, formatDuration(run.Duration()), run.TaskCount()))
}

// PrintStepResult выводит результаты tasks одного шага.
func (o *Output) PrintStepResult(result domain.StepResult) {
	o.PrintTaskResults(result, result.Tasks...)
	o.Success(fmt.Sprintf("Step %s %s", result.StepName, result.Status))
}

// PrintTaskResults выводит результаты tasks.
func (o *Output) PrintTaskResults(jsonData any, tasks ...domain.TaskResult) {
	headers := []string{"TASK", "STATUS", "DURATION", "ERROR"}
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{
			t.TaskID.String(),
			string(t.Status),
			formatDuration(t.Duration()),
			firstLine(t.Error),
		}
	}

	o.Print(headers, rows, jsonData)
}

// planStep — строка плана выполнения.
type planStep struct {
	Step        string   `json:"step"`
	TaskNum     int      `json:"task_num"`
	Concurrency int      `json:"concurrency"`
	Needs       []string `json:"needs,omitempty"`
	Dependents  int      `json:"dependents"`
}

// PrintPlan выводит шаги в топологическом порядке.
func (o *Output) PrintPlan(graph *engine.Graph) {
	order := graph.Order()
	plan := make([]planStep, len(order))
	rows := make([][]string, len(order))

	for i, name := range order {
		node := graph.Node(name)
		plan[i] = planStep{
			Step:        name,
			TaskNum:     node.Step.TaskNum,
			Concurrency: max(node.Step.Concurrency, 1),
			Needs:       node.Step.Needs,
			Dependents:  graph.OutDegree(name),
		}
		rows[i] = []string{
			name,
			strconv.Itoa(plan[i].TaskNum),
			strconv.Itoa(plan[i].Concurrency),
			strings.Join(plan[i].Needs, ","),
		}
	}

	o.Print([]string{"STEP", "TASKS", "CONCURRENCY", "NEEDS"}, rows, plan)
	o.Success(fmt.Sprintf("Starts: %s; terminals: %s",
		strings.Join(graph.Starts(), ","), strings.Join(graph.Terminals(), ",")))
}

// stepDuration — от старта первого task до завершения последнего.
func stepDuration(s domain.StepResult) time.Duration {
	var start, end time.Time
	for _, t := range s.Tasks {
		if t.StartedAt.IsZero() {
			continue
		}
		if start.IsZero() || t.StartedAt.Before(start) {
			start = t.StartedAt
		}
		if t.FinishedAt.After(end) {
			end = t.FinishedAt
		}
	}
	if start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start)
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(10 * time.Millisecond).String()
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
