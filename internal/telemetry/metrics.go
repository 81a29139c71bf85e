package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/stepflow/internal/domain"
)

const metricsNamespace = "stepflow"

// Metrics — Prometheus метрики планировщика.
//
// Все методы безопасны для nil-получателя: компоненты, созданные
// без метрик (например, в тестах), просто ничего не пишут.
type Metrics struct {
	runs         *prometheus.CounterVec
	steps        *prometheus.CounterVec
	tasks        *prometheus.CounterVec
	taskDuration prometheus.Histogram
	tasksRunning prometheus.Gauge
}

// NewMetrics регистрирует метрики в reg.
// Для глобального реестра передайте prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "runs_total",
			Help:      "Finished scheduling runs by final status.",
		}, []string{"status"}),
		steps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "steps_total",
			Help:      "Finished steps by status.",
		}, []string{"status"}),
		tasks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_total",
			Help:      "Executed tasks by status.",
		}, []string{"status"}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "task_duration_seconds",
			Help:      "Task execution time.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
		tasksRunning: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "tasks_running",
			Help:      "Tasks currently executing.",
		}),
	}
}

// TaskStarted отмечает начало выполнения task.
func (m *Metrics) TaskStarted() {
	if m == nil {
		return
	}
	m.tasksRunning.Inc()
}

// TaskFinished отмечает завершение task.
func (m *Metrics) TaskFinished(result domain.TaskResult) {
	if m == nil {
		return
	}
	m.tasksRunning.Dec()
	m.tasks.WithLabelValues(string(result.Status)).Inc()
	m.taskDuration.Observe(result.Duration().Seconds())
}

// StepFinished отмечает завершение шага.
func (m *Metrics) StepFinished(result domain.StepResult) {
	if m == nil {
		return
	}
	m.steps.WithLabelValues(string(result.Status)).Inc()
}

// RunFinished отмечает завершение run.
func (m *Metrics) RunFinished(status domain.RunStatus) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(string(status)).Inc()
}
