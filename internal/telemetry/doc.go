// Package telemetry обеспечивает наблюдаемость stepflow.
//
// Включает:
//   - logging.go — structured logging через slog (LOG_LEVEL, LOG_FORMAT)
//   - metrics.go — Prometheus метрики шагов, tasks и runs
//
// Metrics создаётся на Registerer: в процессе — prometheus.DefaultRegisterer,
// в тестах — отдельный prometheus.NewRegistry(). Команда serve экспортирует
// метрики на /metrics.
package telemetry
