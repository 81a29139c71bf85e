// Package scheduler выполняет job: шаги с зависимостями, разбитые на tasks.
//
// # Обзор
//
// Scheduler создаётся на один запуск. New строит граф шагов (циклы
// отклоняются сразу), Schedule прогоняет цикл до завершения:
//
//	s, err := scheduler.New(scheduler.Config{
//	    Job:    spec,
//	    Runner: runner,
//	    Logger: logger,
//	})
//	if err != nil {
//	    return err // *engine.CycleError, *engine.ValidationError
//	}
//
//	results, err := s.Schedule(ctx)
//
// # Готовность шагов
//
// Шаг готов, если он в INIT и все его needs в SUCCESS. Готовые шаги
// забираются под одним мьютексом и сразу переводятся в RUNNING, поэтому
// ни один шаг не запускается дважды. Пересчёт готовности происходит
// при каждом отчёте о завершении шага (event-driven, без polling).
//
// # Параллелизм
//
// Каждый запущенный шаг получает свой пул (errgroup с лимитом
// Concurrency). Между шагами ограничения нет, кроме необязательного
// общего потолка MaxParallelTasks.
//
// # Ошибки
//
// Упавший task делает упавшим шаг, упавший шаг останавливает запуск
// новых шагов. Уже запущенные шаги дорабатывают. Schedule при этом
// завершается штатно: статус каждого шага есть в результатах.
// Повторы — решение вызывающего кода (ScheduleOneStep, ScheduleOneTask
// или worker.RetryRunner).
package scheduler
