// Package trigger запускает job по расписанию.
//
// Структура:
//   - trigger.go — CronTrigger: запуск job по cron-выражению через Submitter
//   - cron.go    — парсинг cron-выражений и вычисление следующего времени
//
// Использование:
//
//	trig, err := trigger.New(trigger.Config{
//	    Job:       job,
//	    CronExpr:  "*/30 * * * *",
//	    Submitter: orch,
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//
//	// Блокируется до отмены ctx
//	trig.Start(ctx)
//
// Пересечения runs не допускаются: если предыдущий run одного
// и того же job ещё выполняется, запуск пропускается.
package trigger
