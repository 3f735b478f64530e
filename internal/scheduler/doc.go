// Package scheduler реализует отложенные задачи: планирование и выполнение.
//
// Задача (domain.Job) — постоянная запись «выполнить действие типа T
// для цели X не раньше момента F». Ключ (T, X, F) уникален.
//
// Структура:
//   - scheduler.go — Scheduler: Schedule, Cancel, Retry, List
//   - worker.go    — Worker: polling, захват с арендой, исход выполнения
//   - registry.go  — Registry: тип задачи → Handler
//   - backoff.go   — экспоненциальная задержка повторов
//   - cron.go      — следующее время срабатывания по cron-выражению
//
// Использование:
//
//	registry := scheduler.NewRegistry()
//	registry.Register(domain.JobTypeQuizStart, handlers.QuizStart())
//
//	w := scheduler.NewWorker(scheduler.WorkerConfig{
//	    Store:    jobRepo,
//	    Registry: registry,
//	    Logger:   logger,
//	})
//	w.Start(ctx)
//	defer w.Stop()
//
// Доставка at-least-once: обработчик может быть вызван повторно
// (истекла аренда, процесс упал до сохранения исхода). Поэтому каждый
// обработчик перечитывает текущее состояние цели и ничего не делает,
// если действие уже не требуется.
//
// Предполагается один активный экземпляр Worker; FetchDue с захватом
// допускает и несколько.
package scheduler
