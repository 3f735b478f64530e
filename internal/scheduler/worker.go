package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/telemetry"
)

// Default configuration values.
const (
	defaultPollInterval = 5 * time.Second
	defaultBatchSize    = 50
	defaultLease        = 2 * time.Minute
	defaultMaxAttempts  = 5
	defaultMaxAge       = 24 * time.Hour
)

// Worker периодически забирает готовые задачи и выполняет их.
//
// Каждая задача захватывается с арендой (lease): если процесс упадёт
// во время выполнения, задача снова станет готовой после истечения аренды.
type Worker struct {
	store    JobStore
	registry *Registry
	clock    clock.Clock

	pollInterval time.Duration
	batchSize    int
	lease        time.Duration
	maxAttempts  int
	maxAge       time.Duration
	backoff      Backoff

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// WorkerConfig — конфигурация Worker.
type WorkerConfig struct {
	Store    JobStore
	Registry *Registry
	Clock    clock.Clock

	PollInterval time.Duration // интервал polling (default: 5s)
	BatchSize    int           // задач за один poll (default: 50)
	Lease        time.Duration // аренда захваченной задачи (default: 2m)
	MaxAttempts  int           // потолок попыток (default: 5)
	MaxAge       time.Duration // потолок возраста задачи от fire_at (default: 24h)
	Backoff      Backoff

	Logger *slog.Logger
}

// NewWorker создаёт новый Worker.
func NewWorker(cfg WorkerConfig) *Worker {
	w := &Worker{
		store:        cfg.Store,
		registry:     cfg.Registry,
		clock:        cfg.Clock,
		pollInterval: cfg.PollInterval,
		batchSize:    cfg.BatchSize,
		lease:        cfg.Lease,
		maxAttempts:  cfg.MaxAttempts,
		maxAge:       cfg.MaxAge,
		backoff:      cfg.Backoff,
		logger:       cfg.Logger,
	}
	if w.registry == nil {
		w.registry = NewRegistry()
	}
	if w.clock == nil {
		w.clock = clock.Real{}
	}
	if w.pollInterval <= 0 {
		w.pollInterval = defaultPollInterval
	}
	if w.batchSize <= 0 {
		w.batchSize = defaultBatchSize
	}
	if w.lease <= 0 {
		w.lease = defaultLease
	}
	if w.maxAttempts <= 0 {
		w.maxAttempts = defaultMaxAttempts
	}
	if w.maxAge <= 0 {
		w.maxAge = defaultMaxAge
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w
}

// Start запускает цикл polling в отдельной горутине.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting scheduler worker",
		"poll_interval", w.pollInterval,
		"batch_size", w.batchSize,
		"lease", w.lease,
		"job_types", w.registry.Types(),
	)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.pollLoop(ctx)
	}()
	return nil
}

// Stop останавливает Worker и ждёт завершения текущего poll.
func (w *Worker) Stop() {
	w.stoppedMu.Lock()
	w.stopped = true
	w.stoppedMu.Unlock()

	w.logger.Info("stopping scheduler worker...")
	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	w.wg.Wait()
	w.logger.Info("scheduler worker stopped")
}

// IsStopped проверяет, остановлен ли Worker.
func (w *Worker) IsStopped() bool {
	w.stoppedMu.RLock()
	defer w.stoppedMu.RUnlock()
	return w.stopped
}

func (w *Worker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу: подхватываем задачи, созревшие пока процесс был выключен.
	w.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.poll(ctx)
		}
	}
}

func (w *Worker) poll(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.JobPollDuration.Observe(time.Since(start).Seconds()) }()

	if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Error("scheduler poll failed", "error", err)
	}
}

// RunOnce захватывает одну пачку готовых задач и выполняет их.
// Возвращает количество обработанных задач.
// Ошибка одной задачи не прерывает обработку остальных.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	jobs, err := w.store.FetchDue(ctx, w.clock.Now(), w.batchSize, w.lease)
	if err != nil {
		return 0, fmt.Errorf("fetch due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}

	w.logger.Debug("claimed due jobs", "count", len(jobs))

	for _, job := range jobs {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if err := w.Execute(ctx, job); err != nil {
			w.logger.Error("failed to record job outcome",
				"job_id", job.ID,
				"job_type", job.Type,
				"error", err,
			)
		}
	}
	return len(jobs), nil
}

// Execute выполняет одну задачу и сохраняет исход.
//
//  1. Завершённая задача (DONE, FAILED, CANCELLED) не выполняется повторно
//  2. Неизвестный тип — FAILED
//  3. Обработчик вернул nil — DONE
//  4. Permanent-ошибка — FAILED
//  5. Временная ошибка — повтор с backoff, пока не исчерпаны попытки или возраст
//
// Возвращаемая ошибка относится только к сохранению исхода.
func (w *Worker) Execute(ctx context.Context, job *domain.Job) error {
	logger := telemetry.WithJobID(w.logger, job.ID.String(), job.Type)

	if job.Status.IsTerminal() {
		logger.Debug("job already finished, skipping", "status", job.Status)
		return nil
	}

	handler, err := w.registry.Get(job.Type)
	if err != nil {
		logger.Error("no handler for job type", "error", err)
		return w.fail(ctx, job, err, "unknown_type")
	}

	hctx := telemetry.WithLogger(ctx, logger)
	handleErr := w.invoke(hctx, handler, job)
	now := w.clock.Now()

	if handleErr == nil {
		job.MarkDone(now)
		if err := w.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("mark job done: %w", err)
		}
		telemetry.JobsExecuted.WithLabelValues(job.Type, "done").Inc()
		logger.Info("job done", "attempt", job.Attempts)
		return nil
	}

	if IsPermanent(handleErr) {
		logger.Error("job failed permanently", "attempt", job.Attempts, "error", handleErr)
		return w.fail(ctx, job, handleErr, "failed")
	}

	if job.Attempts >= w.maxAttempts || job.Age(now) >= w.maxAge {
		logger.Error("job retries exhausted",
			"attempt", job.Attempts,
			"age", job.Age(now),
			"error", handleErr,
		)
		return w.fail(ctx, job, fmt.Errorf("%w: %v", ErrRetryExhausted, handleErr), "failed")
	}

	next := now.Add(w.backoff.Delay(job.Attempts))
	job.Reschedule(next, handleErr.Error(), now)
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("reschedule job: %w", err)
	}
	telemetry.JobsExecuted.WithLabelValues(job.Type, "retry").Inc()
	logger.Warn("job failed, will retry",
		"attempt", job.Attempts,
		"next_attempt_at", next,
		"error", handleErr,
	)
	return nil
}

func (w *Worker) fail(ctx context.Context, job *domain.Job, cause error, outcome string) error {
	job.MarkFailed(cause.Error(), w.clock.Now())
	if err := w.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("mark job failed: %w", err)
	}
	telemetry.JobsExecuted.WithLabelValues(job.Type, outcome).Inc()
	return nil
}

// invoke вызывает обработчик, превращая панику во временную ошибку.
func (w *Worker) invoke(ctx context.Context, h Handler, job *domain.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("job handler panicked",
				"job_id", job.ID,
				"job_type", job.Type,
				"panic", r,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, job)
}
