package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/repo"
)

// JobStore — долговременное хранилище отложенных задач.
type JobStore interface {
	// InsertJob идемпотентен по (type, target_id, fire_at): повторная
	// вставка возвращает id существующей задачи.
	InsertJob(ctx context.Context, j *domain.Job) (uuid.UUID, error)

	// FetchDue атомарно захватывает до limit готовых задач на время lease.
	// Одна задача не выдаётся двум вызывающим одновременно.
	FetchDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Job, error)

	GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	UpdateJob(ctx context.Context, j *domain.Job) error
	CancelJobs(ctx context.Context, jobType string, targetID uuid.UUID, now time.Time) (int, error)
	ListJobs(ctx context.Context, f repo.JobFilter) ([]*domain.Job, error)
}

// Scheduler — API планирования отложенных задач.
type Scheduler struct {
	store  JobStore
	clock  clock.Clock
	logger *slog.Logger
}

// Config — конфигурация Scheduler.
type Config struct {
	Store  JobStore
	Clock  clock.Clock // default: clock.Real{}
	Logger *slog.Logger
}

// New создаёт новый Scheduler.
func New(cfg Config) *Scheduler {
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: cfg.Store, clock: c, logger: logger}
}

// Schedule планирует задачу jobType для targetID на момент fireAt.
//
// Если fireAt уже наступил, задача не создаётся: возвращается uuid.Nil
// без ошибки. Повторное планирование того же (type, target, fireAt)
// возвращает id уже существующей задачи.
func (s *Scheduler) Schedule(ctx context.Context, jobType string, targetID uuid.UUID, fireAt time.Time, payload map[string]any) (uuid.UUID, error) {
	now := s.clock.Now()
	if !fireAt.After(now) {
		s.logger.Info("fire time already passed, job not scheduled",
			"job_type", jobType,
			"target_id", targetID,
			"fire_at", fireAt,
		)
		return uuid.Nil, nil
	}

	job := domain.NewJob(jobType, targetID, fireAt.UTC(), payload, now)
	id, err := s.store.InsertJob(ctx, job)
	if err != nil {
		return uuid.Nil, fmt.Errorf("schedule %s: %w", jobType, err)
	}

	s.logger.Info("job scheduled",
		"job_id", id,
		"job_type", jobType,
		"target_id", targetID,
		"fire_at", fireAt,
	)
	return id, nil
}

// Cancel отменяет ещё не выполненные задачи jobType для targetID.
func (s *Scheduler) Cancel(ctx context.Context, jobType string, targetID uuid.UUID) (int, error) {
	n, err := s.store.CancelJobs(ctx, jobType, targetID, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("cancel %s: %w", jobType, err)
	}
	if n > 0 {
		s.logger.Info("jobs cancelled", "job_type", jobType, "target_id", targetID, "count", n)
	}
	return n, nil
}

// MarkDone завершает задачу вручную.
func (s *Scheduler) MarkDone(ctx context.Context, id uuid.UUID) error {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if job.Status == domain.JobStatusDone {
		return nil
	}
	job.MarkDone(s.clock.Now())
	return s.store.UpdateJob(ctx, job)
}

// Retry возвращает упавшую или отменённую задачу в очередь.
// Счётчик попыток сбрасывается, задача становится готовой немедленно.
func (s *Scheduler) Retry(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get job: %w", err)
	}
	if job.Status != domain.JobStatusFailed && job.Status != domain.JobStatusCancelled {
		return nil, fmt.Errorf("%w: %s", ErrJobNotRetryable, job.Status)
	}

	now := s.clock.Now()
	job.Attempts = 0
	job.CompletedAt = nil
	job.Reschedule(now, job.LastError, now)
	if err := s.store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	s.logger.Info("job requeued", "job_id", job.ID, "job_type", job.Type)
	return job, nil
}

// Get возвращает задачу по ID.
func (s *Scheduler) Get(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return s.store.GetJob(ctx, id)
}

// List возвращает задачи по фильтру.
func (s *Scheduler) List(ctx context.Context, f repo.JobFilter) ([]*domain.Job, error) {
	return s.store.ListJobs(ctx, f)
}
