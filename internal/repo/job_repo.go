package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
)

const jobColumns = `
	id, type, target_id, fire_at, payload, status, attempts,
	next_attempt_at, lease_until, last_error, created_at, updated_at, completed_at`

// JobRepo — репозиторий отложенных задач.
type JobRepo struct {
	pool *pgxpool.Pool
}

// NewJobRepo создаёт новый JobRepo.
func NewJobRepo(pool *pgxpool.Pool) *JobRepo {
	return &JobRepo{pool: pool}
}

// InsertJob сохраняет задачу.
//
// Ключ (type, target_id, fire_at) уникален: повторная вставка не создаёт
// новую строку и возвращает id существующей.
func (r *JobRepo) InsertJob(ctx context.Context, j *domain.Job) (uuid.UUID, error) {
	payloadJSON, err := json.Marshal(j.Payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("marshal payload: %w", err)
	}

	query := `
		INSERT INTO deferred_jobs (id, type, target_id, fire_at, payload, status, attempts,
		                           next_attempt_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (type, target_id, fire_at)
		DO UPDATE SET updated_at = deferred_jobs.updated_at
		RETURNING id
	`
	var id uuid.UUID
	err = r.pool.QueryRow(ctx, query,
		j.ID,
		j.Type,
		j.TargetID,
		j.FireAt,
		payloadJSON,
		j.Status,
		j.Attempts,
		j.NextAttemptAt,
		j.CreatedAt,
		j.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// FetchDue атомарно захватывает до limit готовых задач.
//
// Готовы ожидающие задачи с next_attempt_at <= now и выполняющиеся задачи
// с истёкшей арендой (воркер упал). FOR UPDATE SKIP LOCKED не даёт
// двум воркерам захватить одну задачу. Порядок — по fire_at.
func (r *JobRepo) FetchDue(ctx context.Context, now time.Time, limit int, lease time.Duration) ([]*domain.Job, error) {
	query := `
		WITH claimed AS (
			UPDATE deferred_jobs
			SET status = 'RUNNING', attempts = attempts + 1, lease_until = $2, updated_at = $1
			WHERE id IN (
				SELECT id FROM deferred_jobs
				WHERE (status = 'PENDING' AND next_attempt_at <= $1)
				   OR (status = 'RUNNING' AND lease_until < $1)
				ORDER BY fire_at ASC, next_attempt_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT $3
			)
			RETURNING ` + jobColumns + `
		)
		SELECT * FROM claimed ORDER BY fire_at ASC, next_attempt_at ASC
	`
	rows, err := r.pool.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// GetJob возвращает задачу по ID.
func (r *JobRepo) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM deferred_jobs WHERE id = $1`
	j, err := scanJob(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return j, err
}

// UpdateJob сохраняет изменения статуса задачи.
func (r *JobRepo) UpdateJob(ctx context.Context, j *domain.Job) error {
	query := `
		UPDATE deferred_jobs
		SET status = $2, attempts = $3, next_attempt_at = $4, lease_until = $5,
		    last_error = $6, updated_at = $7, completed_at = $8
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query,
		j.ID,
		j.Status,
		j.Attempts,
		j.NextAttemptAt,
		j.LeaseUntil,
		nullString(j.LastError),
		j.UpdatedAt,
		j.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelJobs отменяет ожидающие задачи типа jobType для цели.
func (r *JobRepo) CancelJobs(ctx context.Context, jobType string, targetID uuid.UUID, now time.Time) (int, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE deferred_jobs
		SET status = 'CANCELLED', completed_at = $3, updated_at = $3
		WHERE type = $1 AND target_id = $2 AND status = 'PENDING'
	`, jobType, targetID, now)
	if err != nil {
		return 0, fmt.Errorf("cancel jobs: %w", err)
	}
	return int(result.RowsAffected()), nil
}

// ListJobs возвращает задачи по фильтру.
func (r *JobRepo) ListJobs(ctx context.Context, f JobFilter) ([]*domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM deferred_jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::text IS NULL OR type = $2)
		  AND ($3::uuid IS NULL OR target_id = $3)
		ORDER BY fire_at ASC
		LIMIT $4 OFFSET $5
	`
	rows, err := r.pool.Query(ctx, query,
		nullString(string(f.Status)),
		nullString(f.Type),
		nullUUID(f.TargetID),
		LimitOrDefault(f.Limit),
		f.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func collectJobs(rows pgx.Rows) ([]*domain.Job, error) {
	var jobs []*domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var j domain.Job
	var payloadJSON []byte
	var lastError *string

	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.TargetID,
		&j.FireAt,
		&payloadJSON,
		&j.Status,
		&j.Attempts,
		&j.NextAttemptAt,
		&j.LeaseUntil,
		&lastError,
		&j.CreatedAt,
		&j.UpdatedAt,
		&j.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}

	j.LastError = derefString(lastError)
	if payloadJSON != nil {
		if err := json.Unmarshal(payloadJSON, &j.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	return &j, nil
}
