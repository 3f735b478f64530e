package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shaiso/quizflow/internal/domain"
)

const submissionColumns = `
	id, quiz_id, student_id, status, auto_score, score, max_score,
	started_at, submitted_at, graded_at`

func insertSubmission(ctx context.Context, q querier, s *domain.Submission) error {
	query := `
		INSERT INTO quiz_submissions (` + submissionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.Exec(ctx, query,
		s.ID,
		s.QuizID,
		s.StudentID,
		s.Status,
		s.AutoScore,
		s.Score,
		s.MaxScore,
		s.StartedAt,
		s.SubmittedAt,
		s.GradedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("submission for student %s: %w", s.StudentID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

func getSubmission(ctx context.Context, q querier, id uuid.UUID) (*domain.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM quiz_submissions WHERE id = $1 FOR UPDATE`
	return scanSubmission(q.QueryRow(ctx, query, id))
}

func updateSubmission(ctx context.Context, q querier, s *domain.Submission) error {
	query := `
		UPDATE quiz_submissions
		SET status = $2, auto_score = $3, score = $4, max_score = $5,
		    submitted_at = $6, graded_at = $7
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		s.ID,
		s.Status,
		s.AutoScore,
		s.Score,
		s.MaxScore,
		s.SubmittedAt,
		s.GradedAt,
	)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func listSubmissions(ctx context.Context, q querier, quizID uuid.UUID) ([]*domain.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM quiz_submissions
		WHERE quiz_id = $1
		ORDER BY started_at ASC
	`
	rows, err := q.Query(ctx, query, quizID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*domain.Submission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	err := row.Scan(
		&s.ID,
		&s.QuizID,
		&s.StudentID,
		&s.Status,
		&s.AutoScore,
		&s.Score,
		&s.MaxScore,
		&s.StartedAt,
		&s.SubmittedAt,
		&s.GradedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan submission: %w", err)
	}
	return &s, nil
}
