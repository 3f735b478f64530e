package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
)

const quizColumns = `
	id, title, owner_id, status, available_from, available_to,
	results_released, show_results_immediately,
	published_at, closed_at, results_released_at, start_notified_at,
	created_at, updated_at`

// QuizRepo — чтение квизов вне единицы работы.
// Изменения квизов проходят только через Store.InTx.
type QuizRepo struct {
	pool *pgxpool.Pool
}

// NewQuizRepo создаёт новый QuizRepo.
func NewQuizRepo(pool *pgxpool.Pool) *QuizRepo {
	return &QuizRepo{pool: pool}
}

// GetQuiz возвращает квиз по ID вместе с назначенными группами.
func (r *QuizRepo) GetQuiz(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	return getQuiz(ctx, r.pool, id, false)
}

func getQuiz(ctx context.Context, q querier, id uuid.UUID, forUpdate bool) (*domain.Quiz, error) {
	query := `SELECT ` + quizColumns + ` FROM quizzes WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	quiz, err := scanQuiz(q.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	rows, err := q.Query(ctx, `SELECT group_id FROM quiz_groups WHERE quiz_id = $1 ORDER BY group_id`, id)
	if err != nil {
		return nil, fmt.Errorf("list quiz groups: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var groupID uuid.UUID
		if err := rows.Scan(&groupID); err != nil {
			return nil, fmt.Errorf("scan quiz group: %w", err)
		}
		quiz.GroupIDs = append(quiz.GroupIDs, groupID)
	}
	return quiz, rows.Err()
}

func insertQuiz(ctx context.Context, q querier, quiz *domain.Quiz) error {
	query := `
		INSERT INTO quizzes (` + quizColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err := q.Exec(ctx, query,
		quiz.ID,
		quiz.Title,
		quiz.OwnerID,
		quiz.Status,
		quiz.AvailableFrom,
		quiz.AvailableTo,
		quiz.ResultsReleased,
		quiz.ShowResultsImmediately,
		quiz.PublishedAt,
		quiz.ClosedAt,
		quiz.ResultsReleasedAt,
		quiz.StartNotifiedAt,
		quiz.CreatedAt,
		quiz.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return fmt.Errorf("insert quiz %s: %w", quiz.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("insert quiz: %w", err)
	}
	return replaceQuizGroups(ctx, q, quiz)
}

func updateQuiz(ctx context.Context, q querier, quiz *domain.Quiz) error {
	query := `
		UPDATE quizzes
		SET title = $2, status = $3, available_from = $4, available_to = $5,
		    results_released = $6, show_results_immediately = $7,
		    published_at = $8, closed_at = $9, results_released_at = $10,
		    start_notified_at = $11, updated_at = $12
		WHERE id = $1
	`
	result, err := q.Exec(ctx, query,
		quiz.ID,
		quiz.Title,
		quiz.Status,
		quiz.AvailableFrom,
		quiz.AvailableTo,
		quiz.ResultsReleased,
		quiz.ShowResultsImmediately,
		quiz.PublishedAt,
		quiz.ClosedAt,
		quiz.ResultsReleasedAt,
		quiz.StartNotifiedAt,
		quiz.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update quiz: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return replaceQuizGroups(ctx, q, quiz)
}

func replaceQuizGroups(ctx context.Context, q querier, quiz *domain.Quiz) error {
	if _, err := q.Exec(ctx, `DELETE FROM quiz_groups WHERE quiz_id = $1`, quiz.ID); err != nil {
		return fmt.Errorf("clear quiz groups: %w", err)
	}
	if len(quiz.GroupIDs) == 0 {
		return nil
	}
	_, err := q.Exec(ctx, `
		INSERT INTO quiz_groups (quiz_id, group_id)
		SELECT $1, unnest($2::uuid[])
	`, quiz.ID, quiz.GroupIDs)
	if err != nil {
		return fmt.Errorf("insert quiz groups: %w", err)
	}
	return nil
}

func scanQuiz(row pgx.Row) (*domain.Quiz, error) {
	var quiz domain.Quiz
	err := row.Scan(
		&quiz.ID,
		&quiz.Title,
		&quiz.OwnerID,
		&quiz.Status,
		&quiz.AvailableFrom,
		&quiz.AvailableTo,
		&quiz.ResultsReleased,
		&quiz.ShowResultsImmediately,
		&quiz.PublishedAt,
		&quiz.ClosedAt,
		&quiz.ResultsReleasedAt,
		&quiz.StartNotifiedAt,
		&quiz.CreatedAt,
		&quiz.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan quiz: %w", err)
	}
	return &quiz, nil
}
