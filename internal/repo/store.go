package repo

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/uow"
)

var _ uow.Store = (*Store)(nil)

// Store — транзакционное хранилище на PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore создаёт новый Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx выполняет fn в транзакции READ COMMITTED.
// Квизы, прочитанные через Tx.Quiz, блокируются до конца транзакции.
func (s *Store) InTx(ctx context.Context, buf *events.Buffer, fn func(ctx context.Context, tx uow.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &pgTx{tx: tx, buf: buf}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type pgTx struct {
	tx  pgx.Tx
	buf *events.Buffer
}

func (t *pgTx) Quiz(ctx context.Context, id uuid.UUID) (*domain.Quiz, error) {
	return getQuiz(ctx, t.tx, id, true)
}

func (t *pgTx) CreateQuiz(ctx context.Context, q *domain.Quiz) error {
	if err := insertQuiz(ctx, t.tx, q); err != nil {
		return err
	}
	t.buf.Collect(q)
	return nil
}

func (t *pgTx) SaveQuiz(ctx context.Context, q *domain.Quiz) error {
	if err := updateQuiz(ctx, t.tx, q); err != nil {
		return err
	}
	t.buf.Collect(q)
	return nil
}

func (t *pgTx) AddNotifications(ctx context.Context, ns []*domain.Notification) error {
	if err := insertNotifications(ctx, t.tx, ns); err != nil {
		return err
	}
	for _, n := range ns {
		t.buf.Collect(n)
	}
	return nil
}

func (t *pgTx) CreateSubmission(ctx context.Context, s *domain.Submission) error {
	return insertSubmission(ctx, t.tx, s)
}

func (t *pgTx) Submission(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	return getSubmission(ctx, t.tx, id)
}

func (t *pgTx) SaveSubmission(ctx context.Context, s *domain.Submission) error {
	return updateSubmission(ctx, t.tx, s)
}

func (t *pgTx) ListSubmissions(ctx context.Context, quizID uuid.UUID) ([]*domain.Submission, error) {
	return listSubmissions(ctx, t.tx, quizID)
}
