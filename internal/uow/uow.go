// Package uow реализует единицу работы: транзакцию над хранилищем
// со сбором доменных событий и их рассылкой после коммита.
package uow

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
)

// Tx — операции, доступные внутри единицы работы.
//
// Методы сохранения агрегатов (SaveQuiz, AddNotifications) собирают
// их события в буфер текущей единицы работы.
type Tx interface {
	// Quiz загружает квиз с блокировкой строки до конца транзакции.
	Quiz(ctx context.Context, id uuid.UUID) (*domain.Quiz, error)
	CreateQuiz(ctx context.Context, q *domain.Quiz) error
	SaveQuiz(ctx context.Context, q *domain.Quiz) error

	AddNotifications(ctx context.Context, ns []*domain.Notification) error

	// CreateSubmission возвращает repo.ErrAlreadyExists при повторной попытке
	// того же студента по тому же квизу.
	CreateSubmission(ctx context.Context, s *domain.Submission) error
	Submission(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	SaveSubmission(ctx context.Context, s *domain.Submission) error
	ListSubmissions(ctx context.Context, quizID uuid.UUID) ([]*domain.Submission, error)
}

// Store — транзакционное хранилище.
//
// InTx выполняет fn в одной транзакции. События агрегатов, сохранённых
// через Tx, складываются в buf. При ошибке fn транзакция откатывается.
type Store interface {
	InTx(ctx context.Context, buf *events.Buffer, fn func(ctx context.Context, tx Tx) error) error
}

// Manager — запускает единицы работы и рассылает события после коммита.
type Manager struct {
	store      Store
	dispatcher *events.Dispatcher
	logger     *slog.Logger
}

// NewManager создаёт Manager. dispatcher может быть nil (события не рассылаются).
func NewManager(store Store, dispatcher *events.Dispatcher, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, dispatcher: dispatcher, logger: logger}
}

type options struct {
	suppress bool
}

// Option — параметр единицы работы.
type Option func(*options)

// WithoutEvents подавляет сбор и рассылку событий для этого коммита.
// Используется обработчиками событий, создающими вторичные сущности.
func WithoutEvents() Option {
	return func(o *options) { o.suppress = true }
}

// Do выполняет fn в транзакции.
//
//  1. Создаёт буфер событий для этой единицы работы
//  2. При WithoutEvents включает подавление (снимается на всех путях выхода)
//  3. Коммитит через Store.InTx
//  4. После успешного коммита передаёт события диспетчеру
//
// Ошибки обработчиков событий не влияют на результат Do:
// состояние уже закоммичено.
func (m *Manager) Do(ctx context.Context, fn func(ctx context.Context, tx Tx) error, opts ...Option) error {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	buf := events.NewBuffer()
	if o.suppress {
		release := buf.Suppress()
		defer release()
	}

	if err := m.store.InTx(ctx, buf, fn); err != nil {
		buf.Reset()
		return err
	}

	evts := buf.Drain()
	if o.suppress && buf.Dropped() > 0 {
		m.logger.Debug("events suppressed for commit", "dropped", buf.Dropped())
	}
	if len(evts) == 0 || m.dispatcher == nil {
		return nil
	}

	if failed := m.dispatcher.Dispatch(ctx, evts); failed > 0 {
		m.logger.Warn("some event handlers failed after commit",
			"events", len(evts),
			"failed", failed,
		)
	}
	return nil
}

// Dispatcher возвращает диспетчер событий.
func (m *Manager) Dispatcher() *events.Dispatcher {
	return m.dispatcher
}
