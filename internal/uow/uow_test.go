package uow_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/repo/memory"
	"github.com/shaiso/quizflow/internal/uow"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	store *memory.Store
	mgr   *uow.Manager
	calls int
	err   error
}

func newHarness(t *testing.T) (*harness, uuid.UUID) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := &harness{store: memory.New()}

	d := events.NewDispatcher(logger)
	d.Register(domain.EventQuizPublished, "count", func(ctx context.Context, evt domain.Event) error {
		h.calls++
		return h.err
	})
	h.mgr = uow.NewManager(h.store, d, logger)

	q := domain.NewQuiz("Chemistry", uuid.New(), t0)
	q.AssignGroup(uuid.New())
	q.SetWindow(t0.Add(time.Hour), nil)
	err := h.mgr.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
		return tx.CreateQuiz(ctx, q)
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return h, q.ID
}

func publish(quizID uuid.UUID, after error) func(ctx context.Context, tx uow.Tx) error {
	return func(ctx context.Context, tx uow.Tx) error {
		q, err := tx.Quiz(ctx, quizID)
		if err != nil {
			return err
		}
		if err := q.Publish(t0); err != nil {
			return err
		}
		if err := tx.SaveQuiz(ctx, q); err != nil {
			return err
		}
		return after
	}
}

func (h *harness) status(t *testing.T, id uuid.UUID) domain.QuizStatus {
	t.Helper()
	q, err := h.store.GetQuiz(context.Background(), id)
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	return q.Status
}

// --- Commit and dispatch ---

func TestDo_DispatchesAfterCommit(t *testing.T) {
	h, id := newHarness(t)

	if err := h.mgr.Do(context.Background(), publish(id, nil)); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.calls != 1 {
		t.Errorf("expected 1 handler call, got %d", h.calls)
	}
	if h.status(t, id) != domain.QuizStatusPublished {
		t.Error("expected quiz committed as PUBLISHED")
	}
}

func TestDo_FailedUnitDispatchesNothing(t *testing.T) {
	h, id := newHarness(t)
	boom := errors.New("boom")

	err := h.mgr.Do(context.Background(), publish(id, boom))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if h.calls != 0 {
		t.Errorf("rolled back unit must not dispatch, calls=%d", h.calls)
	}
	if h.status(t, id) != domain.QuizStatusDraft {
		t.Error("expected quiz to stay DRAFT after rollback")
	}
}

func TestDo_HandlerErrorKeepsCommit(t *testing.T) {
	h, id := newHarness(t)
	h.err = errors.New("handler failed")

	if err := h.mgr.Do(context.Background(), publish(id, nil)); err != nil {
		t.Fatalf("handler error must not surface from Do, got %v", err)
	}
	if h.calls != 1 {
		t.Errorf("expected handler to run, calls=%d", h.calls)
	}
	if h.status(t, id) != domain.QuizStatusPublished {
		t.Error("expected quiz committed despite handler error")
	}
}

// --- Suppression ---

func TestDo_WithoutEventsSkipsDispatch(t *testing.T) {
	h, id := newHarness(t)

	if err := h.mgr.Do(context.Background(), publish(id, nil), uow.WithoutEvents()); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if h.calls != 0 {
		t.Errorf("suppressed unit must not dispatch, calls=%d", h.calls)
	}
	if h.status(t, id) != domain.QuizStatusPublished {
		t.Error("suppression must not affect the commit")
	}
}

func TestDo_SuppressionReleasedOnPanic(t *testing.T) {
	h, id := newHarness(t)

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = h.mgr.Do(context.Background(), func(ctx context.Context, tx uow.Tx) error {
			panic("boom")
		}, uow.WithoutEvents())
	}()

	// Хранилище и диспетчер пригодны для следующей единицы работы.
	if err := h.mgr.Do(context.Background(), publish(id, nil)); err != nil {
		t.Fatalf("Do after panic: %v", err)
	}
	if h.calls != 1 {
		t.Errorf("expected dispatch after panicking suppressed unit, calls=%d", h.calls)
	}
}
