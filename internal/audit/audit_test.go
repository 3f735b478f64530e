package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/repo/memory"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newLogger(users UserDirectory, store ActivityStore) *Logger {
	return New(Config{
		Users:         users,
		Store:         store,
		Clock:         clock.NewFixed(t0),
		LookupTimeout: 20 * time.Millisecond,
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

type slowDirectory struct{}

func (slowDirectory) DisplayName(ctx context.Context, _ uuid.UUID) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type failingStore struct{}

func (failingStore) AppendActivity(context.Context, *domain.Activity) error {
	return errors.New("disk full")
}

func (failingStore) ListActivities(context.Context, int) ([]*domain.Activity, error) {
	return nil, nil
}

func TestLogActivity_ResolvesName(t *testing.T) {
	store := memory.New()
	user := domain.User{ID: uuid.New(), Name: "Dr. Smith", Role: domain.RoleInstructor}
	store.AddUser(user)
	l := newLogger(store, store)

	quizID := uuid.New()
	a, err := l.LogActivity(context.Background(), Entry{
		Type:          domain.ActivityQuizPublished,
		Description:   "Published quiz",
		PerformedByID: &user.ID,
		Role:          domain.RoleInstructor,
		TargetID:      &quizID,
		TargetType:    "quiz",
		TargetName:    "Algebra",
	})
	if err != nil {
		t.Fatalf("LogActivity: %v", err)
	}
	if a.PerformedByName != "Dr. Smith" || a.PerformedByRole != domain.RoleInstructor {
		t.Errorf("unexpected performer: %+v", a)
	}
	if !a.CreatedAt.Equal(t0) {
		t.Errorf("expected created_at from clock, got %v", a.CreatedAt)
	}

	recent, _ := l.Recent(context.Background(), 10)
	if len(recent) != 1 || recent[0].TargetName != "Algebra" {
		t.Errorf("unexpected journal: %+v", recent)
	}
}

func TestLogActivity_UnknownUserFallsBackToSystem(t *testing.T) {
	store := memory.New()
	l := newLogger(store, store)
	unknown := uuid.New()

	a, err := l.LogActivity(context.Background(), Entry{Type: domain.ActivityQuizClosed, PerformedByID: &unknown})
	if err != nil {
		t.Fatalf("LogActivity: %v", err)
	}
	if a.PerformedByName != domain.SystemName {
		t.Errorf("expected %q, got %q", domain.SystemName, a.PerformedByName)
	}
}

func TestLogActivity_NoPerformer(t *testing.T) {
	store := memory.New()
	l := newLogger(store, store)

	a, _ := l.LogActivity(context.Background(), Entry{Type: domain.ActivityQuizAutoClosed})
	if a.PerformedByName != domain.SystemName || a.PerformedByRole != domain.RoleSystem {
		t.Errorf("expected system performer, got %+v", a)
	}
}

func TestLogActivity_LookupTimeout(t *testing.T) {
	store := memory.New()
	l := newLogger(slowDirectory{}, store)
	id := uuid.New()

	start := time.Now()
	a, err := l.LogActivity(context.Background(), Entry{Type: domain.ActivityQuizClosed, PerformedByID: &id})
	if err != nil {
		t.Fatalf("LogActivity: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("lookup must be bounded by timeout")
	}
	if a.PerformedByName != domain.SystemName {
		t.Errorf("expected fallback name, got %q", a.PerformedByName)
	}
}

func TestLogActivity_StoreError(t *testing.T) {
	l := newLogger(nil, failingStore{})
	if _, err := l.LogActivity(context.Background(), Entry{Type: domain.ActivityQuizClosed}); err == nil {
		t.Error("expected append error")
	}
}
