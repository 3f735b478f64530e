package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/uow"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seedQuiz(t *testing.T, s *Store) *domain.Quiz {
	t.Helper()
	q := domain.NewQuiz("Algebra", uuid.New(), t0)
	q.AssignGroup(uuid.New())
	err := s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.CreateQuiz(ctx, q)
	})
	if err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return q
}

// --- Transactions ---

func TestInTx_RollbackDiscardsChanges(t *testing.T) {
	s := New()
	q := seedQuiz(t, s)

	boom := errors.New("boom")
	err := s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		loaded, err := tx.Quiz(ctx, q.ID)
		if err != nil {
			return err
		}
		loaded.Title = "changed"
		if err := tx.SaveQuiz(ctx, loaded); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := s.GetQuiz(context.Background(), q.ID)
	if got.Title != "Algebra" {
		t.Errorf("rolled back change leaked: title=%q", got.Title)
	}
}

func TestInTx_CollectsEvents(t *testing.T) {
	s := New()
	q := seedQuiz(t, s)

	buf := events.NewBuffer()
	err := s.InTx(context.Background(), buf, func(ctx context.Context, tx uow.Tx) error {
		loaded, err := tx.Quiz(ctx, q.ID)
		if err != nil {
			return err
		}
		loaded.SetWindow(t0.Add(time.Hour), nil)
		if err := loaded.Publish(t0); err != nil {
			return err
		}
		return tx.SaveQuiz(ctx, loaded)
	})
	if err != nil {
		t.Fatalf("InTx: %v", err)
	}
	if buf.Len() != 1 {
		t.Errorf("expected 1 buffered event, got %d", buf.Len())
	}
}

func TestCreateSubmission_Unique(t *testing.T) {
	s := New()
	q := seedQuiz(t, s)
	student := uuid.New()

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
				return tx.CreateSubmission(ctx, domain.NewSubmission(q.ID, student, t0))
			})
		}(i)
	}
	wg.Wait()

	var ok, dup int
	for _, err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, repo.ErrAlreadyExists):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if ok != 1 || dup != 1 {
		t.Errorf("expected one success and one duplicate, got ok=%d dup=%d", ok, dup)
	}

	subs, _ := s.ListSubmissionsByQuiz(context.Background(), q.ID)
	if len(subs) != 1 {
		t.Errorf("expected 1 submission row, got %d", len(subs))
	}
}

// --- Jobs ---

func TestInsertJob_Idempotent(t *testing.T) {
	s := New()
	target := uuid.New()
	fire := t0.Add(time.Hour)

	id1, _ := s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizStart, target, fire, nil, t0))
	id2, _ := s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizStart, target, fire, nil, t0))

	if id1 != id2 {
		t.Errorf("expected same job id for duplicate insert, got %s and %s", id1, id2)
	}
	jobs, _ := s.ListJobs(context.Background(), repo.JobFilter{})
	if len(jobs) != 1 {
		t.Errorf("expected 1 job, got %d", len(jobs))
	}
}

func TestFetchDue_ClaimsOnce(t *testing.T) {
	s := New()
	for i := 0; i < 3; i++ {
		_, _ = s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizStart, uuid.New(), t0, nil, t0))
	}
	_, _ = s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizStart, uuid.New(), t0.Add(time.Hour), nil, t0))

	first, _ := s.FetchDue(context.Background(), t0, 10, time.Minute)
	second, _ := s.FetchDue(context.Background(), t0, 10, time.Minute)

	if len(first) != 3 {
		t.Errorf("expected 3 due jobs, got %d", len(first))
	}
	if len(second) != 0 {
		t.Errorf("claimed jobs must not be handed out again, got %d", len(second))
	}

	// Истёкшая аренда возвращает задачу в выборку.
	again, _ := s.FetchDue(context.Background(), t0.Add(2*time.Minute), 10, time.Minute)
	if len(again) != 3 {
		t.Errorf("expected 3 jobs after lease expiry, got %d", len(again))
	}
	if again[0].Attempts != 2 {
		t.Errorf("expected attempts=2, got %d", again[0].Attempts)
	}
}

func TestFetchDue_OrderedByFireAt(t *testing.T) {
	s := New()
	early := domain.NewJob(domain.JobTypeQuizStart, uuid.New(), t0.Add(-2*time.Hour), nil, t0)
	early.NextAttemptAt = t0 // повтор после backoff
	late := domain.NewJob(domain.JobTypeQuizStart, uuid.New(), t0.Add(-time.Hour), nil, t0)
	_, _ = s.InsertJob(context.Background(), late)
	_, _ = s.InsertJob(context.Background(), early)

	got, _ := s.FetchDue(context.Background(), t0, 1, time.Minute)
	if len(got) != 1 || got[0].ID != early.ID {
		t.Errorf("expected job with earliest fire_at claimed first, got %+v", got)
	}
}

func TestCancelJobs(t *testing.T) {
	s := New()
	target := uuid.New()
	_, _ = s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizAutoClose, target, t0.Add(time.Hour), nil, t0))
	_, _ = s.InsertJob(context.Background(), domain.NewJob(domain.JobTypeQuizStart, target, t0.Add(time.Hour), nil, t0))

	n, err := s.CancelJobs(context.Background(), domain.JobTypeQuizAutoClose, target, t0)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 cancelled, got %d (err=%v)", n, err)
	}
	jobs, _ := s.ListJobs(context.Background(), repo.JobFilter{Status: domain.JobStatusCancelled})
	if len(jobs) != 1 || jobs[0].Type != domain.JobTypeQuizAutoClose {
		t.Errorf("unexpected cancelled jobs: %+v", jobs)
	}
}

// --- Recipients & notifications ---

func TestQuizRecipients_Deduplicated(t *testing.T) {
	s := New()
	g1, g2 := uuid.New(), uuid.New()
	alice := domain.User{ID: uuid.New(), Name: "Alice", Email: "a@example.com", Role: domain.RoleStudent, EmailNotifications: true}
	bob := domain.User{ID: uuid.New(), Name: "Bob", Role: domain.RoleStudent}
	instructor := domain.User{ID: uuid.New(), Name: "Instructor", Role: domain.RoleInstructor}
	s.AddUser(alice)
	s.AddUser(bob)
	s.AddUser(instructor)
	s.AddGroupMember(g1, alice.ID)
	s.AddGroupMember(g1, instructor.ID)
	s.AddGroupMember(g2, alice.ID)
	s.AddGroupMember(g2, bob.ID)

	q := domain.NewQuiz("Q", instructor.ID, t0)
	q.AssignGroup(g1)
	q.AssignGroup(g2)
	_ = s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.CreateQuiz(ctx, q)
	})

	got, err := s.QuizRecipients(context.Background(), q.ID)
	if err != nil {
		t.Fatalf("QuizRecipients: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 recipients, got %d", len(got))
	}
	if !got[0].EmailOptIn || got[1].EmailOptIn {
		t.Errorf("unexpected opt-in flags: %+v", got)
	}
}

func TestNotifications_ReadAndRetention(t *testing.T) {
	s := New()
	user := uuid.New()
	old := domain.NewNotification(user, nil, "quiz_started", "t", "b", nil, t0)
	fresh := domain.NewNotification(user, nil, "quiz_started", "t", "b", nil, t0.Add(48*time.Hour))

	_ = s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.AddNotifications(ctx, []*domain.Notification{old, fresh})
	})

	if err := s.SetNotificationRead(context.Background(), old.ID, user, true, t0); err != nil {
		t.Fatalf("SetNotificationRead: %v", err)
	}
	if err := s.SetNotificationRead(context.Background(), old.ID, uuid.New(), true, t0); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign user, got %v", err)
	}

	unread, _ := s.ListNotifications(context.Background(), repo.NotificationFilter{UserID: user, UnreadOnly: true})
	if len(unread) != 1 || unread[0].ID != fresh.ID {
		t.Errorf("expected only fresh notification unread, got %+v", unread)
	}

	n, _ := s.DeleteReadNotificationsBefore(context.Background(), t0.Add(24*time.Hour))
	if n != 1 || s.CountNotifications() != 1 {
		t.Errorf("expected 1 deleted and 1 left, got deleted=%d left=%d", n, s.CountNotifications())
	}
}

func TestNotifications_DataNotAliased(t *testing.T) {
	s := New()
	user := uuid.New()
	data := map[string]string{"quiz_id": "q1"}
	n := domain.NewNotification(user, nil, "quiz_started", "t", "b", data, t0)
	_ = s.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.AddNotifications(ctx, []*domain.Notification{n})
	})

	data["quiz_id"] = "changed"
	got, _ := s.ListNotifications(context.Background(), repo.NotificationFilter{UserID: user})
	if len(got) != 1 || got[0].Data["quiz_id"] != "q1" {
		t.Fatalf("stored data changed through caller map: %+v", got)
	}

	got[0].Data["quiz_id"] = "listed"
	again, _ := s.ListNotifications(context.Background(), repo.NotificationFilter{UserID: user})
	if again[0].Data["quiz_id"] != "q1" {
		t.Errorf("stored data changed through listed copy: %v", again[0].Data)
	}
}
