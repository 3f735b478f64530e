package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/repo/memory"
	"github.com/shaiso/quizflow/internal/uow"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeQueue struct {
	mu      sync.Mutex
	batches []domain.EmailBatch
	err     error
	block   bool
}

func (q *fakeQueue) EnqueueEmailBatch(ctx context.Context, batch domain.EmailBatch) error {
	if q.block {
		<-ctx.Done()
		return ctx.Err()
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.batches = append(q.batches, batch)
	return nil
}

type fixture struct {
	store   *memory.Store
	queue   *fakeQueue
	svc     *Service
	quiz    *domain.Quiz
	created int // вызовы обработчика NotificationCreated
	users   []domain.User
}

// newFixture — квиз с 3 студентами в двух группах, 2 из них подписаны на email.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.New(), queue: &fakeQueue{}}

	g1, g2 := uuid.New(), uuid.New()
	f.users = []domain.User{
		{ID: uuid.New(), Name: "Alice", Email: "alice@example.com", Role: domain.RoleStudent, EmailNotifications: true},
		{ID: uuid.New(), Name: "Bob", Email: "bob@example.com", Role: domain.RoleStudent, EmailNotifications: true},
		{ID: uuid.New(), Name: "Carol", Email: "carol@example.com", Role: domain.RoleStudent},
	}
	for _, u := range f.users {
		f.store.AddUser(u)
		f.store.AddGroupMember(g1, u.ID)
	}
	f.store.AddGroupMember(g2, f.users[0].ID)

	f.quiz = domain.NewQuiz("Physics", uuid.New(), t0)
	f.quiz.AssignGroup(g1)
	f.quiz.AssignGroup(g2)
	if err := f.store.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.CreateQuiz(ctx, f.quiz)
	}); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}

	d := events.NewDispatcher(testLogger())
	d.Register(domain.EventNotificationCreated, "count", func(ctx context.Context, evt domain.Event) error {
		f.created++
		return nil
	})

	f.svc = New(Config{
		UnitOfWork:   uow.NewManager(f.store, d, testLogger()),
		Recipients:   f.store,
		EmailQueue:   f.queue,
		Store:        f.store,
		Clock:        clock.NewFixed(t0),
		EmailTimeout: 50 * time.Millisecond,
		Logger:       testLogger(),
	})
	return f
}

// --- FanOut ---

func TestFanOut_NotificationsAndSingleBatch(t *testing.T) {
	f := newFixture(t)

	res := f.svc.FanOut(context.Background(), KindQuizStarted, f.quiz, nil)

	if res.Recipients != 3 || res.Notifications != 3 || res.Emails != 2 {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.store.CountNotifications() != 3 {
		t.Errorf("expected 3 notification rows, got %d", f.store.CountNotifications())
	}
	if len(f.queue.batches) != 1 {
		t.Fatalf("expected 1 email batch, got %d", len(f.queue.batches))
	}
	batch := f.queue.batches[0]
	if len(batch.Messages) != 2 {
		t.Errorf("expected 2 messages, got %d", len(batch.Messages))
	}
	for _, m := range batch.Messages {
		if m.TemplateID != "quiz-started" || m.Variables["quiz_title"] != "Physics" {
			t.Errorf("unexpected message: %+v", m)
		}
	}
}

// recordingStore запоминает уведомления, переданные в AddNotifications.
type recordingStore struct {
	*memory.Store
	added []*domain.Notification
}

type recordingTx struct {
	uow.Tx
	s *recordingStore
}

func (r *recordingStore) InTx(ctx context.Context, buf *events.Buffer, fn func(ctx context.Context, tx uow.Tx) error) error {
	return r.Store.InTx(ctx, buf, func(ctx context.Context, tx uow.Tx) error {
		return fn(ctx, recordingTx{Tx: tx, s: r})
	})
}

func (t recordingTx) AddNotifications(ctx context.Context, ns []*domain.Notification) error {
	t.s.added = append(t.s.added, ns...)
	return t.Tx.AddNotifications(ctx, ns)
}

func TestFanOut_DataPerRecipient(t *testing.T) {
	f := newFixture(t)
	rec := &recordingStore{Store: f.store}
	svc := New(Config{
		UnitOfWork: uow.NewManager(rec, nil, testLogger()),
		Recipients: f.store,
		Store:      f.store,
		Clock:      clock.NewFixed(t0),
		Logger:     testLogger(),
	})

	svc.FanOut(context.Background(), KindQuizStarted, f.quiz, nil)

	if len(rec.added) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(rec.added))
	}
	rec.added[0].Data["extra"] = "x"
	for _, n := range rec.added[1:] {
		if _, ok := n.Data["extra"]; ok {
			t.Fatal("notifications of one fan-out share a data map")
		}
		if n.Data["quiz_id"] != f.quiz.ID.String() {
			t.Errorf("unexpected data: %v", n.Data)
		}
	}
}

func TestFanOut_SuppressesNotificationEvents(t *testing.T) {
	f := newFixture(t)

	f.svc.FanOut(context.Background(), KindQuizEnded, f.quiz, nil)

	if f.created != 0 {
		t.Errorf("notification events must not be dispatched, got %d", f.created)
	}
}

func TestFanOut_QueueFailureKeepsNotifications(t *testing.T) {
	f := newFixture(t)
	f.queue.err = errors.New("broker down")

	res := f.svc.FanOut(context.Background(), KindResultsReleased, f.quiz, nil)

	if res.Notifications != 3 || res.Emails != 0 {
		t.Errorf("unexpected result: %+v", res)
	}
	if f.store.CountNotifications() != 3 {
		t.Errorf("notifications must survive email failure, got %d", f.store.CountNotifications())
	}
}

func TestFanOut_QueueTimeout(t *testing.T) {
	f := newFixture(t)
	f.queue.block = true

	done := make(chan Result, 1)
	go func() { done <- f.svc.FanOut(context.Background(), KindQuizStarted, f.quiz, nil) }()

	select {
	case res := <-done:
		if res.Emails != 0 || res.Notifications != 3 {
			t.Errorf("unexpected result: %+v", res)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("fan-out must not block on a stuck email queue")
	}
}

func TestFanOut_NoRecipients(t *testing.T) {
	f := newFixture(t)
	empty := domain.NewQuiz("Empty", uuid.New(), t0)

	res := f.svc.FanOut(context.Background(), KindQuizStarted, empty, nil)

	if res != (Result{}) {
		t.Errorf("expected empty result, got %+v", res)
	}
	if len(f.queue.batches) != 0 {
		t.Error("no batch expected without recipients")
	}
}

func TestFanOut_ActorRecorded(t *testing.T) {
	f := newFixture(t)
	actor := uuid.New()

	f.svc.FanOut(context.Background(), KindResultsReleased, f.quiz, &actor)

	ns, _ := f.svc.ListForUser(context.Background(), repo.NotificationFilter{UserID: f.users[0].ID})
	if len(ns) != 1 {
		t.Fatalf("expected 1 notification for Alice, got %d", len(ns))
	}
	if ns[0].ActorUserID == nil || *ns[0].ActorUserID != actor {
		t.Errorf("expected actor %s, got %v", actor, ns[0].ActorUserID)
	}
	if ns[0].Data["quiz_id"] != f.quiz.ID.String() {
		t.Errorf("expected quiz_id in data, got %v", ns[0].Data)
	}
}

// --- Read state ---

func TestMarkReadUnread(t *testing.T) {
	f := newFixture(t)
	f.svc.FanOut(context.Background(), KindQuizStarted, f.quiz, nil)
	alice := f.users[0].ID

	ns, _ := f.svc.ListForUser(context.Background(), repo.NotificationFilter{UserID: alice})
	if err := f.svc.MarkRead(context.Background(), ns[0].ID, alice); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	unread, _ := f.svc.ListForUser(context.Background(), repo.NotificationFilter{UserID: alice, UnreadOnly: true})
	if len(unread) != 0 {
		t.Errorf("expected no unread, got %d", len(unread))
	}

	if err := f.svc.MarkUnread(context.Background(), ns[0].ID, alice); err != nil {
		t.Fatalf("MarkUnread: %v", err)
	}
	unread, _ = f.svc.ListForUser(context.Background(), repo.NotificationFilter{UserID: alice, UnreadOnly: true})
	if len(unread) != 1 {
		t.Errorf("expected 1 unread, got %d", len(unread))
	}

	if err := f.svc.MarkRead(context.Background(), ns[0].ID, f.users[1].ID); !errors.Is(err, repo.ErrNotFound) {
		t.Errorf("expected ErrNotFound for another user, got %v", err)
	}
}
