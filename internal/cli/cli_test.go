package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/app"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/repo/memory"
	"github.com/shaiso/quizflow/internal/uow"
	"github.com/spf13/cobra"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeQueue struct {
	batches []domain.EmailBatch
}

func (q *fakeQueue) EnqueueEmailBatch(_ context.Context, batch domain.EmailBatch) error {
	q.batches = append(q.batches, batch)
	return nil
}

type testEnv struct {
	store  *memory.Store
	queue  *fakeQueue
	svc    *app.Services
	stdout *bytes.Buffer
	stderr *bytes.Buffer
	root   *cobra.Command
}

func newTestEnv(t *testing.T, jsonMode bool) *testEnv {
	t.Helper()
	e := &testEnv{store: memory.New(), queue: &fakeQueue{}, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	e.svc = app.New(app.MemoryStores(e.store), app.Options{
		EmailQueue: e.queue,
		Clock:      clock.NewFixed(t0),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	appFn := func(context.Context) (*App, error) {
		return &App{
			Lifecycle:     e.svc.Lifecycle,
			Scheduler:     e.svc.Scheduler,
			Notifications: e.svc.Notifications,
			Audit:         e.svc.Audit,
		}, nil
	}
	outputFn := func() *Output { return NewOutputTo(jsonMode, e.stdout, e.stderr) }

	e.root = &cobra.Command{Use: "quizflow", SilenceUsage: true, SilenceErrors: true}
	e.root.AddCommand(
		NewQuizCmd(appFn, outputFn),
		NewJobsCmd(appFn, outputFn),
		NewNotificationsCmd(appFn, outputFn),
		NewActivityCmd(appFn, outputFn),
	)
	return e
}

func (e *testEnv) run(t *testing.T, args ...string) error {
	t.Helper()
	e.stdout.Reset()
	e.stderr.Reset()
	e.root.SetArgs(args)
	return e.root.ExecuteContext(context.Background())
}

func (e *testEnv) draft(t *testing.T) *domain.Quiz {
	t.Helper()
	q := domain.NewQuiz("Biology", uuid.New(), t0)
	q.AssignGroup(uuid.New())
	q.SetWindow(t0.Add(time.Hour), nil)
	err := e.store.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.CreateQuiz(ctx, q)
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	return q
}

// --- quiz ---

func TestQuizPublish_JSON(t *testing.T) {
	e := newTestEnv(t, true)
	q := e.draft(t)
	admin := uuid.New()
	e.store.AddUser(domain.User{ID: admin, Name: "Root", Role: domain.RoleAdmin})

	if err := e.run(t, "quiz", "publish", q.ID.String(), "--actor", admin.String()); err != nil {
		t.Fatalf("quiz publish: %v", err)
	}

	var got domain.Quiz
	if err := json.Unmarshal(e.stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode output: %v\n%s", err, e.stdout)
	}
	if got.Status != domain.QuizStatusPublished {
		t.Errorf("expected PUBLISHED, got %s", got.Status)
	}

	activities, _ := e.store.ListActivities(context.Background(), 1)
	if len(activities) != 1 || activities[0].PerformedByName != "Root" {
		t.Errorf("expected activity by Root, got %+v", activities)
	}
}

func TestQuizClose_DraftFails(t *testing.T) {
	e := newTestEnv(t, false)
	q := e.draft(t)

	err := e.run(t, "quiz", "close", q.ID.String())
	if err == nil || !strings.Contains(err.Error(), "invalid state") {
		t.Errorf("expected invalid state error, got %v", err)
	}
}

func TestQuizRelease_EnqueuesEmails(t *testing.T) {
	e := newTestEnv(t, false)
	q := e.draft(t)
	student := domain.User{ID: uuid.New(), Name: "Alice", Email: "alice@example.com", Role: domain.RoleStudent, EmailNotifications: true}
	e.store.AddUser(student)
	e.store.AddGroupMember(q.GroupIDs[0], student.ID)

	for _, op := range []string{"publish", "close", "release"} {
		if err := e.run(t, "quiz", op, q.ID.String()); err != nil {
			t.Fatalf("quiz %s: %v", op, err)
		}
	}

	if len(e.queue.batches) != 1 || len(e.queue.batches[0].Messages) != 1 {
		t.Fatalf("expected one results email batch, got %+v", e.queue.batches)
	}
	if got := e.queue.batches[0].Messages[0].TemplateID; got != "quiz-results-released" {
		t.Errorf("unexpected template: %s", got)
	}
}

func TestQuiz_InvalidID(t *testing.T) {
	e := newTestEnv(t, false)
	if err := e.run(t, "quiz", "publish", "not-a-uuid"); err == nil {
		t.Error("expected error for invalid id")
	}
}

// --- jobs ---

func TestJobs_ListCancelRetry(t *testing.T) {
	e := newTestEnv(t, false)
	q := e.draft(t)
	if err := e.run(t, "quiz", "publish", q.ID.String()); err != nil {
		t.Fatalf("quiz publish: %v", err)
	}

	if err := e.run(t, "jobs", "list", "--target", q.ID.String()); err != nil {
		t.Fatalf("jobs list: %v", err)
	}
	if !strings.Contains(e.stdout.String(), domain.JobTypeQuizStart) || !strings.Contains(e.stdout.String(), "PENDING") {
		t.Errorf("unexpected table:\n%s", e.stdout)
	}

	if err := e.run(t, "jobs", "cancel", "--type", domain.JobTypeQuizStart, "--target", q.ID.String()); err != nil {
		t.Fatalf("jobs cancel: %v", err)
	}
	if !strings.Contains(e.stderr.String(), "Cancelled 1 job(s)") {
		t.Errorf("unexpected message: %s", e.stderr)
	}

	jobs, _ := e.svc.Scheduler.List(context.Background(), repo.JobFilter{TargetID: &q.ID})
	if len(jobs) != 1 || jobs[0].Status != domain.JobStatusCancelled {
		t.Fatalf("expected cancelled job, got %+v", jobs)
	}

	if err := e.run(t, "jobs", "retry", jobs[0].ID.String()); err != nil {
		t.Fatalf("jobs retry: %v", err)
	}
	job, _ := e.svc.Scheduler.Get(context.Background(), jobs[0].ID)
	if job.Status != domain.JobStatusPending || job.Attempts != 0 {
		t.Errorf("expected requeued job, got %+v", job)
	}

	activities, _ := e.store.ListActivities(context.Background(), 10)
	var types []string
	for _, a := range activities {
		types = append(types, a.Type)
	}
	if len(types) < 2 || types[0] != domain.ActivityJobRetried || types[1] != domain.ActivityJobsCancelled {
		t.Errorf("unexpected activity log: %v", types)
	}
}

func TestJobs_RetryPendingFails(t *testing.T) {
	e := newTestEnv(t, false)
	q := e.draft(t)
	_ = e.run(t, "quiz", "publish", q.ID.String())
	jobs, _ := e.svc.Scheduler.List(context.Background(), repo.JobFilter{TargetID: &q.ID})

	if err := e.run(t, "jobs", "retry", jobs[0].ID.String()); err == nil {
		t.Error("expected error retrying a pending job")
	}
}

func TestJobs_CancelRequiresFlags(t *testing.T) {
	e := newTestEnv(t, false)
	if err := e.run(t, "jobs", "cancel", "--type", domain.JobTypeQuizStart); err == nil {
		t.Error("expected error without --target")
	}
}

// --- notifications ---

func TestNotifications_ListAndMark(t *testing.T) {
	e := newTestEnv(t, true)
	user := uuid.New()
	n := domain.NewNotification(user, nil, "quiz_started", "Quiz started", "b", nil, t0)
	_ = e.store.InTx(context.Background(), events.NewBuffer(), func(ctx context.Context, tx uow.Tx) error {
		return tx.AddNotifications(ctx, []*domain.Notification{n})
	})

	if err := e.run(t, "notifications", "read", n.ID.String(), "--user", user.String()); err != nil {
		t.Fatalf("notifications read: %v", err)
	}
	if err := e.run(t, "notifications", "list", "--user", user.String(), "--unread"); err != nil {
		t.Fatalf("notifications list: %v", err)
	}
	var got []domain.Notification
	if err := json.Unmarshal(e.stdout.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v\n%s", err, e.stdout)
	}
	if len(got) != 0 {
		t.Errorf("expected no unread notifications, got %d", len(got))
	}

	if err := e.run(t, "notifications", "read", n.ID.String(), "--user", uuid.NewString()); err == nil {
		t.Error("expected error marking a foreign notification")
	}
}
