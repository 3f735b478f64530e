package mailer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/smtp"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/mq"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeProvider struct {
	mu   sync.Mutex
	sent []Email
	fail map[string]error // по адресу
}

func (p *fakeProvider) Send(_ context.Context, e Email) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.fail[e.To]; err != nil {
		return err
	}
	p.sent = append(p.sent, e)
	return nil
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *RedisDeduper) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisDeduper(client, time.Hour)
}

func testBatch(to ...string) domain.EmailBatch {
	b := domain.EmailBatch{ID: uuid.New(), Key: "quiz_started:" + uuid.NewString(), CreatedAt: time.Now().UTC()}
	for _, addr := range to {
		b.Messages = append(b.Messages, domain.EmailMessage{
			To:         addr,
			Subject:    "Quiz started: Physics",
			TemplateID: "quiz-started",
			Variables:  map[string]string{"quiz_title": "Physics", "recipient_name": "Alice"},
		})
	}
	return b
}

// --- Dedupe ---

func TestRedisDeduper_AcquireRelease(t *testing.T) {
	mr, d := newRedis(t)
	ctx := context.Background()

	ok, err := d.Acquire(ctx, "b1:0")
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if ok, _ := d.Acquire(ctx, "b1:0"); ok {
		t.Error("second acquire must fail")
	}
	if ttl := mr.TTL("quizflow:email:sent:b1:0"); ttl != time.Hour {
		t.Errorf("expected ttl 1h, got %s", ttl)
	}

	if err := d.Release(ctx, "b1:0"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if ok, _ := d.Acquire(ctx, "b1:0"); !ok {
		t.Error("acquire after release must succeed")
	}
}

// --- SendBatch ---

func TestSendBatch_RedeliverySkipsSent(t *testing.T) {
	_, d := newRedis(t)
	p := &fakeProvider{}
	m := New(Config{Provider: p, Dedupe: d, Logger: testLogger()})
	batch := testBatch("alice@example.com", "bob@example.com")

	r1, err := m.SendBatch(context.Background(), batch)
	if err != nil || r1.Sent != 2 {
		t.Fatalf("first delivery: report=%+v err=%v", r1, err)
	}

	r2, err := m.SendBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if r2.Sent != 0 || r2.Skipped != 2 {
		t.Errorf("expected all skipped on redelivery, got %+v", r2)
	}
	if len(p.sent) != 2 {
		t.Errorf("expected 2 emails total, got %d", len(p.sent))
	}
}

func TestSendBatch_FailureReleasesKey(t *testing.T) {
	mr, d := newRedis(t)
	p := &fakeProvider{fail: map[string]error{"bob@example.com": errors.New("mailbox unavailable")}}
	m := New(Config{Provider: p, Dedupe: d, Logger: testLogger()})
	batch := testBatch("alice@example.com", "bob@example.com")

	r, err := m.SendBatch(context.Background(), batch)
	if err == nil {
		t.Fatal("expected error for failed email")
	}
	if r.Sent != 1 || r.Failed != 1 {
		t.Errorf("unexpected report: %+v", r)
	}
	if mr.Exists("quizflow:email:sent:" + batch.ID.String() + ":1") {
		t.Error("failed email must not stay marked")
	}

	// Повтор отправляет только письмо, которое не ушло.
	delete(p.fail, "bob@example.com")
	r, err = m.SendBatch(context.Background(), batch)
	if err != nil || r.Sent != 1 || r.Skipped != 1 {
		t.Errorf("retry: report=%+v err=%v", r, err)
	}
}

// cancellingProvider отменяет контекст доставки посреди отправки.
type cancellingProvider struct {
	cancel context.CancelFunc
	sent   []Email
}

func (p *cancellingProvider) Send(ctx context.Context, e Email) error {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
		return ctx.Err()
	}
	p.sent = append(p.sent, e)
	return nil
}

func TestSendBatch_CancelledSendReleasesKey(t *testing.T) {
	mr, d := newRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := &cancellingProvider{cancel: cancel}
	m := New(Config{Provider: p, Dedupe: d, Logger: testLogger()})
	batch := testBatch("alice@example.com")

	if _, err := m.SendBatch(ctx, batch); err == nil {
		t.Fatal("expected error for cancelled send")
	}
	if mr.Exists("quizflow:email:sent:" + batch.ID.String() + ":0") {
		t.Fatal("cancelled email must not stay marked")
	}

	r, err := m.SendBatch(context.Background(), batch)
	if err != nil || r.Sent != 1 || r.Skipped != 0 {
		t.Errorf("redelivery: report=%+v err=%v", r, err)
	}
	if len(p.sent) != 1 {
		t.Errorf("expected email sent on redelivery, got %d", len(p.sent))
	}
}

func TestSendBatch_UnknownTemplateDropped(t *testing.T) {
	p := &fakeProvider{}
	m := New(Config{Provider: p, Logger: testLogger()})
	batch := testBatch("alice@example.com")
	batch.Messages[0].TemplateID = "nope"

	r, err := m.SendBatch(context.Background(), batch)
	if err != nil {
		t.Fatalf("unknown template must not trigger retry: %v", err)
	}
	if r.Failed != 1 || len(p.sent) != 0 {
		t.Errorf("unexpected report: %+v", r)
	}
}

func TestSendBatch_RateLimited(t *testing.T) {
	p := &fakeProvider{}
	m := New(Config{Provider: p, RatePerSec: 20, Logger: testLogger()})
	batch := testBatch("a@example.com", "b@example.com", "c@example.com")

	start := time.Now()
	if _, err := m.SendBatch(context.Background(), batch); err != nil {
		t.Fatalf("SendBatch: %v", err)
	}
	// burst 1 при 20/s: два ожидания по ~50ms.
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected rate limiting, batch took %s", elapsed)
	}
}

func TestHandleDelivery_RejectsBadPayload(t *testing.T) {
	m := New(Config{Provider: &fakeProvider{}, Logger: testLogger()})
	d := &mq.Delivery{Message: mq.Message{Type: mq.MessageTypeEmailBatch, Payload: []byte(`"not a batch"`)}}

	err := m.HandleDelivery(context.Background(), d)
	if !errors.Is(err, mq.ErrReject) {
		t.Errorf("expected ErrReject, got %v", err)
	}
}

func TestHandleDelivery_SendsBatch(t *testing.T) {
	p := &fakeProvider{}
	m := New(Config{Provider: p, Logger: testLogger()})
	batch := testBatch("alice@example.com")
	msg, err := mq.NewMessage(mq.MessageTypeEmailBatch, batch.ID, batch, batch.CreatedAt)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}

	if err := m.HandleDelivery(context.Background(), &mq.Delivery{Message: *msg}); err != nil {
		t.Fatalf("HandleDelivery: %v", err)
	}
	if len(p.sent) != 1 || p.sent[0].To != "alice@example.com" {
		t.Errorf("unexpected sent emails: %+v", p.sent)
	}
}

// --- Templates & providers ---

func TestRender(t *testing.T) {
	e, err := Render(domain.EmailMessage{
		To:         "alice@example.com",
		Subject:    "Quiz started: Physics",
		TemplateID: "quiz-started",
		Variables:  map[string]string{"quiz_title": "Physics", "recipient_name": "Alice", "available_to": "2026-03-01 11:00 UTC"},
	})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for _, want := range []string{"Hello, Alice!", `Quiz "Physics" is now open.`, "before 2026-03-01 11:00 UTC"} {
		if !strings.Contains(e.Body, want) {
			t.Errorf("body missing %q:\n%s", want, e.Body)
		}
	}

	if _, err := Render(domain.EmailMessage{TemplateID: "greeting"}); !errors.Is(err, ErrUnknownTemplate) {
		t.Errorf("partial template must not be addressable, got %v", err)
	}
}

func TestSMTPProvider_Compose(t *testing.T) {
	p := NewSMTPProvider(SMTPConfig{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", From: "quizflow@example.com"})

	var gotAddr string
	var gotMsg []byte
	p.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotMsg = addr, msg
		return nil
	}

	if err := p.Send(context.Background(), Email{To: "alice@example.com", Subject: "Hi", Body: "line1\nline2"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Errorf("unexpected addr %q", gotAddr)
	}
	if !strings.Contains(string(gotMsg), "Subject: Hi\r\n") || !strings.HasSuffix(string(gotMsg), "line1\r\nline2") {
		t.Errorf("unexpected message:\n%q", gotMsg)
	}
}
