package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestJob_IsDue(t *testing.T) {
	now := time.Now()
	j := NewJob(JobTypeQuizStart, uuid.New(), now.Add(time.Minute), nil, now)

	if j.IsDue(now) {
		t.Error("job should not be due before fire_at")
	}
	if !j.IsDue(now.Add(time.Minute)) {
		t.Error("job should be due at fire_at")
	}

	j.Claim(now.Add(time.Minute), time.Minute)
	if j.Attempts != 1 || j.Status != JobStatusRunning {
		t.Fatalf("unexpected claim state: %+v", j)
	}
	if j.IsDue(now.Add(90 * time.Second)) {
		t.Error("claimed job must not be due while lease is active")
	}
	if !j.IsDue(now.Add(3 * time.Minute)) {
		t.Error("claimed job should be due again after lease expiry")
	}

	j.MarkDone(now)
	if j.IsDue(now.Add(time.Hour)) {
		t.Error("done job must never be due")
	}
}

func TestJob_Reschedule(t *testing.T) {
	now := time.Now()
	j := NewJob(JobTypeQuizAutoClose, uuid.New(), now, nil, now)
	j.Claim(now, time.Minute)

	next := now.Add(30 * time.Second)
	j.Reschedule(next, "boom", now)

	if j.Status != JobStatusPending || j.LeaseUntil != nil {
		t.Errorf("expected pending without lease, got %+v", j)
	}
	if !j.NextAttemptAt.Equal(next) || j.LastError != "boom" {
		t.Errorf("unexpected retry fields: %+v", j)
	}
	if !j.FireAt.Equal(now) {
		t.Error("reschedule must not move fire_at")
	}
}

func TestNotification_RaisesCreated(t *testing.T) {
	n := NewNotification(uuid.New(), nil, "quiz_started", "t", "b", nil, time.Now())

	evts := n.PullEvents()
	if len(evts) != 1 || evts[0].EventName() != EventNotificationCreated {
		t.Fatalf("expected NotificationCreated, got %v", evts)
	}

	n.MarkRead(time.Now())
	if !n.IsRead || n.ReadAt == nil {
		t.Error("expected read state")
	}
	n.MarkUnread()
	if n.IsRead || n.ReadAt != nil {
		t.Error("expected unread state")
	}
}

func TestSubmission_Lifecycle(t *testing.T) {
	now := time.Now()
	s := NewSubmission(uuid.New(), uuid.New(), now)

	if err := s.Grade(1, now); err == nil {
		t.Error("grading an in-progress submission should fail")
	}

	score := 7.0
	if err := s.Submit(&score, 10, now); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := s.Submit(&score, 10, now); err == nil {
		t.Error("double submit should fail")
	}
	if err := s.Grade(score, now); err != nil {
		t.Fatalf("grade: %v", err)
	}
	if !s.IsGraded() || *s.Score != 7 {
		t.Errorf("unexpected graded state: %+v", s)
	}
}
