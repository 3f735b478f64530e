package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission — попытка студента пройти квиз.
// На пару (StudentID, QuizID) допускается ровно одна запись (уникальный индекс в БД).
type Submission struct {
	ID        uuid.UUID        `json:"id"`
	QuizID    uuid.UUID        `json:"quiz_id"`
	StudentID uuid.UUID        `json:"student_id"`
	Status    SubmissionStatus `json:"status"`

	// AutoScore — балл, посчитанный автоматически при сдаче.
	// nil, если квиз требует ручной проверки.
	AutoScore *float64 `json:"auto_score,omitempty"`

	// Score — итоговый балл, выставляется при оценивании.
	Score    *float64 `json:"score,omitempty"`
	MaxScore float64  `json:"max_score"`

	StartedAt   time.Time  `json:"started_at"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

// NewSubmission создаёт попытку в статусе IN_PROGRESS.
func NewSubmission(quizID, studentID uuid.UUID, now time.Time) *Submission {
	return &Submission{
		ID:        uuid.New(),
		QuizID:    quizID,
		StudentID: studentID,
		Status:    SubmissionStatusInProgress,
		StartedAt: now,
	}
}

// Submit сдаёт попытку. autoScore может быть nil.
func (s *Submission) Submit(autoScore *float64, maxScore float64, now time.Time) error {
	if s.Status != SubmissionStatusInProgress {
		return invalidState("submit", string(s.Status))
	}
	s.Status = SubmissionStatusSubmitted
	s.AutoScore = autoScore
	s.MaxScore = maxScore
	s.SubmittedAt = &now
	return nil
}

// Grade выставляет итоговый балл.
func (s *Submission) Grade(score float64, now time.Time) error {
	if s.Status != SubmissionStatusSubmitted {
		return invalidState("grade", string(s.Status))
	}
	s.Status = SubmissionStatusGraded
	s.Score = &score
	s.GradedAt = &now
	return nil
}

// IsGraded возвращает true, если попытка оценена.
func (s *Submission) IsGraded() bool {
	return s.Status == SubmissionStatusGraded
}
