package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы административных действий.
const (
	ActivityQuizPublished       = "quiz_published"
	ActivityQuizClosed          = "quiz_closed"
	ActivityQuizAutoClosed      = "quiz_auto_closed"
	ActivityQuizResultsReleased = "quiz_results_released"
	ActivityJobRetried          = "job_retried"
	ActivityJobsCancelled       = "jobs_cancelled"
)

// SystemName — имя исполнителя, если пользователь не найден.
const SystemName = "System"

// Activity — запись журнала административных действий. Только добавление.
type Activity struct {
	ID              uuid.UUID  `json:"id"`
	Type            string     `json:"type"`
	Description     string     `json:"description"`
	PerformedByID   *uuid.UUID `json:"performed_by_id,omitempty"`
	PerformedByName string     `json:"performed_by_name"`
	PerformedByRole string     `json:"performed_by_role"`
	TargetID        *uuid.UUID `json:"target_id,omitempty"`
	TargetType      string     `json:"target_type,omitempty"`
	TargetName      string     `json:"target_name,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Recipient — получатель уведомлений по квизу.
type Recipient struct {
	UserID     uuid.UUID `json:"user_id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	EmailOptIn bool      `json:"email_opt_in"`
}

// EmailMessage — одно письмо в пакете.
type EmailMessage struct {
	To         string            `json:"to"`
	Subject    string            `json:"subject"`
	TemplateID string            `json:"template_id"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// EmailBatch — пакетная задача отправки писем.
// Key описывает источник (тип события + квиз) и используется в логах.
type EmailBatch struct {
	ID        uuid.UUID      `json:"id"`
	Key       string         `json:"key"`
	Messages  []EmailMessage `json:"messages"`
	CreatedAt time.Time      `json:"created_at"`
}
