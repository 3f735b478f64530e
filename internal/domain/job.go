package domain

import (
	"time"

	"github.com/google/uuid"
)

// Типы отложенных задач.
const (
	// JobTypeQuizStart — рассылка «квиз начался» в AvailableFrom.
	JobTypeQuizStart = "quiz-start"

	// JobTypeQuizAutoClose — автозакрытие квиза в AvailableTo.
	JobTypeQuizAutoClose = "quiz-autoclose"

	// JobTypeNotificationRetention — очистка старых прочитанных уведомлений по cron.
	JobTypeNotificationRetention = "notification-retention"
)

// Job — отложенная одноразовая задача.
//
// Ключ идемпотентности планирования: (Type, TargetID, FireAt).
// Доставка at-least-once: обработчик обязан перепроверять текущее состояние цели.
type Job struct {
	// ID — уникальный идентификатор задачи.
	ID uuid.UUID `json:"id"`

	// Type — тип задачи, по нему выбирается обработчик.
	Type string `json:"type"`

	// TargetID — id целевой сущности (обычно квиза).
	TargetID uuid.UUID `json:"target_id"`

	// FireAt — плановое время срабатывания.
	FireAt time.Time `json:"fire_at"`

	// Payload — дополнительные параметры.
	Payload map[string]any `json:"payload,omitempty"`

	// Status — текущий статус.
	Status JobStatus `json:"status"`

	// Attempts — количество захватов воркером.
	Attempts int `json:"attempts"`

	// NextAttemptAt — когда задача снова станет due. Изначально равно FireAt.
	NextAttemptAt time.Time `json:"next_attempt_at"`

	// LeaseUntil — до какого момента задача закреплена за воркером.
	// Истёкшая аренда RUNNING-задачи делает её снова доступной (crash recovery).
	LeaseUntil *time.Time `json:"lease_until,omitempty"`

	// LastError — текст последней ошибки.
	LastError string `json:"last_error,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewJob создаёт задачу в статусе PENDING.
func NewJob(jobType string, targetID uuid.UUID, fireAt time.Time, payload map[string]any, now time.Time) *Job {
	return &Job{
		ID:            uuid.New(),
		Type:          jobType,
		TargetID:      targetID,
		FireAt:        fireAt,
		Payload:       payload,
		Status:        JobStatusPending,
		NextAttemptAt: fireAt,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// IsDue проверяет, доступна ли задача для захвата в момент now.
func (j *Job) IsDue(now time.Time) bool {
	switch j.Status {
	case JobStatusPending:
		return !j.NextAttemptAt.After(now)
	case JobStatusRunning:
		return j.LeaseUntil != nil && j.LeaseUntil.Before(now)
	default:
		return false
	}
}

// Claim закрепляет задачу за воркером.
func (j *Job) Claim(now time.Time, lease time.Duration) {
	until := now.Add(lease)
	j.Status = JobStatusRunning
	j.LeaseUntil = &until
	j.Attempts++
	j.UpdatedAt = now
}

// MarkDone переводит задачу в DONE.
func (j *Job) MarkDone(now time.Time) {
	j.Status = JobStatusDone
	j.LeaseUntil = nil
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Reschedule возвращает задачу в PENDING для повторной попытки.
func (j *Job) Reschedule(next time.Time, errMsg string, now time.Time) {
	j.Status = JobStatusPending
	j.NextAttemptAt = next
	j.LeaseUntil = nil
	j.LastError = errMsg
	j.UpdatedAt = now
}

// MarkFailed переводит задачу в FAILED.
func (j *Job) MarkFailed(errMsg string, now time.Time) {
	j.Status = JobStatusFailed
	j.LeaseUntil = nil
	j.LastError = errMsg
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// Age возвращает возраст задачи относительно планового времени.
func (j *Job) Age(now time.Time) time.Duration {
	return now.Sub(j.FireAt)
}
