package repo

import (
	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
)

// JobFilter — параметры фильтрации отложенных задач.
type JobFilter struct {
	Status   domain.JobStatus
	Type     string
	TargetID *uuid.UUID
	Limit    int
	Offset   int
}

// NotificationFilter — параметры выборки уведомлений пользователя.
type NotificationFilter struct {
	UserID     uuid.UUID
	UnreadOnly bool
	Limit      int
	Offset     int
}

// LimitOrDefault возвращает лимит выборки: 100 по умолчанию, не больше 500.
func LimitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
