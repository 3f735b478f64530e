package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification — персистентное уведомление одному получателю.
type Notification struct {
	Recorder `json:"-"`

	ID          uuid.UUID         `json:"id"`
	UserID      uuid.UUID         `json:"user_id"`
	ActorUserID *uuid.UUID        `json:"actor_user_id,omitempty"`
	Type        string            `json:"type"`
	Title       string            `json:"title"`
	Body        string            `json:"body"`
	Data        map[string]string `json:"data,omitempty"`
	IsRead      bool              `json:"is_read"`
	ReadAt      *time.Time        `json:"read_at,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// NewNotification создаёт уведомление и поднимает NotificationCreated.
func NewNotification(userID uuid.UUID, actorID *uuid.UUID, typ, title, body string, data map[string]string, now time.Time) *Notification {
	n := &Notification{
		ID:          uuid.New(),
		UserID:      userID,
		ActorUserID: actorID,
		Type:        typ,
		Title:       title,
		Body:        body,
		Data:        data,
		CreatedAt:   now,
	}
	n.Raise(NotificationCreated{
		NotificationID: n.ID,
		UserID:         userID,
		Type:           typ,
		OccurredAt:     now,
	})
	return n
}

// MarkRead помечает уведомление прочитанным.
func (n *Notification) MarkRead(now time.Time) {
	if n.IsRead {
		return
	}
	n.IsRead = true
	n.ReadAt = &now
}

// MarkUnread снимает отметку о прочтении.
func (n *Notification) MarkUnread() {
	n.IsRead = false
	n.ReadAt = nil
}
