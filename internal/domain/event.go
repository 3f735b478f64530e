package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event — доменное событие, поднятое сущностью в рамках единицы работы.
//
// События не сохраняются в БД: они живут в буфере единицы работы
// и после успешного коммита передаются диспетчеру.
type Event interface {
	// EventName — имя события, по которому диспетчер ищет обработчики.
	EventName() string
}

// Имена событий.
const (
	EventQuizPublished       = "quiz.published"
	EventQuizResultsReleased = "quiz.results_released"
	EventNotificationCreated = "notification.created"
)

// QuizPublished — квиз опубликован.
type QuizPublished struct {
	QuizID        uuid.UUID
	AvailableFrom time.Time
	AvailableTo   *time.Time
	OccurredAt    time.Time
}

// EventName реализует Event.
func (QuizPublished) EventName() string { return EventQuizPublished }

// QuizResultsReleased — результаты квиза открыты студентам.
type QuizResultsReleased struct {
	QuizID     uuid.UUID
	OccurredAt time.Time
}

// EventName реализует Event.
func (QuizResultsReleased) EventName() string { return EventQuizResultsReleased }

// NotificationCreated — создана запись уведомления.
//
// Массовое создание уведомлений выполняется с подавлением событий,
// иначе каждое уведомление снова попадало бы в диспетчер.
type NotificationCreated struct {
	NotificationID uuid.UUID
	UserID         uuid.UUID
	Type           string
	OccurredAt     time.Time
}

// EventName реализует Event.
func (NotificationCreated) EventName() string { return EventNotificationCreated }

// Recorder накапливает события сущности до коммита.
// Встраивается в агрегаты (Quiz, Notification).
type Recorder struct {
	pending []Event
}

// Raise добавляет событие в список ожидающих.
func (r *Recorder) Raise(e Event) {
	r.pending = append(r.pending, e)
}

// PullEvents возвращает накопленные события и очищает список.
func (r *Recorder) PullEvents() []Event {
	evts := r.pending
	r.pending = nil
	return evts
}

// PendingEvents возвращает количество ещё не собранных событий.
func (r *Recorder) PendingEvents() int {
	return len(r.pending)
}

// EventSource — агрегат, поднимающий доменные события.
type EventSource interface {
	PullEvents() []Event
}
