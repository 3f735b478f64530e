package domain

import (
	"time"

	"github.com/google/uuid"
)

// Quiz — квиз с окном доступности.
//
// Изменяется только через Publish / Close / ReleaseResults / MarkStartNotified.
// Содержимое (вопросы, варианты, оценивание) здесь не моделируется.
type Quiz struct {
	Recorder `json:"-"`

	// ID — уникальный идентификатор квиза.
	ID uuid.UUID `json:"id"`

	// Title — название, используется в текстах уведомлений.
	Title string `json:"title"`

	// OwnerID — преподаватель, создавший квиз.
	OwnerID uuid.UUID `json:"owner_id"`

	// Status — текущий статус.
	Status QuizStatus `json:"status"`

	// AvailableFrom — начало окна доступности. Обязательно для публикации.
	AvailableFrom *time.Time `json:"available_from,omitempty"`

	// AvailableTo — конец окна. Если задан, квиз будет закрыт автоматически.
	AvailableTo *time.Time `json:"available_to,omitempty"`

	// ResultsReleased — результаты открыты студентам (ставится один раз).
	ResultsReleased bool `json:"results_released"`

	// ShowResultsImmediately — открыть результаты сразу при автозакрытии.
	ShowResultsImmediately bool `json:"show_results_immediately"`

	// GroupIDs — назначенные группы студентов.
	GroupIDs []uuid.UUID `json:"group_ids"`

	PublishedAt       *time.Time `json:"published_at,omitempty"`
	ClosedAt          *time.Time `json:"closed_at,omitempty"`
	ResultsReleasedAt *time.Time `json:"results_released_at,omitempty"`

	// StartNotifiedAt — когда разослано уведомление о старте.
	// Якорь идемпотентности задачи quiz-start.
	StartNotifiedAt *time.Time `json:"start_notified_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewQuiz создаёт черновик квиза.
func NewQuiz(title string, ownerID uuid.UUID, now time.Time) *Quiz {
	return &Quiz{
		ID:        uuid.New(),
		Title:     title,
		OwnerID:   ownerID,
		Status:    QuizStatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// AssignGroup назначает группу (без дублей).
func (q *Quiz) AssignGroup(groupID uuid.UUID) {
	for _, id := range q.GroupIDs {
		if id == groupID {
			return
		}
	}
	q.GroupIDs = append(q.GroupIDs, groupID)
}

// SetWindow задаёт окно доступности.
func (q *Quiz) SetWindow(from time.Time, to *time.Time) {
	q.AvailableFrom = &from
	q.AvailableTo = to
}

// Publish переводит квиз DRAFT → PUBLISHED и поднимает QuizPublished.
func (q *Quiz) Publish(now time.Time) error {
	if q.Status != QuizStatusDraft {
		return invalidState("publish", string(q.Status))
	}
	if q.AvailableFrom == nil {
		return preconditionNotMet("publish", string(q.Status), "available_from is not set")
	}
	if len(q.GroupIDs) == 0 {
		return preconditionNotMet("publish", string(q.Status), "no groups assigned")
	}
	if q.AvailableTo != nil && q.AvailableTo.Before(*q.AvailableFrom) {
		return preconditionNotMet("publish", string(q.Status), "available_to is before available_from")
	}

	q.Status = QuizStatusPublished
	q.PublishedAt = &now
	q.UpdatedAt = now

	var to *time.Time
	if q.AvailableTo != nil {
		t := *q.AvailableTo
		to = &t
	}
	q.Raise(QuizPublished{
		QuizID:        q.ID,
		AvailableFrom: *q.AvailableFrom,
		AvailableTo:   to,
		OccurredAt:    now,
	})
	return nil
}

// Close переводит квиз PUBLISHED → CLOSED.
// Повторное закрытие возвращает ErrInvalidState. События не поднимает.
func (q *Quiz) Close(now time.Time) error {
	if q.Status != QuizStatusPublished {
		return invalidState("close", string(q.Status))
	}
	q.Status = QuizStatusClosed
	q.ClosedAt = &now
	q.UpdatedAt = now
	return nil
}

// CanReleaseResults проверяет, можно ли открыть результаты сейчас.
func (q *Quiz) CanReleaseResults() bool {
	if q.ResultsReleased {
		return false
	}
	switch q.Status {
	case QuizStatusClosed:
		return true
	case QuizStatusPublished:
		return q.ShowResultsImmediately
	default:
		return false
	}
}

// ReleaseResults открывает результаты и поднимает QuizResultsReleased.
func (q *Quiz) ReleaseResults(now time.Time) error {
	if q.ResultsReleased {
		return invalidState("release results", "RESULTS_RELEASED")
	}
	if !q.CanReleaseResults() {
		return invalidState("release results", string(q.Status))
	}
	q.ResultsReleased = true
	q.ResultsReleasedAt = &now
	q.UpdatedAt = now
	q.Raise(QuizResultsReleased{QuizID: q.ID, OccurredAt: now})
	return nil
}

// MarkStartNotified отмечает рассылку о старте. Допустимо один раз и только для PUBLISHED.
func (q *Quiz) MarkStartNotified(now time.Time) error {
	if q.Status != QuizStatusPublished {
		return invalidState("mark start notified", string(q.Status))
	}
	if q.StartNotifiedAt != nil {
		return invalidState("mark start notified", "START_NOTIFIED")
	}
	q.StartNotifiedAt = &now
	q.UpdatedAt = now
	return nil
}

// IsOpenAt проверяет, попадает ли момент в окно доступности опубликованного квиза.
func (q *Quiz) IsOpenAt(t time.Time) bool {
	if q.Status != QuizStatusPublished || q.AvailableFrom == nil {
		return false
	}
	if t.Before(*q.AvailableFrom) {
		return false
	}
	if q.AvailableTo != nil && t.After(*q.AvailableTo) {
		return false
	}
	return true
}
