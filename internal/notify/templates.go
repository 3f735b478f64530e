package notify

import (
	"fmt"
	"time"

	"github.com/shaiso/quizflow/internal/domain"
)

// Kind — тип уведомления жизненного цикла квиза.
type Kind string

const (
	KindQuizPublished   Kind = "quiz_published"
	KindQuizStarted     Kind = "quiz_started"
	KindQuizEnded       Kind = "quiz_ended"
	KindResultsReleased Kind = "quiz_results_released"
)

// message — содержимое уведомления и письма для одного типа.
type message struct {
	title         func(q *domain.Quiz) string
	body          func(q *domain.Quiz) string
	emailTemplate string
	emailSubject  func(q *domain.Quiz) string
}

var messages = map[Kind]message{
	KindQuizPublished: {
		title: func(q *domain.Quiz) string { return "New quiz available" },
		body: func(q *domain.Quiz) string {
			return fmt.Sprintf("Quiz %q opens %s.", q.Title, formatTime(q.AvailableFrom))
		},
		emailTemplate: "quiz-published",
		emailSubject:  func(q *domain.Quiz) string { return fmt.Sprintf("New quiz: %s", q.Title) },
	},
	KindQuizStarted: {
		title: func(q *domain.Quiz) string { return "Quiz started" },
		body: func(q *domain.Quiz) string {
			if q.AvailableTo != nil {
				return fmt.Sprintf("Quiz %q is now open until %s.", q.Title, formatTime(q.AvailableTo))
			}
			return fmt.Sprintf("Quiz %q is now open.", q.Title)
		},
		emailTemplate: "quiz-started",
		emailSubject:  func(q *domain.Quiz) string { return fmt.Sprintf("Quiz started: %s", q.Title) },
	},
	KindQuizEnded: {
		title: func(q *domain.Quiz) string { return "Quiz ended" },
		body: func(q *domain.Quiz) string {
			return fmt.Sprintf("Quiz %q is now closed.", q.Title)
		},
		emailTemplate: "quiz-ended",
		emailSubject:  func(q *domain.Quiz) string { return fmt.Sprintf("Quiz ended: %s", q.Title) },
	},
	KindResultsReleased: {
		title: func(q *domain.Quiz) string { return "Results available" },
		body: func(q *domain.Quiz) string {
			return fmt.Sprintf("Results for quiz %q have been released.", q.Title)
		},
		emailTemplate: "quiz-results-released",
		emailSubject:  func(q *domain.Quiz) string { return fmt.Sprintf("Results released: %s", q.Title) },
	},
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "soon"
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

// emailVariables — переменные шаблона письма для получателя.
func emailVariables(kind Kind, q *domain.Quiz, r domain.Recipient) map[string]string {
	vars := map[string]string{
		"kind":           string(kind),
		"quiz_id":        q.ID.String(),
		"quiz_title":     q.Title,
		"recipient_name": r.Name,
	}
	if q.AvailableFrom != nil {
		vars["available_from"] = formatTime(q.AvailableFrom)
	}
	if q.AvailableTo != nil {
		vars["available_to"] = formatTime(q.AvailableTo)
	}
	return vars
}
