package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/notify"
)

// RegisterEventHandlers подписывает обработчики доменных событий.
func (s *Service) RegisterEventHandlers(d *events.Dispatcher) {
	d.Register(domain.EventQuizPublished, "schedule-quiz-jobs", s.onQuizPublished)
	if s.notifyOnPublish {
		d.Register(domain.EventQuizPublished, "notify-quiz-published", s.onQuizPublishedNotify)
	}
	d.Register(domain.EventQuizResultsReleased, "notify-results-released", s.onResultsReleased)
}

// onQuizPublished планирует quiz-start на AvailableFrom и quiz-autoclose
// на AvailableTo. Время, которое уже прошло, пропускается Scheduler'ом.
func (s *Service) onQuizPublished(ctx context.Context, evt domain.Event) error {
	e, ok := evt.(domain.QuizPublished)
	if !ok {
		return fmt.Errorf("unexpected event type %T", evt)
	}

	var errs []error
	if _, err := s.scheduler.Schedule(ctx, domain.JobTypeQuizStart, e.QuizID, e.AvailableFrom, nil); err != nil {
		errs = append(errs, err)
	}
	if e.AvailableTo != nil {
		if _, err := s.scheduler.Schedule(ctx, domain.JobTypeQuizAutoClose, e.QuizID, *e.AvailableTo, nil); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) onQuizPublishedNotify(ctx context.Context, evt domain.Event) error {
	e, ok := evt.(domain.QuizPublished)
	if !ok {
		return fmt.Errorf("unexpected event type %T", evt)
	}
	return s.fanOutFor(ctx, notify.KindQuizPublished, e.QuizID)
}

func (s *Service) onResultsReleased(ctx context.Context, evt domain.Event) error {
	e, ok := evt.(domain.QuizResultsReleased)
	if !ok {
		return fmt.Errorf("unexpected event type %T", evt)
	}
	return s.fanOutFor(ctx, notify.KindResultsReleased, e.QuizID)
}

// fanOutFor перечитывает квиз события и рассылает уведомления.
func (s *Service) fanOutFor(ctx context.Context, kind notify.Kind, quizID uuid.UUID) error {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	s.notifier.FanOut(ctx, kind, quiz, nil)
	return nil
}
