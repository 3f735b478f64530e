package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/notify"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/scheduler"
	"github.com/shaiso/quizflow/internal/uow"
)

// RegisterJobHandlers регистрирует обработчики отложенных задач.
func (s *Service) RegisterJobHandlers(r *scheduler.Registry) {
	r.Register(domain.JobTypeQuizStart, scheduler.HandlerFunc(s.handleQuizStart))
	r.Register(domain.JobTypeQuizAutoClose, scheduler.HandlerFunc(s.handleQuizAutoClose))
	if s.retention != nil {
		r.Register(domain.JobTypeNotificationRetention, scheduler.HandlerFunc(s.handleRetention))
	}
}

// handleQuizStart рассылает уведомление о старте квиза.
//
// Задача доставляется at-least-once, поэтому решение принимается
// по текущему состоянию квиза: отметка StartNotifiedAt ставится в той же
// транзакции, что и проверка, и повторное выполнение ничего не рассылает.
func (s *Service) handleQuizStart(ctx context.Context, job *domain.Job) error {
	var (
		quiz  *domain.Quiz
		stale string
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		q, err := tx.Quiz(ctx, job.TargetID)
		if errors.Is(err, repo.ErrNotFound) {
			stale = "quiz not found"
			return nil
		}
		if err != nil {
			return fmt.Errorf("load quiz %s: %w", job.TargetID, err)
		}

		switch {
		case q.Status != domain.QuizStatusPublished:
			stale = "quiz is " + string(q.Status)
			return nil
		case q.StartNotifiedAt != nil:
			stale = "start already notified"
			return nil
		}

		if err := q.MarkStartNotified(s.clock.Now()); err != nil {
			return err
		}
		if err := tx.SaveQuiz(ctx, q); err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}
		quiz = q
		return nil
	})
	if err != nil {
		return err
	}
	if stale != "" {
		s.logger.Info("quiz-start job is stale, skipping",
			"job_id", job.ID,
			"quiz_id", job.TargetID,
			"reason", stale,
		)
		return nil
	}

	s.notifier.FanOut(ctx, notify.KindQuizStarted, quiz, nil)
	return nil
}

// handleQuizAutoClose закрывает квиз по окончании окна доступности.
//
// Квиз, закрытый вручную, пропускается. При ShowResultsImmediately
// результаты открываются в той же транзакции; событие QuizResultsReleased
// рассылается после коммита.
func (s *Service) handleQuizAutoClose(ctx context.Context, job *domain.Job) error {
	var (
		quiz   *domain.Quiz
		report GradingReport
		stale  string
	)
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		q, err := tx.Quiz(ctx, job.TargetID)
		if errors.Is(err, repo.ErrNotFound) {
			stale = "quiz not found"
			return nil
		}
		if err != nil {
			return fmt.Errorf("load quiz %s: %w", job.TargetID, err)
		}
		if q.Status != domain.QuizStatusPublished {
			stale = "quiz is " + string(q.Status)
			return nil
		}

		now := s.clock.Now()
		if err := q.Close(now); err != nil {
			return err
		}
		if q.ShowResultsImmediately && q.CanReleaseResults() {
			if report, err = s.gradeSubmissions(ctx, tx, q, now); err != nil {
				return err
			}
			if err := q.ReleaseResults(now); err != nil {
				return err
			}
		}
		if err := tx.SaveQuiz(ctx, q); err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}
		quiz = q
		return nil
	})
	if err != nil {
		return err
	}
	if stale != "" {
		s.logger.Info("quiz-autoclose job is stale, skipping",
			"job_id", job.ID,
			"quiz_id", job.TargetID,
			"reason", stale,
		)
		return nil
	}

	if quiz.ResultsReleased {
		s.logGrading(quiz, report)
	}
	s.notifier.FanOut(ctx, notify.KindQuizEnded, quiz, nil)
	s.logActivity(ctx, System(), domain.ActivityQuizAutoClosed,
		fmt.Sprintf("Quiz %q closed automatically", quiz.Title), quiz)
	return nil
}

// handleRetention удаляет прочитанные уведомления старше retentionAge
// и планирует следующий запуск по cron-выражению.
func (s *Service) handleRetention(ctx context.Context, job *domain.Job) error {
	now := s.clock.Now()
	deleted, err := s.retention.DeleteReadNotificationsBefore(ctx, now.Add(-s.retentionAge))
	if err != nil {
		return fmt.Errorf("delete read notifications: %w", err)
	}
	s.logger.Info("read notifications purged",
		"job_id", job.ID,
		"deleted", deleted,
		"older_than", s.retentionAge,
	)

	if _, err := s.scheduleRetention(ctx, now); err != nil {
		return err
	}
	return nil
}

// EnsureRetentionScheduled планирует ближайший запуск очистки уведомлений.
// Вызывается при старте; повторный вызов не создаёт дублей.
func (s *Service) EnsureRetentionScheduled(ctx context.Context) (uuid.UUID, error) {
	if s.retention == nil {
		return uuid.Nil, nil
	}
	return s.scheduleRetention(ctx, s.clock.Now())
}

func (s *Service) scheduleRetention(ctx context.Context, from time.Time) (uuid.UUID, error) {
	next, err := scheduler.NextCron(s.retentionCron, from)
	if err != nil {
		return uuid.Nil, scheduler.Permanent(fmt.Errorf("retention cron %q: %w", s.retentionCron, err))
	}
	return s.scheduler.Schedule(ctx, domain.JobTypeNotificationRetention, uuid.Nil, next, nil)
}
