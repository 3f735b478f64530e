// Package lifecycle управляет жизненным циклом квиза: операции
// Publish/Close/ReleaseResults, попытки студентов, обработчики
// доменных событий и отложенных задач.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/audit"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/notify"
	"github.com/shaiso/quizflow/internal/uow"
)

// ErrQuizNotOpen — квиз сейчас не принимает попытки.
var ErrQuizNotOpen = errors.New("quiz is not open for submissions")

// QuizReader — чтение квиза вне транзакции.
type QuizReader interface {
	GetQuiz(ctx context.Context, id uuid.UUID) (*domain.Quiz, error)
}

// JobScheduler — планирование отложенных задач (scheduler.Scheduler).
type JobScheduler interface {
	Schedule(ctx context.Context, jobType string, targetID uuid.UUID, fireAt time.Time, payload map[string]any) (uuid.UUID, error)
	Cancel(ctx context.Context, jobType string, targetID uuid.UUID) (int, error)
}

// Notifier — рассылка уведомлений (notify.Service).
type Notifier interface {
	FanOut(ctx context.Context, kind notify.Kind, quiz *domain.Quiz, actorID *uuid.UUID) notify.Result
}

// ActivityLogger — журнал действий (audit.Logger).
type ActivityLogger interface {
	LogActivity(ctx context.Context, e audit.Entry) (*domain.Activity, error)
}

// RetentionStore — очистка старых прочитанных уведомлений.
type RetentionStore interface {
	DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error)
}

// Actor — исполнитель операции. ID == nil означает систему.
type Actor struct {
	ID   *uuid.UUID
	Role string
}

// System — исполнитель для действий планировщика.
func System() Actor {
	return Actor{Role: domain.RoleSystem}
}

// Service — операции жизненного цикла квиза.
type Service struct {
	uow       *uow.Manager
	quizzes   QuizReader
	scheduler JobScheduler
	notifier  Notifier
	audit     ActivityLogger
	retention RetentionStore
	grader    Grader
	clock     clock.Clock
	logger    *slog.Logger

	notifyOnPublish bool
	retentionCron   string
	retentionAge    time.Duration
}

// Config — конфигурация Service.
type Config struct {
	UnitOfWork *uow.Manager
	Quizzes    QuizReader
	Scheduler  JobScheduler
	Notifier   Notifier
	Audit      ActivityLogger // nil — журнал не ведётся
	Retention  RetentionStore // nil — задача очистки уведомлений не регистрируется
	Grader     Grader         // default: AutoScoreGrader
	Clock      clock.Clock
	Logger     *slog.Logger

	// NotifyOnPublish — рассылать уведомление quiz_published при публикации.
	NotifyOnPublish bool

	RetentionCron string        // default: "0 3 * * *"
	RetentionAge  time.Duration // default: 90 дней
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	s := &Service{
		uow:             cfg.UnitOfWork,
		quizzes:         cfg.Quizzes,
		scheduler:       cfg.Scheduler,
		notifier:        cfg.Notifier,
		audit:           cfg.Audit,
		retention:       cfg.Retention,
		grader:          cfg.Grader,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		notifyOnPublish: cfg.NotifyOnPublish,
		retentionCron:   cfg.RetentionCron,
		retentionAge:    cfg.RetentionAge,
	}
	if s.grader == nil {
		s.grader = AutoScoreGrader{}
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.retentionCron == "" {
		s.retentionCron = "0 3 * * *"
	}
	if s.retentionAge <= 0 {
		s.retentionAge = 90 * 24 * time.Hour
	}
	return s
}

// --- Quiz operations ---

// Publish публикует квиз. Планирование задач quiz-start и quiz-autoclose
// выполняет обработчик события QuizPublished после коммита.
func (s *Service) Publish(ctx context.Context, quizID uuid.UUID, actor Actor) (*domain.Quiz, error) {
	quiz, err := s.mutateQuiz(ctx, quizID, func(q *domain.Quiz, now time.Time) error {
		return q.Publish(now)
	})
	if err != nil {
		return nil, err
	}

	s.logActivity(ctx, actor, domain.ActivityQuizPublished, fmt.Sprintf("Published quiz %q", quiz.Title), quiz)
	return quiz, nil
}

// Close закрывает опубликованный квиз вручную и отменяет ожидающие задачи.
// Отмена не обязательна для корректности: обработчики задач проверяют статус.
func (s *Service) Close(ctx context.Context, quizID uuid.UUID, actor Actor) (*domain.Quiz, error) {
	quiz, err := s.mutateQuiz(ctx, quizID, func(q *domain.Quiz, now time.Time) error {
		return q.Close(now)
	})
	if err != nil {
		return nil, err
	}

	for _, jobType := range []string{domain.JobTypeQuizStart, domain.JobTypeQuizAutoClose} {
		if _, err := s.scheduler.Cancel(ctx, jobType, quiz.ID); err != nil {
			s.logger.Warn("failed to cancel pending jobs",
				"quiz_id", quiz.ID,
				"job_type", jobType,
				"error", err,
			)
		}
	}

	s.logActivity(ctx, actor, domain.ActivityQuizClosed, fmt.Sprintf("Closed quiz %q", quiz.Title), quiz)
	return quiz, nil
}

// ReleaseResults оценивает отправленные попытки и открывает результаты.
// Попытки, которые не удалось оценить, остаются SUBMITTED (частичная публикация).
func (s *Service) ReleaseResults(ctx context.Context, quizID uuid.UUID, actor Actor) (*domain.Quiz, error) {
	var report GradingReport
	quiz, err := s.mutateQuizTx(ctx, quizID, func(ctx context.Context, tx uow.Tx, q *domain.Quiz, now time.Time) error {
		if !q.CanReleaseResults() {
			return q.ReleaseResults(now) // типизированная InvalidState
		}
		var err error
		if report, err = s.gradeSubmissions(ctx, tx, q, now); err != nil {
			return err
		}
		return q.ReleaseResults(now)
	})
	if err != nil {
		return nil, err
	}

	s.logGrading(quiz, report)
	s.logActivity(ctx, actor, domain.ActivityQuizResultsReleased, fmt.Sprintf("Released results of quiz %q", quiz.Title), quiz)
	return quiz, nil
}

// mutateQuiz загружает квиз с блокировкой, применяет fn и сохраняет.
func (s *Service) mutateQuiz(ctx context.Context, quizID uuid.UUID, fn func(q *domain.Quiz, now time.Time) error) (*domain.Quiz, error) {
	return s.mutateQuizTx(ctx, quizID, func(_ context.Context, _ uow.Tx, q *domain.Quiz, now time.Time) error {
		return fn(q, now)
	})
}

func (s *Service) mutateQuizTx(ctx context.Context, quizID uuid.UUID, fn func(ctx context.Context, tx uow.Tx, q *domain.Quiz, now time.Time) error) (*domain.Quiz, error) {
	var saved *domain.Quiz
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		q, err := tx.Quiz(ctx, quizID)
		if err != nil {
			return fmt.Errorf("load quiz %s: %w", quizID, err)
		}
		if err := fn(ctx, tx, q, s.clock.Now()); err != nil {
			return err
		}
		if err := tx.SaveQuiz(ctx, q); err != nil {
			return fmt.Errorf("save quiz: %w", err)
		}
		saved = q
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// --- Submissions ---

// StartSubmission начинает попытку студента. Повторная попытка того же
// студента по тому же квизу возвращает repo.ErrAlreadyExists.
func (s *Service) StartSubmission(ctx context.Context, quizID, studentID uuid.UUID) (*domain.Submission, error) {
	var sub *domain.Submission
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		q, err := tx.Quiz(ctx, quizID)
		if err != nil {
			return fmt.Errorf("load quiz %s: %w", quizID, err)
		}
		now := s.clock.Now()
		if !q.IsOpenAt(now) {
			return fmt.Errorf("%w: status %s", ErrQuizNotOpen, q.Status)
		}
		sub = domain.NewSubmission(quizID, studentID, now)
		return tx.CreateSubmission(ctx, sub)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// SubmitSubmission отправляет попытку с автоматически подсчитанным баллом.
// autoScore == nil означает, что попытка требует ручной проверки.
func (s *Service) SubmitSubmission(ctx context.Context, submissionID uuid.UUID, autoScore *float64, maxScore float64) (*domain.Submission, error) {
	var sub *domain.Submission
	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		loaded, err := tx.Submission(ctx, submissionID)
		if err != nil {
			return fmt.Errorf("load submission %s: %w", submissionID, err)
		}
		q, err := tx.Quiz(ctx, loaded.QuizID)
		if err != nil {
			return fmt.Errorf("load quiz %s: %w", loaded.QuizID, err)
		}
		if q.Status != domain.QuizStatusPublished {
			return fmt.Errorf("%w: status %s", ErrQuizNotOpen, q.Status)
		}
		if err := loaded.Submit(autoScore, maxScore, s.clock.Now()); err != nil {
			return err
		}
		sub = loaded
		return tx.SaveSubmission(ctx, loaded)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// --- Helpers ---

func (s *Service) logActivity(ctx context.Context, actor Actor, activityType, description string, q *domain.Quiz) {
	if s.audit == nil {
		return
	}
	quizID := q.ID
	_, err := s.audit.LogActivity(ctx, audit.Entry{
		Type:          activityType,
		Description:   description,
		PerformedByID: actor.ID,
		Role:          actor.Role,
		TargetID:      &quizID,
		TargetType:    "quiz",
		TargetName:    q.Title,
	})
	if err != nil {
		s.logger.Warn("failed to log activity", "type", activityType, "quiz_id", q.ID, "error", err)
	}
}
