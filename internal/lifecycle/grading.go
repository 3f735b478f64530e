package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/uow"
)

// ErrManualGradingRequired — попытку нельзя оценить автоматически.
var ErrManualGradingRequired = errors.New("submission requires manual grading")

// Grader выставляет итоговый балл отправленной попытке.
type Grader interface {
	Grade(ctx context.Context, sub *domain.Submission) (float64, error)
}

// AutoScoreGrader берёт балл автопроверки. Попытки без него требуют ручной проверки.
type AutoScoreGrader struct{}

// Grade реализует Grader.
func (AutoScoreGrader) Grade(_ context.Context, sub *domain.Submission) (float64, error) {
	if sub.AutoScore == nil {
		return 0, ErrManualGradingRequired
	}
	return *sub.AutoScore, nil
}

// GradingReport — итог оценивания перед публикацией результатов.
type GradingReport struct {
	Graded     int
	Ungradable []uuid.UUID // остались SUBMITTED
	InProgress int         // не отправлены, не оцениваются
}

// gradeSubmissions оценивает все SUBMITTED попытки квиза.
//
// Политика — частичная публикация: ошибка оценивания одной попытки
// не блокирует остальные и публикацию результатов. Такая попытка остаётся
// SUBMITTED и попадает в отчёт. Ошибка сохранения возвращается целиком
// и откатывает транзакцию.
func (s *Service) gradeSubmissions(ctx context.Context, tx uow.Tx, q *domain.Quiz, now time.Time) (GradingReport, error) {
	var report GradingReport

	subs, err := tx.ListSubmissions(ctx, q.ID)
	if err != nil {
		return report, fmt.Errorf("list submissions: %w", err)
	}

	for _, sub := range subs {
		switch sub.Status {
		case domain.SubmissionStatusInProgress:
			report.InProgress++
			continue
		case domain.SubmissionStatusGraded:
			continue
		}

		score, err := s.grader.Grade(ctx, sub)
		if err != nil {
			s.logger.Warn("submission not graded",
				"quiz_id", q.ID,
				"submission_id", sub.ID,
				"error", err,
			)
			report.Ungradable = append(report.Ungradable, sub.ID)
			continue
		}
		if err := sub.Grade(score, now); err != nil {
			report.Ungradable = append(report.Ungradable, sub.ID)
			continue
		}
		if err := tx.SaveSubmission(ctx, sub); err != nil {
			return report, fmt.Errorf("save graded submission %s: %w", sub.ID, err)
		}
		report.Graded++
	}
	return report, nil
}

func (s *Service) logGrading(q *domain.Quiz, r GradingReport) {
	args := []any{
		"quiz_id", q.ID,
		"graded", r.Graded,
		"ungradable", len(r.Ungradable),
		"in_progress", r.InProgress,
	}
	switch {
	case len(r.Ungradable) > 0:
		s.logger.Warn("results released with ungraded submissions", args...)
	case r.Graded > 0 || r.InProgress > 0:
		s.logger.Info("submissions graded before release", args...)
	}
}
