// Package notify превращает событие жизненного цикла квиза в уведомления
// для каждого получателя и одно пакетное письмо.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/telemetry"
	"github.com/shaiso/quizflow/internal/uow"
)

const defaultEmailTimeout = 10 * time.Second

// RecipientResolver — получатели уведомлений квиза (студенты назначенных групп, без повторов).
type RecipientResolver interface {
	QuizRecipients(ctx context.Context, quizID uuid.UUID) ([]domain.Recipient, error)
}

// EmailQueue — очередь пакетных писем. Отправка выполняется асинхронно (см. mailer).
type EmailQueue interface {
	EnqueueEmailBatch(ctx context.Context, batch domain.EmailBatch) error
}

// NotificationStore — чтение и смена статуса прочтения.
type NotificationStore interface {
	ListNotifications(ctx context.Context, f repo.NotificationFilter) ([]*domain.Notification, error)
	SetNotificationRead(ctx context.Context, id, userID uuid.UUID, read bool, now time.Time) error
}

// Result — итог рассылки.
type Result struct {
	Recipients    int // найдено получателей
	Notifications int // сохранено уведомлений
	Emails        int // писем в поставленном пакете
}

// Service — рассылка уведомлений.
type Service struct {
	uow          *uow.Manager
	recipients   RecipientResolver
	queue        EmailQueue
	store        NotificationStore
	clock        clock.Clock
	emailTimeout time.Duration
	logger       *slog.Logger
}

// Config — конфигурация Service.
type Config struct {
	UnitOfWork   *uow.Manager
	Recipients   RecipientResolver
	EmailQueue   EmailQueue // nil — письма не отправляются
	Store        NotificationStore
	Clock        clock.Clock
	EmailTimeout time.Duration // таймаут постановки пакета в очередь (default: 10s)
	Logger       *slog.Logger
}

// New создаёт новый Service.
func New(cfg Config) *Service {
	s := &Service{
		uow:          cfg.UnitOfWork,
		recipients:   cfg.Recipients,
		queue:        cfg.EmailQueue,
		store:        cfg.Store,
		clock:        cfg.Clock,
		emailTimeout: cfg.EmailTimeout,
		logger:       cfg.Logger,
	}
	if s.clock == nil {
		s.clock = clock.Real{}
	}
	if s.emailTimeout <= 0 {
		s.emailTimeout = defaultEmailTimeout
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// FanOut рассылает уведомления типа kind всем получателям квиза.
//
//  1. Получатели — одним запросом
//  2. Уведомления сохраняются одним коммитом с подавлением событий
//  3. Получателям с подпиской на email ставится один пакет писем
//
// Ошибки логируются и не возвращаются: состояние квиза не зависит
// от доставки уведомлений. Уведомления и письма независимы друг от друга.
func (s *Service) FanOut(ctx context.Context, kind Kind, quiz *domain.Quiz, actorID *uuid.UUID) Result {
	logger := telemetry.WithQuizID(s.logger, quiz.ID.String()).With("kind", kind)

	msg, ok := messages[kind]
	if !ok {
		logger.Error("unknown notification kind")
		return Result{}
	}

	recipients, err := s.recipients.QuizRecipients(ctx, quiz.ID)
	if err != nil {
		logger.Error("failed to resolve recipients", "error", err)
		return Result{}
	}
	res := Result{Recipients: len(recipients)}
	if len(recipients) == 0 {
		logger.Debug("no recipients for quiz")
		return res
	}

	res.Notifications = s.persist(ctx, logger, kind, msg, quiz, actorID, recipients)
	res.Emails = s.enqueueEmails(ctx, logger, kind, msg, quiz, recipients)

	logger.Info("notifications fanned out",
		"recipients", res.Recipients,
		"notifications", res.Notifications,
		"emails", res.Emails,
	)
	return res
}

func (s *Service) persist(ctx context.Context, logger *slog.Logger, kind Kind, msg message, quiz *domain.Quiz, actorID *uuid.UUID, recipients []domain.Recipient) int {
	now := s.clock.Now()

	ns := make([]*domain.Notification, 0, len(recipients))
	for _, r := range recipients {
		data := map[string]string{"quiz_id": quiz.ID.String()}
		ns = append(ns, domain.NewNotification(r.UserID, actorID, string(kind), msg.title(quiz), msg.body(quiz), data, now))
	}

	err := s.uow.Do(ctx, func(ctx context.Context, tx uow.Tx) error {
		return tx.AddNotifications(ctx, ns)
	}, uow.WithoutEvents())
	if err != nil {
		logger.Error("failed to persist notifications", "count", len(ns), "error", err)
		return 0
	}

	telemetry.NotificationsCreated.WithLabelValues(string(kind)).Add(float64(len(ns)))
	return len(ns)
}

func (s *Service) enqueueEmails(ctx context.Context, logger *slog.Logger, kind Kind, msg message, quiz *domain.Quiz, recipients []domain.Recipient) int {
	var mails []domain.EmailMessage
	for _, r := range recipients {
		if !r.EmailOptIn {
			continue
		}
		mails = append(mails, domain.EmailMessage{
			To:         r.Email,
			Subject:    msg.emailSubject(quiz),
			TemplateID: msg.emailTemplate,
			Variables:  emailVariables(kind, quiz, r),
		})
	}
	if len(mails) == 0 {
		return 0
	}
	if s.queue == nil {
		logger.Warn("email queue not configured, skipping batch", "messages", len(mails))
		return 0
	}

	batch := domain.EmailBatch{
		ID:        uuid.New(),
		Key:       fmt.Sprintf("%s:%s", kind, quiz.ID),
		Messages:  mails,
		CreatedAt: s.clock.Now(),
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, s.emailTimeout)
	defer cancel()

	if err := s.queue.EnqueueEmailBatch(enqueueCtx, batch); err != nil {
		telemetry.EmailBatches.WithLabelValues("enqueue", "error").Inc()
		logger.Warn("failed to enqueue email batch",
			"batch_id", batch.ID,
			"messages", len(mails),
			"error", err,
		)
		return 0
	}

	telemetry.EmailBatches.WithLabelValues("enqueue", "ok").Inc()
	return len(mails)
}

// ListForUser возвращает уведомления пользователя.
func (s *Service) ListForUser(ctx context.Context, f repo.NotificationFilter) ([]*domain.Notification, error) {
	return s.store.ListNotifications(ctx, f)
}

// MarkRead помечает уведомление прочитанным.
func (s *Service) MarkRead(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.SetNotificationRead(ctx, id, userID, true, s.clock.Now())
}

// MarkUnread снимает отметку о прочтении.
func (s *Service) MarkUnread(ctx context.Context, id, userID uuid.UUID) error {
	return s.store.SetNotificationRead(ctx, id, userID, false, s.clock.Now())
}
