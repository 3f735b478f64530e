// Package app собирает сервисы quizflow из хранилищ и конфигурации.
// Используется процессами cmd/quizflow-scheduler и cmd/quizflow.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shaiso/quizflow/internal/audit"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/config"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/events"
	"github.com/shaiso/quizflow/internal/lifecycle"
	"github.com/shaiso/quizflow/internal/mq"
	"github.com/shaiso/quizflow/internal/notify"
	"github.com/shaiso/quizflow/internal/repo"
	"github.com/shaiso/quizflow/internal/repo/memory"
	"github.com/shaiso/quizflow/internal/scheduler"
	"github.com/shaiso/quizflow/internal/uow"
)

// UserStore — получатели уведомлений и имена пользователей.
type UserStore interface {
	QuizRecipients(ctx context.Context, quizID uuid.UUID) ([]domain.Recipient, error)
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// NotificationStore — чтение, отметки прочтения и очистка уведомлений.
type NotificationStore interface {
	notify.NotificationStore
	DeleteReadNotificationsBefore(ctx context.Context, before time.Time) (int, error)
}

// Stores — хранилища, из которых собираются сервисы.
type Stores struct {
	UnitOfWork    uow.Store
	Quizzes       lifecycle.QuizReader
	Jobs          scheduler.JobStore
	Users         UserStore
	Notifications NotificationStore
	Activities    audit.ActivityStore
}

// PostgresStores — Stores поверх пула PostgreSQL.
func PostgresStores(pool *pgxpool.Pool) Stores {
	return Stores{
		UnitOfWork:    repo.NewStore(pool),
		Quizzes:       repo.NewQuizRepo(pool),
		Jobs:          repo.NewJobRepo(pool),
		Users:         repo.NewUserRepo(pool),
		Notifications: repo.NewNotificationRepo(pool),
		Activities:    repo.NewActivityRepo(pool),
	}
}

// MemoryStores — Stores поверх in-memory хранилища.
func MemoryStores(s *memory.Store) Stores {
	return Stores{
		UnitOfWork:    s,
		Quizzes:       s,
		Jobs:          s,
		Users:         s,
		Notifications: s,
		Activities:    s,
	}
}

// DialEmailQueue подключается к RabbitMQ и возвращает очередь пакетов писем.
//
// Без брокера возвращает nil: уведомления создаются, письма не ставятся
// в очередь. closeFn освобождает соединение и безопасен при nil-очереди.
func DialEmailQueue(ctx context.Context, cfg config.Config, logger *slog.Logger) (queue notify.EmailQueue, closeFn func()) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := mq.Dial(mq.ConnectionConfig{URL: cfg.RabbitMQ.URL, Logger: logger})
	if err != nil {
		logger.Warn("RabbitMQ not available, emails disabled", "error", err)
		return nil, func() {}
	}
	if err := mq.SetupTopology(ctx, conn); err != nil {
		logger.Warn("failed to setup topology", "error", err)
	}
	return mq.NewPublisher(conn, logger), func() { _ = conn.Close() }
}

// Options — внешние зависимости сервисов.
type Options struct {
	Config     config.Config
	EmailQueue notify.EmailQueue // nil — письма не ставятся в очередь
	Clock      clock.Clock
	Logger     *slog.Logger
}

// Services — собранные сервисы с зарегистрированными обработчиками
// событий и задач.
type Services struct {
	Dispatcher    *events.Dispatcher
	UnitOfWork    *uow.Manager
	Scheduler     *scheduler.Scheduler
	Registry      *scheduler.Registry
	Notifications *notify.Service
	Audit         *audit.Logger
	Lifecycle     *lifecycle.Service

	stores Stores
	opts   Options
}

// New собирает сервисы.
func New(st Stores, opts Options) *Services {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	sc := opts.Config.Scheduler

	s := &Services{stores: st, opts: opts}
	s.Dispatcher = events.NewDispatcher(opts.Logger)
	s.UnitOfWork = uow.NewManager(st.UnitOfWork, s.Dispatcher, opts.Logger)
	s.Scheduler = scheduler.New(scheduler.Config{Store: st.Jobs, Clock: opts.Clock, Logger: opts.Logger})
	s.Notifications = notify.New(notify.Config{
		UnitOfWork:   s.UnitOfWork,
		Recipients:   st.Users,
		EmailQueue:   opts.EmailQueue,
		Store:        st.Notifications,
		Clock:        opts.Clock,
		EmailTimeout: config.Duration(sc.EmailTimeout, 0),
		Logger:       opts.Logger,
	})
	s.Audit = audit.New(audit.Config{
		Users:         st.Users,
		Store:         st.Activities,
		Clock:         opts.Clock,
		LookupTimeout: config.Duration(sc.LookupTimeout, 0),
		Logger:        opts.Logger,
	})
	s.Lifecycle = lifecycle.New(lifecycle.Config{
		UnitOfWork:      s.UnitOfWork,
		Quizzes:         st.Quizzes,
		Scheduler:       s.Scheduler,
		Notifier:        s.Notifications,
		Audit:           s.Audit,
		Retention:       st.Notifications,
		Clock:           opts.Clock,
		Logger:          opts.Logger,
		NotifyOnPublish: sc.NotifyOnPublish,
		RetentionCron:   sc.RetentionCron,
		RetentionAge:    config.Duration(sc.RetentionAge, 0),
	})

	s.Registry = scheduler.NewRegistry()
	s.Lifecycle.RegisterEventHandlers(s.Dispatcher)
	s.Lifecycle.RegisterJobHandlers(s.Registry)
	return s
}

// NewWorker создаёт воркер отложенных задач по настройкам конфигурации.
func (s *Services) NewWorker() *scheduler.Worker {
	sc := s.opts.Config.Scheduler
	return scheduler.NewWorker(scheduler.WorkerConfig{
		Store:        s.stores.Jobs,
		Registry:     s.Registry,
		Clock:        s.opts.Clock,
		PollInterval: config.Duration(sc.PollInterval, 0),
		BatchSize:    sc.BatchSize,
		Lease:        config.Duration(sc.Lease, 0),
		MaxAttempts:  sc.MaxAttempts,
		MaxAge:       config.Duration(sc.MaxAge, 0),
		Backoff: scheduler.Backoff{
			Initial: config.Duration(sc.BackoffInitial, 0),
			Max:     config.Duration(sc.BackoffMax, 0),
		},
		Logger: s.opts.Logger,
	})
}
