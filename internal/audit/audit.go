// Package audit ведёт журнал административных действий (RecentActivity).
//
// Журнал только дополняется и не взаимодействует с доменными событиями.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/clock"
	"github.com/shaiso/quizflow/internal/domain"
)

const defaultLookupTimeout = 2 * time.Second

// UserDirectory — поиск отображаемого имени пользователя.
type UserDirectory interface {
	DisplayName(ctx context.Context, userID uuid.UUID) (string, error)
}

// ActivityStore — хранилище журнала.
type ActivityStore interface {
	AppendActivity(ctx context.Context, a *domain.Activity) error
	ListActivities(ctx context.Context, limit int) ([]*domain.Activity, error)
}

// Entry — запись журнала до разрешения имени исполнителя.
type Entry struct {
	Type          string
	Description   string
	PerformedByID *uuid.UUID // nil — действие системы
	Role          string
	TargetID      *uuid.UUID
	TargetType    string
	TargetName    string
}

// Logger пишет записи журнала.
type Logger struct {
	users         UserDirectory
	store         ActivityStore
	clock         clock.Clock
	lookupTimeout time.Duration
	logger        *slog.Logger
}

// Config — конфигурация Logger.
type Config struct {
	Users         UserDirectory
	Store         ActivityStore
	Clock         clock.Clock
	LookupTimeout time.Duration // таймаут поиска имени (default: 2s)
	Logger        *slog.Logger
}

// New создаёт новый Logger.
func New(cfg Config) *Logger {
	l := &Logger{
		users:         cfg.Users,
		store:         cfg.Store,
		clock:         cfg.Clock,
		lookupTimeout: cfg.LookupTimeout,
		logger:        cfg.Logger,
	}
	if l.clock == nil {
		l.clock = clock.Real{}
	}
	if l.lookupTimeout <= 0 {
		l.lookupTimeout = defaultLookupTimeout
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// LogActivity разрешает имя исполнителя одним запросом и добавляет запись.
// Если исполнитель не указан или не найден, используется имя "System".
func (l *Logger) LogActivity(ctx context.Context, e Entry) (*domain.Activity, error) {
	role := e.Role
	if role == "" {
		role = domain.RoleSystem
	}

	a := &domain.Activity{
		ID:              uuid.New(),
		Type:            e.Type,
		Description:     e.Description,
		PerformedByID:   e.PerformedByID,
		PerformedByName: l.displayName(ctx, e.PerformedByID),
		PerformedByRole: role,
		TargetID:        e.TargetID,
		TargetType:      e.TargetType,
		TargetName:      e.TargetName,
		CreatedAt:       l.clock.Now(),
	}
	if err := l.store.AppendActivity(ctx, a); err != nil {
		return nil, fmt.Errorf("append activity: %w", err)
	}
	return a, nil
}

func (l *Logger) displayName(ctx context.Context, userID *uuid.UUID) string {
	if userID == nil || l.users == nil {
		return domain.SystemName
	}

	lookupCtx, cancel := context.WithTimeout(ctx, l.lookupTimeout)
	defer cancel()

	name, err := l.users.DisplayName(lookupCtx, *userID)
	if err != nil {
		l.logger.Debug("performer lookup failed, using system name", "user_id", userID, "error", err)
		return domain.SystemName
	}
	if name == "" {
		return domain.SystemName
	}
	return name
}

// Recent возвращает последние записи журнала.
func (l *Logger) Recent(ctx context.Context, limit int) ([]*domain.Activity, error) {
	return l.store.ListActivities(ctx, limit)
}
