package cli

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shaiso/quizflow/internal/audit"
	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/lifecycle"
	"github.com/shaiso/quizflow/internal/notify"
	"github.com/shaiso/quizflow/internal/scheduler"
)

// App — сервисы, с которыми работают команды.
// Собирается в cmd/quizflow после разбора флагов.
type App struct {
	Lifecycle     *lifecycle.Service
	Scheduler     *scheduler.Scheduler
	Notifications *notify.Service
	Audit         *audit.Logger

	// Close освобождает ресурсы (пул соединений и т.п.). Может быть nil.
	Close func()
}

// AppFunc лениво создаёт App.
type AppFunc func(ctx context.Context) (*App, error)

// withApp открывает App на время выполнения fn.
func withApp(ctx context.Context, appFn AppFunc, fn func(app *App) error) error {
	app, err := appFn(ctx)
	if err != nil {
		return err
	}
	if app.Close != nil {
		defer app.Close()
	}
	return fn(app)
}

func parseID(kind, raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s id %q: %w", kind, raw, err)
	}
	return id, nil
}

// parseActor разбирает --actor/--role. Пустой --actor — система.
func parseActor(rawID, role string) (lifecycle.Actor, error) {
	if rawID == "" {
		return lifecycle.System(), nil
	}
	id, err := parseID("actor", rawID)
	if err != nil {
		return lifecycle.Actor{}, err
	}
	if role == "" {
		role = domain.RoleAdmin
	}
	return lifecycle.Actor{ID: &id, Role: role}, nil
}

// logActivity пишет действие оператора в журнал. Ошибка журнала не прерывает команду.
func logActivity(ctx context.Context, app *App, out *Output, actor lifecycle.Actor, e audit.Entry) {
	if app.Audit == nil {
		return
	}
	e.PerformedByID = actor.ID
	e.Role = actor.Role
	if _, err := app.Audit.LogActivity(ctx, e); err != nil {
		out.Success(fmt.Sprintf("warning: activity not logged: %v", err))
	}
}
