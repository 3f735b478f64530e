package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/quizflow/internal/domain"
)

// Handler выполняет отложенную задачу конкретного типа.
//
// Обработчик сам перечитывает текущее состояние цели: если оно уже не
// требует действия, он логирует это и возвращает nil (задача завершается).
// Ошибка, обёрнутая в Permanent, переводит задачу в FAILED сразу;
// любая другая ошибка считается временной и повторяется с backoff.
type Handler interface {
	Handle(ctx context.Context, job *domain.Job) error
}

// HandlerFunc — адаптер функции к Handler.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// Handle реализует Handler.
func (f HandlerFunc) Handle(ctx context.Context, job *domain.Job) error { return f(ctx, job) }

// Registry — реестр обработчиков по типу задачи.
// Заполняется при старте; новые типы задач добавляются без изменения Worker.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register добавляет обработчик для типа задачи (заменяет существующий).
func (r *Registry) Register(jobType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[jobType] = h
}

// Get возвращает обработчик для типа задачи.
func (r *Registry) Get(jobType string) (Handler, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[jobType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJobType, jobType)
	}
	return h, nil
}

// Types возвращает зарегистрированные типы задач.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}
