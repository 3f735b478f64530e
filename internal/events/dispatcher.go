package events

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/shaiso/quizflow/internal/domain"
	"github.com/shaiso/quizflow/internal/telemetry"
)

// Handler — обработчик доменного события.
type Handler func(ctx context.Context, evt domain.Event) error

// Dispatcher — реестр обработчиков по имени события.
//
// Обработчики вызываются после коммита в порядке регистрации.
// Ошибка или паника одного обработчика логируется и не мешает остальным.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string][]namedHandler
	logger   *slog.Logger
}

type namedHandler struct {
	name string
	fn   Handler
}

// NewDispatcher создаёт пустой диспетчер.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		handlers: make(map[string][]namedHandler),
		logger:   logger,
	}
}

// Register добавляет обработчик для события. name используется в логах.
func (d *Dispatcher) Register(eventName, name string, fn Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[eventName] = append(d.handlers[eventName], namedHandler{name: name, fn: fn})
}

// Handlers возвращает имена обработчиков события в порядке регистрации.
func (d *Dispatcher) Handlers(eventName string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.handlers[eventName]))
	for _, h := range d.handlers[eventName] {
		names = append(names, h.name)
	}
	return names
}

// Dispatch вызывает обработчики для каждого события.
// Возвращает количество неуспешных вызовов (для логов и тестов).
func (d *Dispatcher) Dispatch(ctx context.Context, evts []domain.Event) int {
	var failed int
	for _, evt := range evts {
		d.mu.RLock()
		hs := d.handlers[evt.EventName()]
		d.mu.RUnlock()

		if len(hs) == 0 {
			d.logger.Debug("no handlers for event", "event", evt.EventName())
			continue
		}

		for _, h := range hs {
			if err := d.invoke(ctx, h, evt); err != nil {
				failed++
				d.logger.Error("event handler failed",
					"event", evt.EventName(),
					"handler", h.name,
					"error", err,
				)
			}
		}
	}
	return failed
}

// invoke вызывает обработчик, превращая панику в ошибку.
func (d *Dispatcher) invoke(ctx context.Context, h namedHandler, evt domain.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.EventsDispatched.WithLabelValues(evt.EventName(), "panic").Inc()
			d.logger.Error("event handler panic",
				"event", evt.EventName(),
				"handler", h.name,
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := h.fn(ctx, evt); err != nil {
		telemetry.EventsDispatched.WithLabelValues(evt.EventName(), "error").Inc()
		return err
	}
	telemetry.EventsDispatched.WithLabelValues(evt.EventName(), "ok").Inc()
	return nil
}
