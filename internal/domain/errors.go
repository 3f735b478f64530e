package domain

import (
	"errors"
	"fmt"
)

// Ошибки переходов состояний.
var (
	// ErrInvalidState — переход невозможен из текущего статуса.
	// Не ретраится: вызывающий код логирует и продолжает.
	ErrInvalidState = errors.New("invalid state")

	// ErrPreconditionNotMet — не выполнено предусловие перехода
	// (например, публикация без назначенных групп).
	ErrPreconditionNotMet = errors.New("precondition not met")
)

// TransitionError — типизированная ошибка перехода.
// errors.Is(err, ErrInvalidState) / errors.Is(err, ErrPreconditionNotMet) работают через Unwrap.
type TransitionError struct {
	Op     string
	From   string
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s from %s: %v: %s", e.Op, e.From, e.Err, e.Reason)
	}
	return fmt.Sprintf("%s from %s: %v", e.Op, e.From, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func invalidState(op, from string) error {
	return &TransitionError{Op: op, From: from, Err: ErrInvalidState}
}

func preconditionNotMet(op, from, reason string) error {
	return &TransitionError{Op: op, From: from, Reason: reason, Err: ErrPreconditionNotMet}
}
