// Package clock — источник текущего времени, подменяемый в тестах.
package clock

import (
	"sync"
	"time"
)

// Clock возвращает текущее время.
type Clock interface {
	Now() time.Time
}

// Real — системные часы (UTC).
type Real struct{}

// Now реализует Clock.
func (Real) Now() time.Time { return time.Now().UTC() }

// Fixed — часы с ручным управлением для тестов.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixed создаёт часы, стоящие на t.
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// Now реализует Clock.
func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance сдвигает часы вперёд.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set устанавливает время.
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
