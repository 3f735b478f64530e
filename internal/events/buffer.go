package events

import (
	"sync"

	"github.com/shaiso/quizflow/internal/domain"
)

// Buffer — буфер доменных событий одной единицы работы.
//
// Буфер не глобальный: он создаётся на каждый коммит и передаётся
// в транзакцию явно, поэтому параллельные операции не смешивают события.
type Buffer struct {
	mu         sync.Mutex
	events     []domain.Event
	suppressed int
	dropped    int
}

// NewBuffer создаёт пустой буфер.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Add добавляет события. При активном подавлении события отбрасываются.
func (b *Buffer) Add(evts ...domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.suppressed > 0 {
		b.dropped += len(evts)
		return
	}
	b.events = append(b.events, evts...)
}

// Collect забирает события агрегата в буфер.
// События агрегата очищаются даже при подавлении.
func (b *Buffer) Collect(src domain.EventSource) {
	b.Add(src.PullEvents()...)
}

// Suppress включает подавление событий и возвращает функцию снятия.
//
// Вызов release обязателен на всех путях выхода:
//
//	release := buf.Suppress()
//	defer release()
//
// Повторный вызов release безопасен. Вложенные подавления считаются.
func (b *Buffer) Suppress() (release func()) {
	b.mu.Lock()
	b.suppressed++
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			b.suppressed--
			b.mu.Unlock()
		})
	}
}

// Suppressed возвращает true, если подавление активно.
func (b *Buffer) Suppressed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.suppressed > 0
}

// Dropped возвращает количество событий, отброшенных из-за подавления.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Len возвращает количество накопленных событий.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Drain возвращает накопленные события и очищает буфер.
func (b *Buffer) Drain() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	evts := b.events
	b.events = nil
	return evts
}

// Reset отбрасывает накопленные события (откат транзакции).
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
