package scheduler

import "time"

// Backoff — экспоненциальная задержка между попытками.
type Backoff struct {
	Initial time.Duration // задержка после первой попытки (default: 30s)
	Max     time.Duration // потолок (default: 30m)
}

// Delay возвращает задержку перед следующей попыткой.
// attempt — номер уже выполненной попытки, начиная с 1.
func (b Backoff) Delay(attempt int) time.Duration {
	initial := b.Initial
	if initial <= 0 {
		initial = 30 * time.Second
	}
	maxDelay := b.Max
	if maxDelay <= 0 {
		maxDelay = 30 * time.Minute
	}

	// delay = initial * 2^(attempt-1)
	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay > maxDelay {
			return maxDelay
		}
	}
	if delay > maxDelay {
		delay = maxDelay
	}
	return delay
}
