package refresh

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen — операция отклонена открытым breaker'ом.
var ErrBreakerOpen = errors.New("circuit breaker is open")

// BreakerState — состояние circuit breaker'а.
type BreakerState string

const (
	// BreakerClosed — нормальная работа, вызовы проходят.
	BreakerClosed BreakerState = "CLOSED"

	// BreakerOpen — вызовы отклоняются до истечения cooldown.
	BreakerOpen BreakerState = "OPEN"

	// BreakerHalfOpen — cooldown истёк, пропускается пробный вызов.
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// Breaker — circuit breaker для защиты внешней зависимости.
//
// Открывается после threshold подряд неудач; после cooldown переходит
// в HALF_OPEN и пропускает пробный вызов: успех закрывает breaker,
// неудача снова открывает. Потокобезопасен.
type Breaker struct {
	threshold int
	cooldown  time.Duration

	mu       sync.Mutex
	failures int
	openedAt time.Time
	state    BreakerState
}

// NewBreaker создаёт breaker в состоянии CLOSED.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 3
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		state:     BreakerClosed,
	}
}

// Allow решает, можно ли выполнить вызов.
// Возвращает ErrBreakerOpen, пока cooldown не истёк.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed, BreakerHalfOpen:
		return nil
	case BreakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = BreakerHalfOpen
			return nil
		}
		return ErrBreakerOpen
	}
	return nil
}

// RecordSuccess фиксирует успешный вызов: breaker закрывается,
// счётчик неудач сбрасывается.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.state = BreakerClosed
}

// RecordFailure фиксирует неудачу. Достижение порога (или неудача
// пробного вызова в HALF_OPEN) открывает breaker.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == BreakerHalfOpen || b.failures >= b.threshold {
		b.state = BreakerOpen
		b.openedAt = time.Now()
	}
}

// State возвращает текущее состояние.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerHalfOpen
	}
	return b.state
}
