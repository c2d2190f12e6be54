package refresh

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Breaker Tests

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	if b.State() != BreakerClosed {
		t.Fatalf("new breaker should be CLOSED, got %s", b.State())
	}

	b.RecordFailure()
	b.RecordFailure()
	if b.State() != BreakerClosed {
		t.Errorf("breaker should stay CLOSED below threshold, got %s", b.State())
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Errorf("breaker should OPEN at threshold, got %s", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("open breaker should reject calls, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.State() != BreakerClosed {
		t.Errorf("success should reset the failure streak, got %s", b.State())
	}
}

func TestBreaker_HalfOpenAfterCooldown(t *testing.T) {
	b := NewBreaker(1, 5*time.Millisecond)

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("breaker should be OPEN, got %s", b.State())
	}

	time.Sleep(10 * time.Millisecond)
	if b.State() != BreakerHalfOpen {
		t.Fatalf("breaker should be HALF_OPEN after cooldown, got %s", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Errorf("half-open breaker should allow a probe, got %v", err)
	}

	// Успешная проба закрывает breaker.
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Errorf("successful probe should close the breaker, got %s", b.State())
	}
}

func TestBreaker_FailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 5*time.Millisecond)

	b.RecordFailure()
	time.Sleep(10 * time.Millisecond)

	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be allowed, got %v", err)
	}
	b.RecordFailure()

	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("failed probe should reopen the breaker, got %v", err)
	}
}

// Refresher Tests

type fakeLister struct {
	conns []domain.Connection
	err   error
}

func (f *fakeLister) ListExpiringConnections(context.Context, time.Time, int) ([]domain.Connection, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.conns, nil
}

type fakeRefresher struct {
	refreshed []uuid.UUID
	failFor   map[uuid.UUID]error
}

func (f *fakeRefresher) Refresh(_ context.Context, conn *domain.Connection) error {
	if err, ok := f.failFor[conn.ID]; ok {
		return err
	}
	f.refreshed = append(f.refreshed, conn.ID)
	return nil
}

func expiringConnection() domain.Connection {
	expires := time.Now().Add(time.Minute)
	return domain.Connection{
		ID:           uuid.New(),
		Provider:     "google",
		Status:       domain.ConnectionStatusActive,
		AccessToken:  "tok",
		RefreshToken: "ref",
		ExpiresAt:    &expires,
	}
}

func TestRefresher_Tick(t *testing.T) {
	c1, c2 := expiringConnection(), expiringConnection()
	lister := &fakeLister{conns: []domain.Connection{c1, c2}}
	refresher := &fakeRefresher{}

	r := New(Config{Lister: lister, Refresher: refresher, Logger: quietLogger()})

	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(refresher.refreshed) != 2 {
		t.Errorf("expected 2 refreshed connections, got %d", len(refresher.refreshed))
	}
}

func TestRefresher_Tick_PartialFailure(t *testing.T) {
	c1, c2 := expiringConnection(), expiringConnection()
	lister := &fakeLister{conns: []domain.Connection{c1, c2}}
	refresher := &fakeRefresher{
		failFor: map[uuid.UUID]error{c1.ID: errors.New("invalid_grant")},
	}

	r := New(Config{Lister: lister, Refresher: refresher, Logger: quietLogger()})

	// Падение одной учётки не делает тик неудачным.
	if err := r.Tick(context.Background()); err != nil {
		t.Fatalf("partial failure should not fail the tick: %v", err)
	}
	if len(refresher.refreshed) != 1 || refresher.refreshed[0] != c2.ID {
		t.Errorf("the healthy connection should still refresh, got %v", refresher.refreshed)
	}
}

func TestRefresher_Tick_TotalFailure(t *testing.T) {
	c1 := expiringConnection()
	lister := &fakeLister{conns: []domain.Connection{c1}}
	refresher := &fakeRefresher{
		failFor: map[uuid.UUID]error{c1.ID: errors.New("invalid_grant")},
	}

	r := New(Config{Lister: lister, Refresher: refresher, Logger: quietLogger()})

	if err := r.Tick(context.Background()); err == nil {
		t.Error("tick with zero successes out of a non-empty batch should fail")
	}
}

func TestRefresher_Tick_StoreUnavailable(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	r := New(Config{Lister: lister, Refresher: &fakeRefresher{}, Logger: quietLogger()})

	if err := r.Tick(context.Background()); err == nil {
		t.Error("unavailable store should fail the tick")
	}
}

func TestRefresher_Run_BreakerSkipsTicks(t *testing.T) {
	lister := &fakeLister{err: errors.New("connection refused")}
	r := New(Config{
		Lister:           lister,
		Refresher:        &fakeRefresher{},
		Logger:           quietLogger(),
		Interval:         time.Millisecond,
		BreakerThreshold: 2,
		BreakerCooldown:  time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := r.Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run should return the context error, got %v", err)
	}
	if r.BreakerState() != BreakerOpen {
		t.Errorf("breaker should open after consecutive failed ticks, got %s", r.BreakerState())
	}
}
