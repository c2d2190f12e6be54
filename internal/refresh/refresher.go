package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Значения по умолчанию.
const (
	defaultInterval  = time.Minute
	defaultWindow    = 10 * time.Minute
	defaultBatchSize = 50
	defaultThreshold = 3
	defaultCooldown  = 5 * time.Minute
)

// ConnectionLister отдаёт учётки, чьи токены скоро истекут.
// Реализуется repo.ConnectionRepo.
type ConnectionLister interface {
	ListExpiringConnections(ctx context.Context, before time.Time, limit int) ([]domain.Connection, error)
}

// TokenRefresher обновляет токены одной учётки.
// Реализуется provider.TokenProvider.
type TokenRefresher interface {
	Refresh(ctx context.Context, conn *domain.Connection) error
}

// Config — конфигурация Refresher.
type Config struct {
	Lister    ConnectionLister
	Refresher TokenRefresher
	Logger    *slog.Logger

	// Interval — период между тиками (default: 1m).
	Interval time.Duration

	// Window — насколько заранее обновлять токены (default: 10m).
	Window time.Duration

	// BatchSize — учёток за один тик (default: 50).
	BatchSize int

	// BreakerThreshold — подряд неудачных тиков до открытия breaker'а
	// (default: 3).
	BreakerThreshold int

	// BreakerCooldown — пауза перед пробным тиком (default: 5m).
	BreakerCooldown time.Duration
}

// Refresher — фоновый цикл обновления истекающих OAuth-токенов.
//
// Каждый тик выбирает учётки с токенами, истекающими в окне Window,
// и обновляет их через TokenRefresher. Тик, в котором упали все
// обновления, считается неудачным; после порога подряд неудачных
// тиков breaker открывается и тики пропускаются до cooldown.
type Refresher struct {
	lister    ConnectionLister
	refresher TokenRefresher
	logger    *slog.Logger
	breaker   *Breaker

	interval  time.Duration
	window    time.Duration
	batchSize int
}

// New создаёт Refresher.
func New(cfg Config) *Refresher {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = defaultThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = defaultCooldown
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Refresher{
		lister:    cfg.Lister,
		refresher: cfg.Refresher,
		logger:    logger,
		breaker:   NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		interval:  cfg.Interval,
		window:    cfg.Window,
		batchSize: cfg.BatchSize,
	}
}

// Run запускает цикл до отмены контекста.
func (r *Refresher) Run(ctx context.Context) error {
	r.logger.Info("refresher started",
		"interval", r.interval,
		"window", r.window,
		"batch_size", r.batchSize,
	)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("refresher stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := r.breaker.Allow(); err != nil {
				r.logger.Warn("refresh tick skipped", "breaker", r.breaker.State())
				continue
			}
			if err := r.Tick(ctx); err != nil {
				r.breaker.RecordFailure()
				r.logger.Error("refresh tick failed",
					"error", err,
					"breaker", r.breaker.State(),
				)
				continue
			}
			r.breaker.RecordSuccess()
		}
	}
}

// Tick выполняет один проход: выбирает истекающие учётки и обновляет их.
//
// Ошибка отдельной учётки не блокирует остальные; тик считается
// неудачным, только если хранилище недоступно или не удалось ни одно
// обновление из непустого батча.
func (r *Refresher) Tick(ctx context.Context) error {
	conns, err := r.lister.ListExpiringConnections(ctx, time.Now().Add(r.window), r.batchSize)
	if err != nil {
		return fmt.Errorf("list expiring connections: %w", err)
	}
	if len(conns) == 0 {
		return nil
	}

	r.logger.Debug("found expiring connections", "count", len(conns))

	var refreshed, failed int
	for i := range conns {
		conn := &conns[i]
		if err := r.refresher.Refresh(ctx, conn); err != nil {
			failed++
			r.logger.Warn("connection refresh failed",
				"connection_id", conn.ID,
				"provider", conn.Provider,
				"error", err,
			)
			continue
		}
		refreshed++
	}

	r.logger.Info("refresh tick completed",
		"expiring", len(conns),
		"refreshed", refreshed,
		"failed", failed,
	)

	if refreshed == 0 && failed > 0 {
		return fmt.Errorf("all %d refresh attempts failed", failed)
	}
	return nil
}

// BreakerState возвращает состояние breaker'а (для метрик).
func (r *Refresher) BreakerState() BreakerState {
	return r.breaker.State()
}
