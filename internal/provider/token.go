package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

const (
	// defaultRefreshSkew — окно, за которое токен обновляется заранее.
	defaultRefreshSkew = 5 * time.Minute

	// defaultMaxRefreshFailures — после стольких подряд неудач учётка
	// помечается EXPIRED.
	defaultMaxRefreshFailures = 5
)

// ConnectionStore — доступ к учёткам для TokenProvider.
// Реализуется repo.ConnectionRepo.
type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (*domain.Connection, error)
	UpdateConnectionTokens(ctx context.Context, conn *domain.Connection) error
}

// TokenProviderConfig — конфигурация TokenProvider.
type TokenProviderConfig struct {
	// RefreshSkew — окно досрочного обновления. 0 — значение по умолчанию.
	RefreshSkew time.Duration

	// MaxRefreshFailures — порог пометки учётки EXPIRED. 0 — по умолчанию.
	MaxRefreshFailures int

	// Logger — логгер. Nil — slog.Default().
	Logger *slog.Logger
}

// TokenProvider выдаёт действующие access tokens по connection ID.
//
// Если токен истекает в ближайшее окно и есть refresh token, провайдер
// обновляет его и сохраняет новую пару в хранилище. Обновления одной
// учётки сериализуются, чтобы параллельные узлы не устроили гонку
// refresh-запросов.
type TokenProvider struct {
	store    ConnectionStore
	registry *Registry
	cfg      TokenProviderConfig
	logger   *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewTokenProvider создаёт TokenProvider.
func NewTokenProvider(store ConnectionStore, registry *Registry, cfg TokenProviderConfig) *TokenProvider {
	if cfg.RefreshSkew <= 0 {
		cfg.RefreshSkew = defaultRefreshSkew
	}
	if cfg.MaxRefreshFailures <= 0 {
		cfg.MaxRefreshFailures = defaultMaxRefreshFailures
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenProvider{
		store:    store,
		registry: registry,
		cfg:      cfg,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// AccessToken возвращает действующий access token учётки.
// Реализует executor.TokenSource.
func (p *TokenProvider) AccessToken(ctx context.Context, connectionID string) (string, error) {
	lock := p.connLock(connectionID)
	lock.Lock()
	defer lock.Unlock()

	conn, err := p.store.GetConnection(ctx, connectionID)
	if err != nil {
		return "", fmt.Errorf("get connection %s: %w", connectionID, err)
	}

	now := time.Now()
	if conn.IsExpiringWithin(p.cfg.RefreshSkew, now) && conn.RefreshToken != "" {
		if err := p.refresh(ctx, conn); err != nil {
			return "", err
		}
	}

	if !conn.IsUsable(time.Now()) {
		return "", fmt.Errorf("%w: connection %s is %s", ErrConnectionUnusable, connectionID, conn.Status)
	}
	return conn.AccessToken, nil
}

// Refresh принудительно обновляет токены учётки.
// Используется фоновым refresher'ом.
func (p *TokenProvider) Refresh(ctx context.Context, conn *domain.Connection) error {
	lock := p.connLock(conn.ID.String())
	lock.Lock()
	defer lock.Unlock()

	return p.refresh(ctx, conn)
}

// refresh обновляет токены и сохраняет результат. Вызывается под локом
// учётки.
func (p *TokenProvider) refresh(ctx context.Context, conn *domain.Connection) error {
	prov, err := p.registry.Get(conn.Provider)
	if err != nil {
		return fmt.Errorf("connection %s: %w", conn.ID, err)
	}

	pair, err := prov.RefreshToken(ctx, conn.RefreshToken)
	if err != nil {
		conn.RecordRefreshFailure(p.cfg.MaxRefreshFailures)
		if updErr := p.store.UpdateConnectionTokens(ctx, conn); updErr != nil {
			p.logger.Error("persist refresh failure",
				"connection_id", conn.ID,
				"error", updErr,
			)
		}
		p.logger.Warn("token refresh failed",
			"connection_id", conn.ID,
			"provider", conn.Provider,
			"failure_count", conn.FailureCount,
			"error", err,
		)
		return fmt.Errorf("refresh connection %s: %w", conn.ID, err)
	}

	conn.RecordRefresh(pair.AccessToken, pair.RefreshToken, pair.ExpiresAt)
	if err := p.store.UpdateConnectionTokens(ctx, conn); err != nil {
		return fmt.Errorf("persist refreshed tokens for %s: %w", conn.ID, err)
	}

	p.logger.Info("token refreshed",
		"connection_id", conn.ID,
		"provider", conn.Provider,
	)
	return nil
}

// connLock возвращает мьютекс учётки.
func (p *TokenProvider) connLock(connectionID string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()

	lock, exists := p.locks[connectionID]
	if !exists {
		lock = &sync.Mutex{}
		p.locks[connectionID] = lock
	}
	return lock
}
