package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Ошибки пакета.
var (
	// ErrProviderNotFound — провайдер не зарегистрирован.
	ErrProviderNotFound = errors.New("provider not found")

	// ErrStateNotFound — pending state неизвестен или уже использован.
	ErrStateNotFound = errors.New("oauth state not found")

	// ErrStateExpired — pending state просрочен.
	ErrStateExpired = errors.New("oauth state expired")

	// ErrConnectionUnusable — учётка не пригодна для выдачи токена.
	ErrConnectionUnusable = errors.New("connection is not usable")
)

// TokenPair — результат обмена кода или обновления токена.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// AccountInfo — сведения об аккаунте у провайдера.
type AccountInfo struct {
	ExternalID string
	Name       string
	Email      string
}

// Provider — возможности одного OAuth-провайдера.
//
// Конкретные провайдеры регистрируются в Registry на старте сервиса.
// Специфика API провайдеров (нестандартные поля, причуды эндпоинтов)
// остаётся внутри реализаций и наружу не протекает.
type Provider interface {
	// Name возвращает имя провайдера ("google", "slack", ...).
	Name() string

	// BuildAuthURL строит URL для начала авторизации.
	BuildAuthURL(state, redirectURI string) string

	// ExchangeToken обменивает authorization code на токены.
	ExchangeToken(ctx context.Context, code, redirectURI string) (*TokenPair, error)

	// RefreshToken обновляет access token по refresh token.
	RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error)

	// FetchAccountInfo запрашивает сведения об аккаунте.
	FetchAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
}

// Registry — реестр провайдеров по имени.
//
// Заполняется на старте сервиса и после этого только читается.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
	}
}

// Register регистрирует провайдера. Существующее имя перезаписывается.
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get возвращает провайдера по имени.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, exists := r.providers[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, name)
	}
	return p, nil
}

// Names возвращает отсортированный список зарегистрированных провайдеров.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
