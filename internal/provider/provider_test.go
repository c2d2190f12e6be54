package provider

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeProvider — провайдер для тестов.
type fakeProvider struct {
	name       string
	refreshed  int
	refreshErr error
}

func (f *fakeProvider) Name() string { return f.name }

func (f *fakeProvider) BuildAuthURL(state, redirectURI string) string {
	return "https://auth.example.com?state=" + state + "&redirect_uri=" + redirectURI
}

func (f *fakeProvider) ExchangeToken(context.Context, string, string) (*TokenPair, error) {
	return &TokenPair{AccessToken: "exchanged"}, nil
}

func (f *fakeProvider) RefreshToken(context.Context, string) (*TokenPair, error) {
	f.refreshed++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	expires := time.Now().Add(time.Hour)
	return &TokenPair{
		AccessToken:  "fresh-token",
		RefreshToken: "fresh-refresh",
		ExpiresAt:    &expires,
	}, nil
}

func (f *fakeProvider) FetchAccountInfo(context.Context, string) (*AccountInfo, error) {
	return &AccountInfo{ExternalID: "acc-1"}, nil
}

// fakeConnStore — хранилище учёток в памяти.
type fakeConnStore struct {
	mu      sync.Mutex
	conns   map[string]*domain.Connection
	updates int
}

func newFakeConnStore(conns ...*domain.Connection) *fakeConnStore {
	s := &fakeConnStore{conns: make(map[string]*domain.Connection)}
	for _, c := range conns {
		s.conns[c.ID.String()] = c
	}
	return s
}

func (s *fakeConnStore) GetConnection(_ context.Context, id string) (*domain.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn, exists := s.conns[id]
	if !exists {
		return nil, errors.New("connection not found")
	}
	copied := *conn
	return &copied, nil
}

func (s *fakeConnStore) UpdateConnectionTokens(_ context.Context, conn *domain.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *conn
	s.conns[conn.ID.String()] = &copied
	s.updates++
	return nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeProvider{name: "google"})
	r.Register(&fakeProvider{name: "slack"})

	p, err := r.Get("google")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "google" {
		t.Errorf("expected google, got %s", p.Name())
	}

	if _, err := r.Get("unknown"); !errors.Is(err, ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}

	names := r.Names()
	if len(names) != 2 || names[0] != "google" || names[1] != "slack" {
		t.Errorf("expected sorted names, got %v", names)
	}
}

func TestStateStore_BeginConsume(t *testing.T) {
	s := NewStateStore(time.Minute)
	defer s.Close()

	state := s.Begin("google", "https://app.example.com/callback")
	if state == "" {
		t.Fatal("state token should not be empty")
	}

	pa, err := s.Consume(state)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pa.Provider != "google" {
		t.Errorf("expected google, got %s", pa.Provider)
	}
	if !strings.Contains(pa.RedirectURI, "callback") {
		t.Errorf("unexpected redirect URI: %s", pa.RedirectURI)
	}

	// State одноразовый.
	if _, err := s.Consume(state); !errors.Is(err, ErrStateNotFound) {
		t.Errorf("second consume should fail, got %v", err)
	}
}

func TestStateStore_Expired(t *testing.T) {
	s := NewStateStore(time.Nanosecond)
	defer s.Close()

	state := s.Begin("google", "uri")
	time.Sleep(time.Millisecond)

	if _, err := s.Consume(state); !errors.Is(err, ErrStateExpired) {
		t.Errorf("expected ErrStateExpired, got %v", err)
	}
}

func TestStateStore_UniqueTokens(t *testing.T) {
	s := NewStateStore(time.Minute)
	defer s.Close()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		state := s.Begin("google", "uri")
		if seen[state] {
			t.Fatal("state tokens must be unique")
		}
		seen[state] = true
	}
	if s.Len() != 100 {
		t.Errorf("expected 100 pending entries, got %d", s.Len())
	}
}

func activeConnection(provider string, expiresIn time.Duration) *domain.Connection {
	expires := time.Now().Add(expiresIn)
	return &domain.Connection{
		ID:           uuid.New(),
		Provider:     provider,
		Status:       domain.ConnectionStatusActive,
		AccessToken:  "old-token",
		RefreshToken: "old-refresh",
		ExpiresAt:    &expires,
	}
}

func TestTokenProvider_ValidToken(t *testing.T) {
	prov := &fakeProvider{name: "google"}
	registry := NewRegistry()
	registry.Register(prov)

	conn := activeConnection("google", time.Hour)
	store := newFakeConnStore(conn)

	tp := NewTokenProvider(store, registry, TokenProviderConfig{Logger: quietLogger()})

	token, err := tp.AccessToken(context.Background(), conn.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "old-token" {
		t.Errorf("valid token should be returned as is, got %s", token)
	}
	if prov.refreshed != 0 {
		t.Error("valid token must not trigger a refresh")
	}
}

func TestTokenProvider_RefreshesExpiring(t *testing.T) {
	prov := &fakeProvider{name: "google"}
	registry := NewRegistry()
	registry.Register(prov)

	// Истекает через минуту — внутри окна досрочного обновления.
	conn := activeConnection("google", time.Minute)
	store := newFakeConnStore(conn)

	tp := NewTokenProvider(store, registry, TokenProviderConfig{Logger: quietLogger()})

	token, err := tp.AccessToken(context.Background(), conn.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "fresh-token" {
		t.Errorf("expected refreshed token, got %s", token)
	}
	if prov.refreshed != 1 {
		t.Errorf("expected exactly one refresh, got %d", prov.refreshed)
	}

	// Новая пара сохранена.
	stored, _ := store.GetConnection(context.Background(), conn.ID.String())
	if stored.AccessToken != "fresh-token" || stored.RefreshToken != "fresh-refresh" {
		t.Errorf("refreshed tokens should be persisted, got %+v", stored)
	}
	if stored.FailureCount != 0 {
		t.Errorf("failure count should reset, got %d", stored.FailureCount)
	}
}

func TestTokenProvider_RefreshFailure(t *testing.T) {
	prov := &fakeProvider{name: "google", refreshErr: errors.New("invalid_grant")}
	registry := NewRegistry()
	registry.Register(prov)

	conn := activeConnection("google", time.Minute)
	store := newFakeConnStore(conn)

	tp := NewTokenProvider(store, registry, TokenProviderConfig{
		MaxRefreshFailures: 2,
		Logger:             quietLogger(),
	})

	if _, err := tp.AccessToken(context.Background(), conn.ID.String()); err == nil {
		t.Fatal("expected refresh error")
	}

	stored, _ := store.GetConnection(context.Background(), conn.ID.String())
	if stored.FailureCount != 1 {
		t.Errorf("failure should be recorded, got %d", stored.FailureCount)
	}

	// Вторая подряд неудача переводит учётку в EXPIRED.
	if _, err := tp.AccessToken(context.Background(), conn.ID.String()); err == nil {
		t.Fatal("expected refresh error")
	}
	stored, _ = store.GetConnection(context.Background(), conn.ID.String())
	if stored.Status != domain.ConnectionStatusExpired {
		t.Errorf("connection should be EXPIRED after repeated failures, got %s", stored.Status)
	}
}

func TestTokenProvider_RevokedConnection(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&fakeProvider{name: "google"})

	conn := activeConnection("google", time.Hour)
	conn.Status = domain.ConnectionStatusRevoked
	store := newFakeConnStore(conn)

	tp := NewTokenProvider(store, registry, TokenProviderConfig{Logger: quietLogger()})

	_, err := tp.AccessToken(context.Background(), conn.ID.String())
	if !errors.Is(err, ErrConnectionUnusable) {
		t.Errorf("expected ErrConnectionUnusable, got %v", err)
	}
}
