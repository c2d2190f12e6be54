package provider

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"
)

const defaultStateTTL = 10 * time.Minute

// PendingAuth — незавершённая авторизация: создаётся при выдаче auth URL,
// потребляется при возврате пользователя с кодом.
type PendingAuth struct {
	// Provider — имя провайдера.
	Provider string

	// RedirectURI — URI возврата, зафиксированный при старте авторизации.
	RedirectURI string

	// CreatedAt — время создания.
	CreatedAt time.Time
}

// StateStore — хранилище pending OAuth state-токенов.
//
// Владение явное: store создаётся на старте сервиса, передаётся по
// ссылке туда, где нужен, и закрывается на shutdown. State одноразовый:
// Consume удаляет запись, повторное потребление — ошибка.
type StateStore struct {
	mu      sync.Mutex
	pending map[string]PendingAuth
	ttl     time.Duration

	stop chan struct{}
	once sync.Once
}

// NewStateStore создаёт хранилище. ttl <= 0 — значение по умолчанию.
// Просроченные записи вычищаются фоновым циклом до вызова Close.
func NewStateStore(ttl time.Duration) *StateStore {
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	s := &StateStore{
		pending: make(map[string]PendingAuth),
		ttl:     ttl,
		stop:    make(chan struct{}),
	}
	go s.cleanupLoop()
	return s
}

// Begin создаёт pending-запись и возвращает новый state-токен.
func (s *StateStore) Begin(providerName, redirectURI string) string {
	state := newStateToken()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[state] = PendingAuth{
		Provider:    providerName,
		RedirectURI: redirectURI,
		CreatedAt:   time.Now(),
	}
	return state
}

// Consume потребляет state-токен: запись возвращается и удаляется.
func (s *StateStore) Consume(state string) (PendingAuth, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, exists := s.pending[state]
	if !exists {
		return PendingAuth{}, ErrStateNotFound
	}
	delete(s.pending, state)

	if time.Since(pa.CreatedAt) > s.ttl {
		return PendingAuth{}, ErrStateExpired
	}
	return pa, nil
}

// Len возвращает количество pending-записей.
func (s *StateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close останавливает фоновую очистку и сбрасывает записи.
func (s *StateStore) Close() {
	s.once.Do(func() {
		close(s.stop)
	})
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = make(map[string]PendingAuth)
}

// cleanupLoop периодически удаляет просроченные записи.
func (s *StateStore) cleanupLoop() {
	ticker := time.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.removeExpired()
		}
	}
}

// removeExpired удаляет записи старше ttl.
func (s *StateStore) removeExpired() {
	cutoff := time.Now().Add(-s.ttl)

	s.mu.Lock()
	defer s.mu.Unlock()
	for state, pa := range s.pending {
		if pa.CreatedAt.Before(cutoff) {
			delete(s.pending, state)
		}
	}
}

// newStateToken генерирует криптослучайный state-токен.
func newStateToken() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand на поддерживаемых платформах не падает.
		panic(err)
	}
	return hex.EncodeToString(b)
}
