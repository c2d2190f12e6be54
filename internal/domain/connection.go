package domain

import (
	"time"

	"github.com/google/uuid"
)

// Connection — OAuth-учётка для доступа к внешнему API.
//
// Механика хранения/шифрования секретов вынесена за пределы системы:
// здесь хранятся только токены и сроки их жизни, необходимые
// TokenProvider'у и фоновому refresher'у.
type Connection struct {
	// ID — уникальный идентификатор connection.
	ID uuid.UUID `json:"id"`

	// Provider — имя провайдера в реестре ("google", "slack", ...).
	Provider string `json:"provider"`

	// AccountID — идентификатор аккаунта у провайдера.
	AccountID string `json:"account_id,omitempty"`

	// Status — текущий статус учётки.
	Status ConnectionStatus `json:"status"`

	// AccessToken — текущий access token.
	AccessToken string `json:"access_token"`

	// RefreshToken — refresh token для обновления access token.
	RefreshToken string `json:"refresh_token,omitempty"`

	// ExpiresAt — время истечения access token.
	// Nil — токен бессрочный, refresher его не трогает.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// FailureCount — количество подряд неудачных попыток обновления.
	// Сбрасывается при успешном refresh.
	FailureCount int `json:"failure_count,omitempty"`

	// CreatedAt — время создания connection.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего обновления токенов.
	UpdatedAt time.Time `json:"updated_at"`
}

// IsExpiringWithin проверяет, истекает ли access token в ближайшее окно.
func (c *Connection) IsExpiringWithin(window time.Duration, now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now.Add(window))
}

// IsUsable возвращает true, если учётка пригодна для выдачи токена.
func (c *Connection) IsUsable(now time.Time) bool {
	if c.Status != ConnectionStatusActive {
		return false
	}
	if c.ExpiresAt != nil && c.ExpiresAt.Before(now) {
		return false
	}
	return true
}

// RecordRefresh записывает успешное обновление токенов.
func (c *Connection) RecordRefresh(accessToken, refreshToken string, expiresAt *time.Time) {
	c.AccessToken = accessToken
	if refreshToken != "" {
		c.RefreshToken = refreshToken
	}
	c.ExpiresAt = expiresAt
	c.Status = ConnectionStatusActive
	c.FailureCount = 0
	c.UpdatedAt = time.Now()
}

// RecordRefreshFailure записывает неудачную попытку обновления.
// После maxFailures подряд учётка помечается EXPIRED.
func (c *Connection) RecordRefreshFailure(maxFailures int) {
	c.FailureCount++
	if c.FailureCount >= maxFailures {
		c.Status = ConnectionStatusExpired
	}
	c.UpdatedAt = time.Now()
}
