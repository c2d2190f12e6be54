package engine

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Значения по умолчанию для политики повторных попыток.
const (
	defaultMaxRetries        = 3
	defaultInitialDelayMs    = 1000
	defaultMaxDelayMs        = 30000
	defaultBackoffMultiplier = 2.0
)

// DefaultRetryConfig возвращает политику по умолчанию: ретраятся
// временные ошибки (rate limit, 5xx, сеть, таймаут), постоянные
// (валидация, аутентификация, политика контента) падают сразу.
func DefaultRetryConfig() *domain.RetryConfig {
	return &domain.RetryConfig{
		MaxRetries:        defaultMaxRetries,
		InitialDelayMs:    defaultInitialDelayMs,
		MaxDelayMs:        defaultMaxDelayMs,
		BackoffMultiplier: defaultBackoffMultiplier,
		RetryableErrors: []string{
			ErrorTypeRateLimit,
			ErrorTypeServer,
			ErrorTypeNetwork,
			ErrorTypeTimeout,
		},
		RetryableStatusCodes: []int{429, 500, 502, 503, 504},
	}
}

// IsRetryable решает, можно ли повторить попытку после ошибки.
//
// Ошибка ретраится, если её тег входит в RetryableErrors ИЛИ её
// HTTP-код входит в RetryableStatusCodes. Проверяются только списки из
// конфигурации: пустые списки означают, что не ретраится ничего —
// явная конфигурация всегда сильнее встроенных значений по умолчанию.
func IsRetryable(cfg *domain.RetryConfig, e *ExecError) bool {
	if cfg == nil || e == nil {
		return false
	}
	for _, t := range cfg.RetryableErrors {
		if t == e.Type {
			return true
		}
	}
	if e.StatusCode > 0 {
		for _, code := range cfg.RetryableStatusCodes {
			if code == e.StatusCode {
				return true
			}
		}
	}
	return false
}

// MaxAttempts возвращает общее количество попыток: первая + MaxRetries.
func MaxAttempts(cfg *domain.RetryConfig) int {
	if cfg == nil || cfg.MaxRetries < 0 {
		return 1
	}
	return cfg.MaxRetries + 1
}

// BackoffDelay вычисляет задержку перед повтором:
//
//	delay(attempt) = min(initialDelay * multiplier^attempt, maxDelay)
//
// attempt нумеруется с нуля. Нулевые числовые поля конфигурации
// заменяются значениями по умолчанию.
func BackoffDelay(cfg *domain.RetryConfig, attempt int) time.Duration {
	initialMs := defaultInitialDelayMs
	maxMs := defaultMaxDelayMs
	multiplier := defaultBackoffMultiplier

	if cfg != nil {
		if cfg.InitialDelayMs > 0 {
			initialMs = cfg.InitialDelayMs
		}
		if cfg.MaxDelayMs > 0 {
			maxMs = cfg.MaxDelayMs
		}
		if cfg.BackoffMultiplier > 0 {
			multiplier = cfg.BackoffMultiplier
		}
	}

	maxDelay := time.Duration(maxMs) * time.Millisecond

	delay := float64(initialMs)
	for i := 0; i < attempt; i++ {
		delay *= multiplier
		if delay >= float64(maxMs) {
			return maxDelay
		}
	}

	d := time.Duration(delay) * time.Millisecond
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// resolveRetryConfig выбирает политику узла: собственная → из опций
// run → встроенная по умолчанию.
func resolveRetryConfig(node *ExecutableNode, fallback *domain.RetryConfig) *domain.RetryConfig {
	if node.Retry != nil {
		return node.Retry
	}
	if fallback != nil {
		return fallback
	}
	return DefaultRetryConfig()
}
