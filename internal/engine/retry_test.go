package engine

import (
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestIsRetryable_Defaults(t *testing.T) {
	cfg := DefaultRetryConfig()

	retryable := []*ExecError{
		NewExecError(ErrorTypeRateLimit, "slow down"),
		NewExecError(ErrorTypeServer, "boom"),
		NewExecError(ErrorTypeNetwork, "refused"),
		NewExecError(ErrorTypeTimeout, "deadline"),
	}
	for _, e := range retryable {
		if !IsRetryable(cfg, e) {
			t.Errorf("%s should be retryable by default", e.Type)
		}
	}

	permanent := []*ExecError{
		NewExecError(ErrorTypeValidation, "bad input"),
		NewExecError(ErrorTypeAuthentication, "no token"),
		NewExecError(ErrorTypeContentPolicy, "blocked"),
		NewExecError(ErrorTypeUnknown, "???"),
	}
	for _, e := range permanent {
		if IsRetryable(cfg, e) {
			t.Errorf("%s must not be retryable by default", e.Type)
		}
	}
}

func TestIsRetryable_ByStatusCode(t *testing.T) {
	cfg := DefaultRetryConfig()

	// Тег не из списка, но код 503 — ретраится.
	e := &ExecError{Type: ErrorTypeUnknown, StatusCode: 503}
	if !IsRetryable(cfg, e) {
		t.Error("status 503 should be retryable by default")
	}

	for _, code := range []int{400, 401, 403, 404} {
		e := &ExecError{Type: ErrorTypeUnknown, StatusCode: code}
		if IsRetryable(cfg, e) {
			t.Errorf("status %d must not be retryable", code)
		}
	}
}

func TestIsRetryable_ExplicitConfigWins(t *testing.T) {
	// Пустые списки: не ретраится ничего, даже ошибки из встроенного
	// списка по умолчанию.
	cfg := &domain.RetryConfig{MaxRetries: 3}

	if IsRetryable(cfg, NewExecError(ErrorTypeRateLimit, "")) {
		t.Error("empty retryable sets must disable retries entirely")
	}
	if IsRetryable(cfg, &ExecError{Type: ErrorTypeServer, StatusCode: 503}) {
		t.Error("empty retryable sets must disable status-code retries too")
	}

	// Узкий список: ретраится только то, что в нём.
	cfg = &domain.RetryConfig{
		MaxRetries:           3,
		RetryableStatusCodes: []int{418},
	}
	if !IsRetryable(cfg, &ExecError{Type: ErrorTypeUnknown, StatusCode: 418}) {
		t.Error("configured status code should be retryable")
	}
	if IsRetryable(cfg, NewExecError(ErrorTypeTimeout, "")) {
		t.Error("timeout is not in the configured sets")
	}
}

func TestMaxAttempts(t *testing.T) {
	if got := MaxAttempts(&domain.RetryConfig{MaxRetries: 3}); got != 4 {
		t.Errorf("expected 4 attempts, got %d", got)
	}
	if got := MaxAttempts(&domain.RetryConfig{MaxRetries: 0}); got != 1 {
		t.Errorf("expected 1 attempt for zero retries, got %d", got)
	}
	if got := MaxAttempts(nil); got != 1 {
		t.Errorf("expected 1 attempt for nil config, got %d", got)
	}
}

func TestBackoffDelay_Exponential(t *testing.T) {
	cfg := &domain.RetryConfig{
		InitialDelayMs:    100,
		MaxDelayMs:        10000,
		BackoffMultiplier: 2,
	}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
	}
	for attempt, want := range expected {
		if got := BackoffDelay(cfg, attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestBackoffDelay_Monotonic(t *testing.T) {
	// При multiplier > 1 задержки не убывают до потолка,
	// после потолка — константа.
	cfg := &domain.RetryConfig{
		InitialDelayMs:    50,
		MaxDelayMs:        1000,
		BackoffMultiplier: 3,
	}

	prev := time.Duration(0)
	capped := false
	for attempt := 0; attempt < 12; attempt++ {
		d := BackoffDelay(cfg, attempt)
		if d < prev {
			t.Fatalf("delay decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if capped && d != time.Second {
			t.Fatalf("delay must stay at cap after reaching it, got %v", d)
		}
		if d == time.Second {
			capped = true
		}
		prev = d
	}
	if !capped {
		t.Error("delay never reached the cap")
	}
}

func TestBackoffDelay_ZeroConfigUsesDefaults(t *testing.T) {
	if got := BackoffDelay(&domain.RetryConfig{}, 0); got != time.Second {
		t.Errorf("expected default initial delay 1s, got %v", got)
	}
	if got := BackoffDelay(nil, 0); got != time.Second {
		t.Errorf("expected default initial delay 1s for nil config, got %v", got)
	}
}

func TestClassify(t *testing.T) {
	execErr := NewHTTPExecError(429, "too many requests")
	if got := Classify(execErr); got.Type != ErrorTypeRateLimit {
		t.Errorf("429 should classify as RateLimitError, got %s", got.Type)
	}

	if got := NewHTTPExecError(500, "oops"); got.Type != ErrorTypeServer {
		t.Errorf("500 should map to ServerError, got %s", got.Type)
	}
	if got := NewHTTPExecError(401, "denied"); got.Type != ErrorTypeAuthentication {
		t.Errorf("401 should map to AuthenticationError, got %s", got.Type)
	}
	if got := NewHTTPExecError(404, "missing"); got.Type != ErrorTypeValidation {
		t.Errorf("404 should map to ValidationError, got %s", got.Type)
	}
}
