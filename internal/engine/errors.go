package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Ошибки валидации спецификации. Возникают только в BuildWorkflow —
// цикл планировщика структурных ошибок не бросает.
var (
	// ErrEmptyNodes — спецификация не содержит узлов.
	ErrEmptyNodes = errors.New("workflow spec has no nodes")

	// ErrEmptyNodeID — узел не имеет ID.
	ErrEmptyNodeID = errors.New("node has empty ID")

	// ErrDuplicateNodeID — несколько узлов с одинаковым ID.
	ErrDuplicateNodeID = errors.New("duplicate node ID")

	// ErrMissingDependency — узел зависит от несуществующего узла.
	ErrMissingDependency = errors.New("node depends on unknown node")

	// ErrSelfDependency — узел зависит от самого себя.
	ErrSelfDependency = errors.New("node depends on itself")

	// ErrCyclicDependency — обнаружен цикл в зависимостях.
	ErrCyclicDependency = errors.New("cyclic dependency detected")

	// ErrUnknownEdgeNode — ребро ссылается на несуществующий узел.
	ErrUnknownEdgeNode = errors.New("edge references unknown node")
)

// ErrNoProgress — в незавершённом run нет готовых узлов.
//
// Отдельное терминальное условие (deadlock), не смешивается с падением
// отдельных узлов: планировщик завершает run вместо вечного ожидания.
var ErrNoProgress = errors.New("no ready nodes but workflow incomplete")

// Теги типов ошибок узлов. Retry Policy Engine классифицирует ошибку
// по тегу и HTTP-коду, а не по тексту сообщения.
const (
	// ErrorTypeValidation — невалидные входы/конфигурация узла. Не ретраится.
	ErrorTypeValidation = "ValidationError"

	// ErrorTypeAuthentication — проблема с токеном/доступом. Не ретраится.
	ErrorTypeAuthentication = "AuthenticationError"

	// ErrorTypeContentPolicy — запрос отклонён политикой контента. Не ретраится.
	ErrorTypeContentPolicy = "ContentPolicyError"

	// ErrorTypeRateLimit — внешнее API ограничило частоту запросов.
	ErrorTypeRateLimit = "RateLimitError"

	// ErrorTypeServer — ошибка на стороне внешнего сервера (5xx).
	ErrorTypeServer = "ServerError"

	// ErrorTypeNetwork — сетевая ошибка (DNS, соединение, обрыв).
	ErrorTypeNetwork = "NetworkError"

	// ErrorTypeTimeout — превышен таймаут выполнения узла.
	ErrorTypeTimeout = "TimeoutError"

	// ErrorTypeMaxRetries — синтетический тег: попытки исчерпаны без успеха.
	ErrorTypeMaxRetries = "MaxRetriesExceeded"

	// ErrorTypeUnknown — нераспознанная ошибка executor'а.
	ErrorTypeUnknown = "UnknownError"
)

// ValidationError — ошибка валидации спецификации с контекстом.
type ValidationError struct {
	NodeID  string // ID узла, где произошла ошибка
	Field   string // поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// ExecError — типизированная ошибка выполнения узла.
//
// Executor'ы обязаны возвращать ExecError (а не произвольный error),
// чтобы Retry Policy Engine классифицировал детерминированно, без
// разбора текста сообщений.
type ExecError struct {
	// Type — тег типа ошибки (ErrorType* константы).
	Type string

	// Message — текст ошибки.
	Message string

	// StatusCode — HTTP-код, если ошибка пришла от внешнего API.
	StatusCode int

	// Err — базовая ошибка, если есть.
	Err error
}

// Error реализует интерфейс error.
func (e *ExecError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return e.Type + ": " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ExecError) Unwrap() error {
	return e.Err
}

// NewExecError создаёт ExecError с заданным тегом.
func NewExecError(errType, message string) *ExecError {
	return &ExecError{Type: errType, Message: message}
}

// NewHTTPExecError создаёт ExecError по HTTP-коду ответа.
// 429 → RateLimitError, 401/403 → AuthenticationError, 5xx → ServerError,
// остальные 4xx → ValidationError.
func NewHTTPExecError(statusCode int, message string) *ExecError {
	errType := ErrorTypeValidation
	switch {
	case statusCode == 429:
		errType = ErrorTypeRateLimit
	case statusCode == 401 || statusCode == 403:
		errType = ErrorTypeAuthentication
	case statusCode >= 500:
		errType = ErrorTypeServer
	}
	return &ExecError{Type: errType, Message: message, StatusCode: statusCode}
}

// Classify приводит произвольную ошибку executor'а к ExecError.
//
// ExecError проходит как есть; таймауты контекста получают тег
// TimeoutError; всё остальное — UnknownError (по умолчанию не ретраится).
func Classify(err error) *ExecError {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExecError{Type: ErrorTypeTimeout, Message: err.Error(), Err: err}
	}
	return &ExecError{Type: ErrorTypeUnknown, Message: err.Error(), Err: err}
}

// NodeError формирует запись об ошибке узла для отчёта run.
func (e *ExecError) NodeError(nodeID string) domain.NodeError {
	return domain.NodeError{
		NodeID:     nodeID,
		Type:       e.Type,
		Message:    e.Message,
		StatusCode: e.StatusCode,
		Timestamp:  time.Now(),
	}
}
