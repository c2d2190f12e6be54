package domain

import (
	"time"

	"github.com/google/uuid"
)

// Run — экземпляр выполнения workflow.
//
// Run создаётся когда:
// - Пользователь запускает workflow вручную (через CLI)
// - Scheduler создаёт run по расписанию
//
// Каждый run выполняет конкретную версию workflow и владеет собственной
// парой (очередь состояний, контекст). BuiltWorkflow при этом может
// разделяться между параллельными runs — он неизменяемый.
type Run struct {
	// ID — уникальный идентификатор run.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на workflow, который выполняется.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Version — версия workflow, которая выполняется.
	Version int `json:"version"`

	// Status — текущий статус выполнения.
	Status RunStatus `json:"status"`

	// Inputs — входные параметры, переданные при запуске.
	Inputs map[string]any `json:"inputs,omitempty"`

	// Summary — итог выполнения по категориям узлов.
	// Заполняется при завершении run.
	Summary *ExecutionSummary `json:"summary,omitempty"`

	// Context — выходы узлов на момент завершения (полный снапшот).
	// Частичные результаты сохраняются и для упавших runs.
	Context map[string]any `json:"context,omitempty"`

	// NodeErrors — ошибки упавших узлов (по одной на узел).
	NodeErrors []NodeError `json:"node_errors,omitempty"`

	// StartedAt — время начала выполнения (когда статус стал RUNNING).
	StartedAt *time.Time `json:"started_at,omitempty"`

	// FinishedAt — время завершения (успешного или с ошибкой).
	FinishedAt *time.Time `json:"finished_at,omitempty"`

	// Error — текст ошибки, если run завершился с FAILED.
	Error string `json:"error,omitempty"`

	// IdempotencyKey — ключ идемпотентности для предотвращения дубликатов.
	// Для scheduled runs: "{schedule_id}_{next_due_at}"
	IdempotencyKey string `json:"idempotency_key,omitempty"`

	// CreatedAt — время создания run.
	CreatedAt time.Time `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если run ещё не завершён.
func (r *Run) Duration() time.Duration {
	if r.StartedAt == nil || r.FinishedAt == nil {
		return 0
	}
	return r.FinishedAt.Sub(*r.StartedAt)
}

// IsFinished возвращает true, если run завершён (в любом статусе).
func (r *Run) IsFinished() bool {
	return r.Status.IsTerminal()
}

// MarkRunning переводит run в статус RUNNING.
func (r *Run) MarkRunning() {
	now := time.Now()
	r.Status = RunStatusRunning
	r.StartedAt = &now
}

// MarkSucceeded переводит run в статус SUCCEEDED.
func (r *Run) MarkSucceeded() {
	now := time.Now()
	r.Status = RunStatusSucceeded
	r.FinishedAt = &now
}

// MarkFailed переводит run в статус FAILED с ошибкой.
func (r *Run) MarkFailed(err string) {
	now := time.Now()
	r.Status = RunStatusFailed
	r.FinishedAt = &now
	r.Error = err
}

// MarkCancelled переводит run в статус CANCELLED.
func (r *Run) MarkCancelled() {
	now := time.Now()
	r.Status = RunStatusCancelled
	r.FinishedAt = &now
}

// ExecutionSummary — итог выполнения run по категориям узлов.
//
// Инвариант завершённого run: Completed + Failed + Skipped == TotalNodes,
// ни один узел не остаётся в PENDING или EXECUTING.
type ExecutionSummary struct {
	// Completed — количество успешно завершённых узлов.
	Completed int `json:"completed"`

	// Failed — количество упавших узлов.
	Failed int `json:"failed"`

	// Skipped — количество пропущенных каскадом узлов.
	Skipped int `json:"skipped"`

	// TotalNodes — общее количество узлов в графе.
	TotalNodes int `json:"total_nodes"`
}

// NodeError — ошибка выполнения одного узла.
//
// Создаётся по одной на каждый упавший узел. Ошибки узлов никогда не
// «пробрасываются» из цикла планировщика — они сворачиваются в состояние
// очереди, а run продолжает независимые ветки.
type NodeError struct {
	// NodeID — узел, на котором произошла ошибка.
	NodeID string `json:"node_id"`

	// Type — тег типа ошибки ("ValidationError", "RateLimitError", ...).
	// Используется Retry Policy Engine для классификации.
	Type string `json:"error_type"`

	// Message — текст ошибки.
	Message string `json:"message"`

	// StatusCode — HTTP-код, если ошибка пришла от внешнего API.
	StatusCode int `json:"status_code,omitempty"`

	// Timestamp — время возникновения.
	Timestamp time.Time `json:"timestamp"`

	// Stack — опциональный стек/контекст для диагностики.
	Stack string `json:"stack,omitempty"`
}
