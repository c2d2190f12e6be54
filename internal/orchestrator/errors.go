package orchestrator

import "errors"

// Ошибки оркестратора.
var (
	// ErrRunNotFound — run не найден в БД.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound — workflow или workflow_version не найден.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrInvalidWorkflowSpec — WorkflowSpec не прошёл валидацию при построении DAG.
	ErrInvalidWorkflowSpec = errors.New("invalid workflow spec")

	// ErrRunAlreadyActive — run уже обрабатывается этим процессом.
	ErrRunAlreadyActive = errors.New("run already being processed")

	// ErrRunNotPending — run уже забран другим orchestrator или завершён.
	ErrRunNotPending = errors.New("run is not in PENDING status")

	// ErrOrchestratorStopped — оркестратор остановлен.
	ErrOrchestratorStopped = errors.New("orchestrator stopped")
)
