package domain

// RunStatus — статус выполнения run.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
//	          (или) → CANCELLED (из PENDING или RUNNING)
type RunStatus string

const (
	// RunStatusPending — run создан, но ещё не начал выполняться.
	RunStatusPending RunStatus = "PENDING"

	// RunStatusRunning — run в процессе выполнения.
	RunStatusRunning RunStatus = "RUNNING"

	// RunStatusSucceeded — run успешно завершён.
	RunStatusSucceeded RunStatus = "SUCCEEDED"

	// RunStatusFailed — run завершился с ошибкой (есть упавшие узлы
	// или выполнение застряло без прогресса).
	RunStatusFailed RunStatus = "FAILED"

	// RunStatusCancelled — run отменён пользователем.
	RunStatusCancelled RunStatus = "CANCELLED"
)

// IsTerminal возвращает true, если статус финальный (run завершён).
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusSucceeded, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus — статус узла внутри одного run.
//
// Жизненный цикл:
//
//	PENDING → EXECUTING → COMPLETED
//	                    ↘ FAILED
//	PENDING → SKIPPED (каскад при падении зависимости)
//
// Финальные статусы: COMPLETED, FAILED, SKIPPED. Узел, достигший
// финального статуса, больше не меняется.
type NodeStatus string

const (
	// NodeStatusPending — узел ожидает выполнения.
	NodeStatusPending NodeStatus = "PENDING"

	// NodeStatusExecuting — узел выполняется.
	NodeStatusExecuting NodeStatus = "EXECUTING"

	// NodeStatusCompleted — узел успешно завершён.
	NodeStatusCompleted NodeStatus = "COMPLETED"

	// NodeStatusFailed — узел завершился с ошибкой (после всех retry).
	NodeStatusFailed NodeStatus = "FAILED"

	// NodeStatusSkipped — узел пропущен: одна из его зависимостей
	// упала или была пропущена.
	NodeStatusSkipped NodeStatus = "SKIPPED"
)

// IsTerminal возвращает true, если статус финальный.
func (s NodeStatus) IsTerminal() bool {
	switch s {
	case NodeStatusCompleted, NodeStatusFailed, NodeStatusSkipped:
		return true
	default:
		return false
	}
}

// ConnectionStatus — статус OAuth-учётки.
type ConnectionStatus string

const (
	// ConnectionStatusActive — учётка действительна.
	ConnectionStatusActive ConnectionStatus = "ACTIVE"

	// ConnectionStatusExpired — access token истёк и не был обновлён.
	ConnectionStatusExpired ConnectionStatus = "EXPIRED"

	// ConnectionStatusRevoked — доступ отозван провайдером или пользователем.
	ConnectionStatusRevoked ConnectionStatus = "REVOKED"
)
