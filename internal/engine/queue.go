package engine

import (
	"github.com/shaiso/Conveyor/internal/domain"
)

// ExecutionQueue — машина состояний узлов одного run.
//
// Каждый узел находится ровно в одном из состояний PENDING, EXECUTING,
// COMPLETED, FAILED, SKIPPED. Переходы выполняет только цикл
// планировщика, все мутации происходят в reducer-шаге между батчами,
// поэтому мьютекс не нужен. Очередь принадлежит ровно одному run.
type ExecutionQueue struct {
	wf    *BuiltWorkflow
	state map[string]domain.NodeStatus
	errs  map[string]domain.NodeError

	// order — узлы по возрастанию глубины, внутри глубины — в порядке
	// определения. Фиксирует детерминированный порядок готовности.
	order []string
}

// NewExecutionQueue создаёт очередь: все узлы в PENDING.
// Узлы без зависимостей готовы к выполнению сразу.
func NewExecutionQueue(wf *BuiltWorkflow) *ExecutionQueue {
	q := &ExecutionQueue{
		wf:    wf,
		state: make(map[string]domain.NodeStatus, len(wf.Nodes)),
		errs:  make(map[string]domain.NodeError),
	}
	// Levels идут по возрастанию глубины; внутри уровня — порядок
	// обхода Кана.
	for _, level := range wf.Levels {
		for _, id := range level {
			q.state[id] = domain.NodeStatusPending
			q.order = append(q.order, id)
		}
	}
	return q
}

// Ready возвращает до max узлов, готовых к выполнению.
//
// Узел готов, если он в PENDING и все его зависимости в COMPLETED.
// Зависимость в FAILED или SKIPPED готовности не даёт никогда — такой
// узел либо будет пропущен каскадом, либо останется PENDING.
// Порядок стабильный: по возрастанию глубины, внутри уровня — порядок
// обхода Кана при построении графа. Это не всегда порядок определения
// (узлы одного уровня разблокируются разными родителями), но для
// одинакового графа порядок всегда одинаковый.
func (q *ExecutionQueue) Ready(max int) []string {
	var ready []string
	for _, id := range q.order {
		if q.state[id] != domain.NodeStatusPending {
			continue
		}
		if !q.depsCompleted(id) {
			continue
		}
		ready = append(ready, id)
		if max > 0 && len(ready) >= max {
			break
		}
	}
	return ready
}

// depsCompleted проверяет, что все зависимости узла в COMPLETED.
func (q *ExecutionQueue) depsCompleted(id string) bool {
	for _, depID := range q.wf.Nodes[id].Dependencies {
		if q.state[depID] != domain.NodeStatusCompleted {
			return false
		}
	}
	return true
}

// MarkExecuting переводит узлы PENDING → EXECUTING.
// Для узлов не в PENDING — no-op (защитная идемпотентность).
func (q *ExecutionQueue) MarkExecuting(ids ...string) {
	for _, id := range ids {
		if q.state[id] == domain.NodeStatusPending {
			q.state[id] = domain.NodeStatusExecuting
		}
	}
}

// MarkCompleted переводит узел EXECUTING → COMPLETED.
func (q *ExecutionQueue) MarkCompleted(id string) {
	if q.state[id] == domain.NodeStatusExecuting {
		q.state[id] = domain.NodeStatusCompleted
	}
}

// MarkFailed переводит узел EXECUTING → FAILED и сохраняет ошибку.
// Повторный вызов для финального узла — no-op.
func (q *ExecutionQueue) MarkFailed(id string, nerr domain.NodeError) {
	if q.state[id] == domain.NodeStatusExecuting {
		q.state[id] = domain.NodeStatusFailed
		q.errs[id] = nerr
	}
}

// MarkSkipped переводит узел PENDING|EXECUTING → SKIPPED.
// Для финальных узлов — no-op: каскад можно вызывать повторно безопасно.
func (q *ExecutionQueue) MarkSkipped(id string) {
	switch q.state[id] {
	case domain.NodeStatusPending, domain.NodeStatusExecuting:
		q.state[id] = domain.NodeStatusSkipped
	}
}

// Status возвращает текущее состояние узла.
func (q *ExecutionQueue) Status(id string) domain.NodeStatus {
	return q.state[id]
}

// IsComplete возвращает true, когда нет узлов в PENDING и EXECUTING.
func (q *ExecutionQueue) IsComplete() bool {
	for _, st := range q.state {
		if st == domain.NodeStatusPending || st == domain.NodeStatusExecuting {
			return false
		}
	}
	return true
}

// Summary возвращает счётчики по финальным категориям.
func (q *ExecutionQueue) Summary() domain.ExecutionSummary {
	s := domain.ExecutionSummary{TotalNodes: len(q.state)}
	for _, st := range q.state {
		switch st {
		case domain.NodeStatusCompleted:
			s.Completed++
		case domain.NodeStatusFailed:
			s.Failed++
		case domain.NodeStatusSkipped:
			s.Skipped++
		}
	}
	return s
}

// NodeErrors возвращает ошибки упавших узлов в детерминированном порядке.
func (q *ExecutionQueue) NodeErrors() []domain.NodeError {
	var errs []domain.NodeError
	for _, id := range q.order {
		if nerr, ok := q.errs[id]; ok {
			errs = append(errs, nerr)
		}
	}
	return errs
}

// HasFailed возвращает true, если есть упавшие узлы.
func (q *ExecutionQueue) HasFailed() bool {
	return len(q.errs) > 0
}
