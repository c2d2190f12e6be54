package engine

import (
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

// buildTestWorkflow — вспомогалка для тестов очереди и каскада.
func buildTestWorkflow(t *testing.T, nodes []domain.NodeDef) *BuiltWorkflow {
	t.Helper()
	wf, err := BuildWorkflow(&domain.WorkflowSpec{Nodes: nodes})
	if err != nil {
		t.Fatalf("build workflow: %v", err)
	}
	return wf
}

func chainWorkflow(t *testing.T) *BuiltWorkflow {
	// A → B → C → D
	return buildTestWorkflow(t, []domain.NodeDef{
		{ID: "A", Type: "trigger"},
		{ID: "B", Type: "http", DependsOn: []string{"A"}},
		{ID: "C", Type: "http", DependsOn: []string{"B"}},
		{ID: "D", Type: "output", DependsOn: []string{"C"}},
	})
}

func diamondWorkflow(t *testing.T) *BuiltWorkflow {
	// A → {B, C} → D
	return buildTestWorkflow(t, []domain.NodeDef{
		{ID: "A", Type: "trigger"},
		{ID: "B", Type: "http", DependsOn: []string{"A"}},
		{ID: "C", Type: "http", DependsOn: []string{"A"}},
		{ID: "D", Type: "output", DependsOn: []string{"B", "C"}},
	})
}

func TestExecutionQueue_InitialState(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	for _, id := range []string{"A", "B", "C", "D"} {
		if q.Status(id) != domain.NodeStatusPending {
			t.Errorf("%s should be PENDING, got %s", id, q.Status(id))
		}
	}

	ready := q.Ready(0)
	if len(ready) != 1 || ready[0] != "A" {
		t.Errorf("only root A should be ready, got %v", ready)
	}
}

func TestExecutionQueue_ReadyOrder(t *testing.T) {
	// Два корня и узел второго уровня: порядок — по глубине,
	// внутри глубины — порядок обхода при построении графа
	// (для корней совпадает с порядком определения).
	wf := buildTestWorkflow(t, []domain.NodeDef{
		{ID: "r2", Type: "http"},
		{ID: "r1", Type: "http"},
		{ID: "mid", Type: "http", DependsOn: []string{"r2"}},
	})
	q := NewExecutionQueue(wf)

	ready := q.Ready(0)
	if len(ready) != 2 || ready[0] != "r2" || ready[1] != "r1" {
		t.Errorf("expected [r2 r1], got %v", ready)
	}

	q.MarkExecuting("r2")
	q.MarkCompleted("r2")

	ready = q.Ready(0)
	if len(ready) != 2 || ready[0] != "r1" || ready[1] != "mid" {
		t.Errorf("expected [r1 mid], got %v", ready)
	}
}

func TestExecutionQueue_ReadyOrderWithinLevel(t *testing.T) {
	// Узлы одного уровня разблокируются разными родителями: внутри
	// уровня порядок следует обходу графа (родители обрабатываются
	// в порядке определения), а не порядку определения самих узлов.
	// Для одинакового графа порядок всегда одинаковый.
	wf := buildTestWorkflow(t, []domain.NodeDef{
		{ID: "x", Type: "http", DependsOn: []string{"a"}},
		{ID: "y", Type: "http", DependsOn: []string{"b"}},
		{ID: "b", Type: "http"},
		{ID: "a", Type: "http"},
	})
	q := NewExecutionQueue(wf)

	for _, id := range []string{"a", "b"} {
		q.MarkExecuting(id)
		q.MarkCompleted(id)
	}

	ready := q.Ready(0)
	if len(ready) != 2 || ready[0] != "y" || ready[1] != "x" {
		t.Errorf("expected [y x] (parent traversal order), got %v", ready)
	}
}

func TestExecutionQueue_ReadyBound(t *testing.T) {
	wf := buildTestWorkflow(t, []domain.NodeDef{
		{ID: "a", Type: "http"},
		{ID: "b", Type: "http"},
		{ID: "c", Type: "http"},
	})
	q := NewExecutionQueue(wf)

	ready := q.Ready(2)
	if len(ready) != 2 {
		t.Errorf("expected batch of 2, got %v", ready)
	}
}

func TestExecutionQueue_NotReadyUntilAllDepsCompleted(t *testing.T) {
	q := NewExecutionQueue(diamondWorkflow(t))

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B", "C")
	q.MarkCompleted("B")

	// C ещё EXECUTING — D не готов.
	for _, id := range q.Ready(0) {
		if id == "D" {
			t.Error("D must not be ready while C is executing")
		}
	}

	q.MarkCompleted("C")
	ready := q.Ready(0)
	if len(ready) != 1 || ready[0] != "D" {
		t.Errorf("expected [D], got %v", ready)
	}
}

func TestExecutionQueue_FailedDepNeverReady(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B")
	q.MarkFailed("B", domain.NodeError{NodeID: "B", Type: ErrorTypeServer})

	// Зависимость в FAILED готовности не даёт.
	for _, id := range q.Ready(0) {
		if id == "C" {
			t.Error("C must not be ready after B failed")
		}
	}
}

func TestExecutionQueue_TransitionsIdempotent(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	// MarkExecuting для не-PENDING — no-op.
	q.MarkExecuting("A")
	q.MarkExecuting("A")
	if q.Status("A") != domain.NodeStatusExecuting {
		t.Errorf("A should be EXECUTING, got %s", q.Status("A"))
	}

	// MarkCompleted требует EXECUTING.
	q.MarkCompleted("B")
	if q.Status("B") != domain.NodeStatusPending {
		t.Errorf("B should stay PENDING, got %s", q.Status("B"))
	}

	// Финальный узел больше не меняется.
	q.MarkCompleted("A")
	q.MarkSkipped("A")
	q.MarkFailed("A", domain.NodeError{NodeID: "A"})
	if q.Status("A") != domain.NodeStatusCompleted {
		t.Errorf("terminal A should stay COMPLETED, got %s", q.Status("A"))
	}

	// Повторный MarkSkipped — no-op, состояние не меняется.
	q.MarkSkipped("C")
	q.MarkSkipped("C")
	if q.Status("C") != domain.NodeStatusSkipped {
		t.Errorf("C should be SKIPPED, got %s", q.Status("C"))
	}
}

func TestExecutionQueue_IsCompleteAndSummary(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	if q.IsComplete() {
		t.Error("fresh queue must not be complete")
	}

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B")
	q.MarkFailed("B", domain.NodeError{NodeID: "B", Type: ErrorTypeServer, Message: "boom"})
	CascadeSkip(q, "B")

	if !q.IsComplete() {
		t.Error("queue should be complete: no PENDING/EXECUTING left")
	}

	s := q.Summary()
	if s.Completed != 1 || s.Failed != 1 || s.Skipped != 2 || s.TotalNodes != 4 {
		t.Errorf("unexpected summary: %+v", s)
	}

	errs := q.NodeErrors()
	if len(errs) != 1 || errs[0].NodeID != "B" {
		t.Errorf("expected one NodeError for B, got %v", errs)
	}
}
