package engine

import (
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestCascadeSkip_Chain(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B")
	q.MarkFailed("B", domain.NodeError{NodeID: "B", Type: ErrorTypeServer})

	skipped := CascadeSkip(q, "B")
	if len(skipped) != 2 {
		t.Fatalf("expected 2 skipped, got %v", skipped)
	}
	if q.Status("C") != domain.NodeStatusSkipped || q.Status("D") != domain.NodeStatusSkipped {
		t.Error("C and D should be SKIPPED transitively")
	}
	if q.Status("A") != domain.NodeStatusCompleted {
		t.Error("A must stay COMPLETED")
	}
}

func TestCascadeSkip_DiamondJoin(t *testing.T) {
	// Join-узел D зависит от упавшей ветки B и живой ветки C:
	// он должен быть пропущен, хотя C ещё может завершиться успешно.
	q := NewExecutionQueue(diamondWorkflow(t))

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B", "C")
	q.MarkFailed("B", domain.NodeError{NodeID: "B", Type: ErrorTypeServer})

	CascadeSkip(q, "B")

	if q.Status("D") != domain.NodeStatusSkipped {
		t.Error("join node D should be SKIPPED when any dependency fails")
	}
	// C не зависит от B — каскад её не трогает.
	if q.Status("C") != domain.NodeStatusExecuting {
		t.Errorf("C should stay EXECUTING, got %s", q.Status("C"))
	}

	q.MarkCompleted("C")
	if q.Status("C") != domain.NodeStatusCompleted {
		t.Error("C should complete normally after cascade")
	}
}

func TestCascadeSkip_IndependentBranchesUntouched(t *testing.T) {
	// trigger → {b1 → out1, b2 → out2}: падение b1 не трогает ветку b2.
	wf := buildTestWorkflow(t, []domain.NodeDef{
		{ID: "trigger", Type: "trigger"},
		{ID: "b1", Type: "http", DependsOn: []string{"trigger"}},
		{ID: "out1", Type: "output", DependsOn: []string{"b1"}},
		{ID: "b2", Type: "http", DependsOn: []string{"trigger"}},
		{ID: "out2", Type: "output", DependsOn: []string{"b2"}},
	})
	q := NewExecutionQueue(wf)

	q.MarkExecuting("trigger")
	q.MarkCompleted("trigger")
	q.MarkExecuting("b1", "b2")
	q.MarkFailed("b1", domain.NodeError{NodeID: "b1", Type: ErrorTypeNetwork})

	CascadeSkip(q, "b1")

	if q.Status("out1") != domain.NodeStatusSkipped {
		t.Error("out1 should be SKIPPED")
	}
	if q.Status("b2") != domain.NodeStatusExecuting {
		t.Errorf("b2 must be untouched, got %s", q.Status("b2"))
	}
	if q.Status("out2") != domain.NodeStatusPending {
		t.Errorf("out2 must be untouched, got %s", q.Status("out2"))
	}
}

func TestCascadeSkip_MultipleFailedAncestors(t *testing.T) {
	// sink зависит от обеих упавших веток — пропускается ровно один раз.
	wf := buildTestWorkflow(t, []domain.NodeDef{
		{ID: "root", Type: "trigger"},
		{ID: "left", Type: "http", DependsOn: []string{"root"}},
		{ID: "right", Type: "http", DependsOn: []string{"root"}},
		{ID: "sink", Type: "output", DependsOn: []string{"left", "right"}},
	})
	q := NewExecutionQueue(wf)

	q.MarkExecuting("root")
	q.MarkCompleted("root")
	q.MarkExecuting("left", "right")
	q.MarkFailed("left", domain.NodeError{NodeID: "left", Type: ErrorTypeServer})
	q.MarkFailed("right", domain.NodeError{NodeID: "right", Type: ErrorTypeServer})

	first := CascadeSkip(q, "left")
	second := CascadeSkip(q, "right")

	if len(first) != 1 || first[0] != "sink" {
		t.Errorf("first cascade should skip sink, got %v", first)
	}
	// Повторный каскад от второго предка — no-op (семантика множеств).
	if len(second) != 0 {
		t.Errorf("second cascade should skip nothing, got %v", second)
	}
	if q.Status("sink") != domain.NodeStatusSkipped {
		t.Error("sink should be SKIPPED")
	}
}

func TestCascadeSkip_Idempotent(t *testing.T) {
	q := NewExecutionQueue(chainWorkflow(t))

	q.MarkExecuting("A")
	q.MarkCompleted("A")
	q.MarkExecuting("B")
	q.MarkFailed("B", domain.NodeError{NodeID: "B", Type: ErrorTypeServer})

	CascadeSkip(q, "B")
	again := CascadeSkip(q, "B")

	if len(again) != 0 {
		t.Errorf("repeated cascade should be a no-op, got %v", again)
	}

	s := q.Summary()
	if s.Skipped != 2 {
		t.Errorf("expected 2 skipped after repeated cascade, got %d", s.Skipped)
	}
}
