package engine

import (
	"reflect"
	"testing"

	"github.com/shaiso/Conveyor/internal/domain"
)

func TestRunContext_StoreAndOverwrite(t *testing.T) {
	rctx := NewRunContext(ContextMetadata{RunID: "r1", TotalNodes: 2})

	if _, ok := rctx.Output("A"); ok {
		t.Error("fresh context must not have outputs")
	}

	rctx.StoreOutput("A", map[string]any{"v": 1})
	rctx.StoreOutput("A", map[string]any{"v": 2})

	out, ok := rctx.Output("A")
	if !ok {
		t.Fatal("output for A should exist")
	}
	// Перезапись после retry: побеждает последняя запись.
	if out.(map[string]any)["v"] != 2 {
		t.Errorf("latest write should win, got %v", out)
	}
}

func TestRunContext_FailureEntry(t *testing.T) {
	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreFailure("B", domain.NodeError{
		NodeID:  "B",
		Type:    ErrorTypeServer,
		Message: "boom",
	})

	out, ok := rctx.Output("B")
	if !ok {
		t.Fatal("failed node should have an explicit error entry")
	}
	m := out.(map[string]any)
	if m["error"] != true || m["error_type"] != ErrorTypeServer || m["message"] != "boom" {
		t.Errorf("unexpected error entry: %v", m)
	}
}

func TestRunContext_OutputsCopy(t *testing.T) {
	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreOutput("A", 1)

	snapshot := rctx.Outputs()
	snapshot["A"] = 42
	snapshot["B"] = 2

	if out, _ := rctx.Output("A"); out != 1 {
		t.Error("mutating the snapshot must not affect the context")
	}
	if _, ok := rctx.Output("B"); ok {
		t.Error("mutating the snapshot must not add entries to the context")
	}
}

func TestResolveInputs_Edges(t *testing.T) {
	wf, err := BuildWorkflow(&domain.WorkflowSpec{
		Nodes: []domain.NodeDef{
			{ID: "fetch", Type: "http"},
			{ID: "render", Type: "transform", DependsOn: []string{"fetch"}},
		},
		Edges: []domain.EdgeDef{
			{ID: "e1", Source: "fetch", Target: "render", SourceHandle: "body", TargetHandle: "text"},
		},
	})
	if err != nil {
		t.Fatalf("build workflow: %v", err)
	}

	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreOutput("fetch", map[string]any{"status": 200, "body": "hello"})

	inputs := ResolveInputs(wf, rctx, "render")
	want := map[string]any{"text": "hello"}
	if !reflect.DeepEqual(inputs, want) {
		t.Errorf("expected %v, got %v", want, inputs)
	}
}

func TestResolveInputs_EdgeWithoutHandles(t *testing.T) {
	wf, err := BuildWorkflow(&domain.WorkflowSpec{
		Nodes: []domain.NodeDef{
			{ID: "src", Type: "http"},
			{ID: "dst", Type: "output", DependsOn: []string{"src"}},
		},
		Edges: []domain.EdgeDef{
			{ID: "e1", Source: "src", Target: "dst"},
		},
	})
	if err != nil {
		t.Fatalf("build workflow: %v", err)
	}

	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreOutput("src", map[string]any{"k": "v"})

	// Без handles: весь выход целиком, ключ — ID source-узла.
	inputs := ResolveInputs(wf, rctx, "dst")
	want := map[string]any{"src": map[string]any{"k": "v"}}
	if !reflect.DeepEqual(inputs, want) {
		t.Errorf("expected %v, got %v", want, inputs)
	}
}

func TestResolveInputs_FallbackToDependencies(t *testing.T) {
	// Рёбер нет — входами становятся выходы зависимостей по их ID.
	q := diamondWorkflow(t)

	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreOutput("B", map[string]any{"b": 1})
	rctx.StoreOutput("C", map[string]any{"c": 2})

	inputs := ResolveInputs(q, rctx, "D")
	if len(inputs) != 2 {
		t.Fatalf("expected 2 inputs, got %v", inputs)
	}
	if _, ok := inputs["B"]; !ok {
		t.Error("inputs should be keyed by dependency ID B")
	}
	if _, ok := inputs["C"]; !ok {
		t.Error("inputs should be keyed by dependency ID C")
	}
}

func TestResolveInputs_MissingOutputsSkipped(t *testing.T) {
	wf := diamondWorkflow(t)

	rctx := NewRunContext(ContextMetadata{RunID: "r1"})
	rctx.StoreOutput("B", map[string]any{"b": 1})
	// У C выхода нет (например, узел пропущен).

	inputs := ResolveInputs(wf, rctx, "D")
	if len(inputs) != 1 {
		t.Errorf("missing outputs must be silently skipped, got %v", inputs)
	}
	if _, ok := inputs["C"]; ok {
		t.Error("skipped node must not contribute an input")
	}
}
