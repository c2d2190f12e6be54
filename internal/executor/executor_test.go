package executor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shaiso/Conveyor/internal/engine"
)

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	r.Register(NewDelayExecutor())
	if !r.Has("delay") {
		t.Error("should have delay")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry(nil)

	expectedTypes := []string{"delay", "http", "output", "transform", "trigger"}
	types := r.Types()
	if len(types) != len(expectedTypes) {
		t.Fatalf("expected %d types, got %v", len(expectedTypes), types)
	}
	for i, typ := range expectedTypes {
		if types[i] != typ {
			t.Errorf("expected %s at %d, got %s", typ, i, types[i])
		}
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := DefaultRegistry(nil)

	node := &engine.ExecutableNode{ID: "n1", Type: "teleport"}
	_, err := r.Execute(context.Background(), node, nil)

	var execErr *engine.ExecError
	if !errors.As(err, &execErr) {
		t.Fatalf("expected ExecError, got %v", err)
	}
	if execErr.Type != engine.ErrorTypeValidation {
		t.Errorf("unknown type should be a validation error, got %s", execErr.Type)
	}
}

// Trigger Tests

func TestTriggerExecutor(t *testing.T) {
	e := NewTriggerExecutor()
	node := &engine.ExecutableNode{ID: "start", Type: "trigger"}

	outputs, err := e.Execute(context.Background(), node, map[string]any{"city": "Oslo"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["city"] != "Oslo" {
		t.Errorf("trigger should pass run inputs through, got %v", outputs)
	}

	outputs, err = e.Execute(context.Background(), node, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs == nil || len(outputs) != 0 {
		t.Errorf("nil inputs should give empty outputs, got %v", outputs)
	}
}

// Delay Tests

func TestDelayExecutor(t *testing.T) {
	e := NewDelayExecutor()
	node := &engine.ExecutableNode{
		ID:     "wait",
		Type:   "delay",
		Config: map[string]any{"duration_ms": 10},
	}

	start := time.Now()
	outputs, err := e.Execute(context.Background(), node, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("delay returned too early")
	}
	if outputs["duration_ms"] != int64(10) {
		t.Errorf("expected duration_ms=10, got %v", outputs["duration_ms"])
	}
}

func TestDelayExecutor_MissingDuration(t *testing.T) {
	e := NewDelayExecutor()
	node := &engine.ExecutableNode{ID: "wait", Type: "delay", Config: map[string]any{}}

	_, err := e.Execute(context.Background(), node, nil)

	var execErr *engine.ExecError
	if !errors.As(err, &execErr) || execErr.Type != engine.ErrorTypeValidation {
		t.Errorf("missing duration should be a validation error, got %v", err)
	}
}

func TestDelayExecutor_Cancelled(t *testing.T) {
	e := NewDelayExecutor()
	node := &engine.ExecutableNode{
		ID:     "wait",
		Type:   "delay",
		Config: map[string]any{"duration_sec": 30},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(5 * time.Millisecond)
		cancel()
	}()

	_, err := e.Execute(ctx, node, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// Transform Tests

func TestTransformExecutor(t *testing.T) {
	e := NewTransformExecutor()
	node := &engine.ExecutableNode{
		ID:   "shape",
		Type: "transform",
		Config: map[string]any{
			"mappings": map[string]any{
				"greeting": "hello {{ .Inputs.name }}",
				"count":    "{{ .Inputs.n }}",
				"flag":     "true",
			},
		},
	}

	outputs, err := e.Execute(context.Background(), node, map[string]any{"name": "world", "n": 7})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["greeting"] != "hello world" {
		t.Errorf("unexpected greeting: %v", outputs["greeting"])
	}
	if outputs["count"] != int64(7) {
		t.Errorf("numeric result should be parsed, got %T %v", outputs["count"], outputs["count"])
	}
	if outputs["flag"] != true {
		t.Errorf("boolean result should be parsed, got %v", outputs["flag"])
	}
}

func TestTransformExecutor_EmptyMappings(t *testing.T) {
	e := NewTransformExecutor()
	node := &engine.ExecutableNode{ID: "shape", Type: "transform", Config: map[string]any{}}

	outputs, err := e.Execute(context.Background(), node, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outputs) != 0 {
		t.Errorf("expected empty outputs, got %v", outputs)
	}
}

func TestTransformExecutor_BadTemplate(t *testing.T) {
	e := NewTransformExecutor()
	node := &engine.ExecutableNode{
		ID:   "shape",
		Type: "transform",
		Config: map[string]any{
			"mappings": map[string]any{"broken": "{{ .Inputs."},
		},
	}

	_, err := e.Execute(context.Background(), node, nil)

	var execErr *engine.ExecError
	if !errors.As(err, &execErr) || execErr.Type != engine.ErrorTypeValidation {
		t.Errorf("broken template should be a validation error, got %v", err)
	}
}

// Output Tests

func TestOutputExecutor_Passthrough(t *testing.T) {
	e := NewOutputExecutor()
	node := &engine.ExecutableNode{ID: "result", Type: "output"}

	outputs, err := e.Execute(context.Background(), node, map[string]any{"total": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["total"] != 5 {
		t.Errorf("output should pass inputs through, got %v", outputs)
	}
}

func TestOutputExecutor_Fields(t *testing.T) {
	e := NewOutputExecutor()
	node := &engine.ExecutableNode{
		ID:   "result",
		Type: "output",
		Config: map[string]any{
			"fields": map[string]any{
				"report": "total: {{ .Inputs.total }}",
			},
		},
	}

	outputs, err := e.Execute(context.Background(), node, map[string]any{"total": 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["report"] != "total: 5" {
		t.Errorf("unexpected report: %v", outputs["report"])
	}
}

// HTTP Tests

type staticTokens string

func (s staticTokens) AccessToken(context.Context, string) (string, error) {
	return string(s), nil
}

func TestHTTPExecutor_Get(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"items": []any{"a", "b"}})
	}))
	defer srv.Close()

	e := NewHTTPExecutor(nil)
	node := &engine.ExecutableNode{
		ID:     "fetch",
		Type:   "http",
		Config: map[string]any{"url": srv.URL},
	}

	outputs, err := e.Execute(context.Background(), node, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["status_code"] != 200 {
		t.Errorf("expected status 200, got %v", outputs["status_code"])
	}
	body, ok := outputs["body"].(map[string]any)
	if !ok {
		t.Fatalf("JSON body should be parsed, got %T", outputs["body"])
	}
	if items, ok := body["items"].([]any); !ok || len(items) != 2 {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestHTTPExecutor_TemplatedURL(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewHTTPExecutor(nil)
	node := &engine.ExecutableNode{
		ID:     "fetch",
		Type:   "http",
		Config: map[string]any{"url": srv.URL + "/items/{{ .Inputs.id }}"},
	}

	if _, err := e.Execute(context.Background(), node, map[string]any{"id": "42"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotPath != "/items/42" {
		t.Errorf("URL template was not rendered, got path %s", gotPath)
	}
}

func TestHTTPExecutor_PostBody(t *testing.T) {
	var gotBody map[string]any
	var gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	e := NewHTTPExecutor(nil)
	node := &engine.ExecutableNode{
		ID:   "post",
		Type: "http",
		Config: map[string]any{
			"method": "post",
			"url":    srv.URL,
			"body":   map[string]any{"text": "{{ .Inputs.text }}"},
		},
	}

	outputs, err := e.Execute(context.Background(), node, map[string]any{"text": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outputs["status_code"] != 201 {
		t.Errorf("expected status 201, got %v", outputs["status_code"])
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type should default to application/json, got %s", gotContentType)
	}
	if gotBody["text"] != "hi" {
		t.Errorf("body template was not rendered, got %v", gotBody)
	}
}

func TestHTTPExecutor_ErrorStatus(t *testing.T) {
	cases := []struct {
		status   int
		wantType string
	}{
		{429, engine.ErrorTypeRateLimit},
		{503, engine.ErrorTypeServer},
		{401, engine.ErrorTypeAuthentication},
		{404, engine.ErrorTypeValidation},
	}

	for _, tc := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		e := NewHTTPExecutor(nil)
		node := &engine.ExecutableNode{
			ID:     "fetch",
			Type:   "http",
			Config: map[string]any{"url": srv.URL},
		}

		_, err := e.Execute(context.Background(), node, nil)
		srv.Close()

		var execErr *engine.ExecError
		if !errors.As(err, &execErr) {
			t.Fatalf("status %d: expected ExecError, got %v", tc.status, err)
		}
		if execErr.Type != tc.wantType {
			t.Errorf("status %d: expected %s, got %s", tc.status, tc.wantType, execErr.Type)
		}
		if execErr.StatusCode != tc.status {
			t.Errorf("status %d: error should carry the code, got %d", tc.status, execErr.StatusCode)
		}
	}
}

func TestHTTPExecutor_MissingURL(t *testing.T) {
	e := NewHTTPExecutor(nil)
	node := &engine.ExecutableNode{ID: "fetch", Type: "http", Config: map[string]any{}}

	_, err := e.Execute(context.Background(), node, nil)

	var execErr *engine.ExecError
	if !errors.As(err, &execErr) || execErr.Type != engine.ErrorTypeValidation {
		t.Errorf("missing url should be a validation error, got %v", err)
	}
}

func TestHTTPExecutor_ConnectionToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e := NewHTTPExecutor(staticTokens("tok-123"))
	node := &engine.ExecutableNode{
		ID:           "fetch",
		Type:         "http",
		ConnectionID: "conn-1",
		Config:       map[string]any{"url": srv.URL},
	}

	if _, err := e.Execute(context.Background(), node, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAuth != "Bearer tok-123" {
		t.Errorf("expected bearer token header, got %q", gotAuth)
	}
}

func TestHTTPExecutor_NoTokenSource(t *testing.T) {
	e := NewHTTPExecutor(nil)
	node := &engine.ExecutableNode{
		ID:           "fetch",
		Type:         "http",
		ConnectionID: "conn-1",
		Config:       map[string]any{"url": "http://localhost:0"},
	}

	_, err := e.Execute(context.Background(), node, nil)

	var execErr *engine.ExecError
	if !errors.As(err, &execErr) || execErr.Type != engine.ErrorTypeAuthentication {
		t.Errorf("missing token source should be an authentication error, got %v", err)
	}
}
