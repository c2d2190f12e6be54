package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/repo"
)

// --- Fakes ---

type fakeRunStore struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*domain.Run
}

func newFakeRunStore(runs ...*domain.Run) *fakeRunStore {
	s := &fakeRunStore{runs: make(map[uuid.UUID]*domain.Run)}
	for _, r := range runs {
		cp := *r
		s.runs[r.ID] = &cp
	}
	return s
}

func (s *fakeRunStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) ListPending(_ context.Context, limit int) ([]domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []domain.Run
	for _, run := range s.runs {
		if run.Status == domain.RunStatusPending {
			pending = append(pending, *run)
		}
		if len(pending) >= limit {
			break
		}
	}
	return pending, nil
}

func (s *fakeRunStore) ClaimPending(_ context.Context, id uuid.UUID) (*domain.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if run.Status != domain.RunStatusPending {
		return nil, repo.ErrInvalidState
	}
	run.MarkRunning()
	cp := *run
	return &cp, nil
}

func (s *fakeRunStore) Update(_ context.Context, run *domain.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return repo.ErrNotFound
	}
	cp := *run
	s.runs[run.ID] = &cp
	return nil
}

func (s *fakeRunStore) status(id uuid.UUID) domain.RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs[id].Status
}

type fakeVersionStore struct {
	versions map[string]*domain.WorkflowVersion
}

func versionKey(workflowID uuid.UUID, version int) string {
	return fmt.Sprintf("%s:%d", workflowID, version)
}

func newFakeVersionStore(versions ...*domain.WorkflowVersion) *fakeVersionStore {
	s := &fakeVersionStore{versions: make(map[string]*domain.WorkflowVersion)}
	for _, v := range versions {
		s.versions[versionKey(v.WorkflowID, v.Version)] = v
	}
	return s
}

func (s *fakeVersionStore) GetVersion(_ context.Context, workflowID uuid.UUID, version int) (*domain.WorkflowVersion, error) {
	v, ok := s.versions[versionKey(workflowID, version)]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return v, nil
}

// stubExecutor выполняет узлы через настраиваемую функцию.
type stubExecutor struct {
	fn func(node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error)
}

func (e *stubExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	if e.fn == nil {
		return map[string]any{"ok": true}, nil
	}
	return e.fn(node, inputs)
}

// blockingExecutor блокируется до отмены контекста.
type blockingExecutor struct {
	started chan string
}

func (e *blockingExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, _ map[string]any) (map[string]any, error) {
	select {
	case e.started <- node.ID:
	default:
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

// --- Helpers ---

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func linearSpec() domain.WorkflowSpec {
	return domain.WorkflowSpec{
		Nodes: []domain.NodeDef{
			{ID: "start", Type: "trigger"},
			{ID: "work", Type: "transform", DependsOn: []string{"start"}},
		},
	}
}

func pendingRun(workflowID uuid.UUID) *domain.Run {
	return &domain.Run{
		ID:         uuid.New(),
		WorkflowID: workflowID,
		Version:    1,
		Status:     domain.RunStatusPending,
		Inputs:     map[string]any{"key": "value"},
		CreatedAt:  time.Now(),
	}
}

func newTestOrchestrator(runs RunStore, versions VersionStore, exec engine.NodeExecutor) *Orchestrator {
	o := New(Config{
		Runs:     runs,
		Versions: versions,
		Executor: exec,
		Logger:   quietLogger(),
	})
	// Start без MQ и без polling-горутины: runCtx нужен processRun.
	o.runCtx, o.cancelFunc = context.WithCancel(context.Background())
	return o
}

func waitForTerminal(t *testing.T, store *fakeRunStore, id uuid.UUID) domain.RunStatus {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatalf("run %s did not reach terminal status, last: %s", id, store.status(id))
		case <-time.After(5 * time.Millisecond):
			if st := store.status(id); st.IsTerminal() {
				return st
			}
		}
	}
}

// --- Tests ---

func TestProcessRun_Succeeds(t *testing.T) {
	workflowID := uuid.New()
	run := pendingRun(workflowID)
	store := newFakeRunStore(run)
	versions := newFakeVersionStore(&domain.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    1,
		Spec:       linearSpec(),
	})

	exec := &stubExecutor{fn: func(node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
		return map[string]any{"node": node.ID}, nil
	}}

	o := newTestOrchestrator(store, versions, exec)
	defer o.Stop()

	if err := o.processRun(context.Background(), run.ID); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st := waitForTerminal(t, store, run.ID); st != domain.RunStatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", st)
	}

	final, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("get final run: %v", err)
	}
	if final.Summary == nil || final.Summary.Completed != 2 {
		t.Fatalf("summary = %+v, want 2 completed", final.Summary)
	}
	if final.Context == nil {
		t.Fatal("final run has no context snapshot")
	}
	if final.FinishedAt == nil {
		t.Fatal("FinishedAt not set")
	}
	if final.Error != "" {
		t.Fatalf("unexpected error: %q", final.Error)
	}
}

func TestProcessRun_NodeFailureFailsRun(t *testing.T) {
	workflowID := uuid.New()
	run := pendingRun(workflowID)
	store := newFakeRunStore(run)
	versions := newFakeVersionStore(&domain.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    1,
		Spec:       linearSpec(),
	})

	exec := &stubExecutor{fn: func(node *engine.ExecutableNode, _ map[string]any) (map[string]any, error) {
		if node.ID == "work" {
			return nil, engine.NewExecError(engine.ErrorTypeValidation, "bad config")
		}
		return map[string]any{}, nil
	}}

	o := newTestOrchestrator(store, versions, exec)
	defer o.Stop()

	if err := o.processRun(context.Background(), run.ID); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st := waitForTerminal(t, store, run.ID); st != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", st)
	}

	final, _ := store.GetByID(context.Background(), run.ID)
	if !strings.Contains(final.Error, "work") {
		t.Fatalf("error %q does not name the failed node", final.Error)
	}
	if len(final.NodeErrors) != 1 || final.NodeErrors[0].NodeID != "work" {
		t.Fatalf("node errors = %+v", final.NodeErrors)
	}
}

func TestProcessRun_VersionNotFound(t *testing.T) {
	run := pendingRun(uuid.New())
	store := newFakeRunStore(run)
	o := newTestOrchestrator(store, newFakeVersionStore(), &stubExecutor{})
	defer o.Stop()

	if err := o.processRun(context.Background(), run.ID); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st := store.status(run.ID); st != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", st)
	}
	final, _ := store.GetByID(context.Background(), run.ID)
	if !strings.Contains(final.Error, "version not found") {
		t.Fatalf("error = %q", final.Error)
	}
}

func TestProcessRun_InvalidSpec(t *testing.T) {
	workflowID := uuid.New()
	run := pendingRun(workflowID)
	store := newFakeRunStore(run)
	versions := newFakeVersionStore(&domain.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    1,
		Spec: domain.WorkflowSpec{
			Nodes: []domain.NodeDef{
				{ID: "a", Type: "transform", DependsOn: []string{"b"}},
				{ID: "b", Type: "transform", DependsOn: []string{"a"}},
			},
		},
	})

	o := newTestOrchestrator(store, versions, &stubExecutor{})
	defer o.Stop()

	if err := o.processRun(context.Background(), run.ID); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	if st := store.status(run.ID); st != domain.RunStatusFailed {
		t.Fatalf("status = %s, want FAILED", st)
	}
}

func TestProcessRun_ClaimLost(t *testing.T) {
	run := pendingRun(uuid.New())
	run.Status = domain.RunStatusRunning
	store := newFakeRunStore(run)

	o := newTestOrchestrator(store, newFakeVersionStore(), &stubExecutor{})
	defer o.Stop()

	err := o.processRun(context.Background(), run.ID)
	if !errors.Is(err, ErrRunNotPending) {
		t.Fatalf("err = %v, want ErrRunNotPending", err)
	}
}

func TestProcessRun_NotFound(t *testing.T) {
	o := newTestOrchestrator(newFakeRunStore(), newFakeVersionStore(), &stubExecutor{})
	defer o.Stop()

	err := o.processRun(context.Background(), uuid.New())
	if !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("err = %v, want ErrRunNotFound", err)
	}
}

func TestCancel_ActiveRun(t *testing.T) {
	workflowID := uuid.New()
	run := pendingRun(workflowID)
	store := newFakeRunStore(run)
	versions := newFakeVersionStore(&domain.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    1,
		Spec:       linearSpec(),
	})

	exec := &blockingExecutor{started: make(chan string, 1)}
	o := newTestOrchestrator(store, versions, exec)
	defer o.Stop()

	if err := o.processRun(context.Background(), run.ID); err != nil {
		t.Fatalf("processRun: %v", err)
	}

	select {
	case <-exec.started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger node never started")
	}

	if o.ActiveRunsCount() != 1 {
		t.Fatalf("active runs = %d, want 1", o.ActiveRunsCount())
	}

	if err := o.Cancel(context.Background(), run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	if st := waitForTerminal(t, store, run.ID); st != domain.RunStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", st)
	}
	if o.ActiveRunsCount() != 0 {
		t.Fatalf("active runs = %d after cancel", o.ActiveRunsCount())
	}
}

func TestCancel_PendingRun(t *testing.T) {
	run := pendingRun(uuid.New())
	store := newFakeRunStore(run)
	o := newTestOrchestrator(store, newFakeVersionStore(), &stubExecutor{})
	defer o.Stop()

	if err := o.Cancel(context.Background(), run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if st := store.status(run.ID); st != domain.RunStatusCancelled {
		t.Fatalf("status = %s, want CANCELLED", st)
	}
}

func TestCancel_FinishedRunIsNoop(t *testing.T) {
	run := pendingRun(uuid.New())
	run.MarkRunning()
	run.MarkSucceeded()
	store := newFakeRunStore(run)
	o := newTestOrchestrator(store, newFakeVersionStore(), &stubExecutor{})
	defer o.Stop()

	if err := o.Cancel(context.Background(), run.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if st := store.status(run.ID); st != domain.RunStatusSucceeded {
		t.Fatalf("status changed to %s", st)
	}
}

func TestPoll_PicksUpPendingRuns(t *testing.T) {
	workflowID := uuid.New()
	run := pendingRun(workflowID)
	store := newFakeRunStore(run)
	versions := newFakeVersionStore(&domain.WorkflowVersion{
		WorkflowID: workflowID,
		Version:    1,
		Spec:       linearSpec(),
	})

	o := newTestOrchestrator(store, versions, &stubExecutor{})
	defer o.Stop()

	o.poll(context.Background())

	if st := waitForTerminal(t, store, run.ID); st != domain.RunStatusSucceeded {
		t.Fatalf("status = %s, want SUCCEEDED", st)
	}
}

func TestRunErrorMessage(t *testing.T) {
	succeeded := &engine.RunReport{Status: domain.RunStatusSucceeded}
	if msg := runErrorMessage(succeeded); msg != "" {
		t.Fatalf("message for succeeded run: %q", msg)
	}

	deadlocked := &engine.RunReport{Status: domain.RunStatusFailed, Deadlocked: true}
	if msg := runErrorMessage(deadlocked); !strings.Contains(msg, "no runnable nodes") {
		t.Fatalf("deadlock message = %q", msg)
	}

	failed := &engine.RunReport{
		Status: domain.RunStatusFailed,
		NodeErrors: []domain.NodeError{
			{NodeID: "a"},
			{NodeID: "b"},
		},
	}
	if msg := runErrorMessage(failed); msg != "nodes failed: a, b" {
		t.Fatalf("failure message = %q", msg)
	}
}
