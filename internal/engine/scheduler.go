package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// NodeExecutor — внешняя способность выполнить один узел.
//
// Реализации обязаны возвращать типизированную ошибку (*ExecError) при
// падении, чтобы Retry Policy Engine классифицировал её по тегу и
// HTTP-коду. Произвольные ошибки получают тег UnknownError и по
// умолчанию не ретраятся.
type NodeExecutor interface {
	Execute(ctx context.Context, node *ExecutableNode, inputs map[string]any) (map[string]any, error)
}

// Observer — приёмник структурированных событий о переходах состояний.
// Формат ядром не навязывается; телеметрия реализует его поверх
// Prometheus, тесты — поверх слайсов.
type Observer interface {
	NodeStarted(runID, nodeID string, attempt int)
	NodeFinished(runID, nodeID string, status domain.NodeStatus)
	NodeRetried(runID, nodeID string, attempt int, delay time.Duration)
	RunFinished(runID string, status domain.RunStatus, summary domain.ExecutionSummary, duration time.Duration)
}

// noopObserver — наблюдатель по умолчанию.
type noopObserver struct{}

func (noopObserver) NodeStarted(string, string, int)                 {}
func (noopObserver) NodeFinished(string, string, domain.NodeStatus) {}
func (noopObserver) NodeRetried(string, string, int, time.Duration) {}
func (noopObserver) RunFinished(string, domain.RunStatus, domain.ExecutionSummary, time.Duration) {
}

// RunOptions — опции одного запуска workflow.
type RunOptions struct {
	// Inputs — входные параметры run (попадают в триггерный узел).
	Inputs map[string]any

	// MaxConcurrentNodes — переопределяет лимит из BuiltWorkflow.
	MaxConcurrentNodes int

	// RetryConfig — политика для узлов без собственной политики.
	// Nil — встроенная политика по умолчанию.
	RetryConfig *domain.RetryConfig

	// Observer — приёмник событий. Nil — no-op.
	Observer Observer

	// Logger — логгер. Nil — slog.Default().
	Logger *slog.Logger
}

// RunReport — итог одного запуска workflow.
//
// Run всегда завершается отчётом: падение отдельных узлов сворачивается
// в состояние очереди и никогда не прерывает цикл. Статус FAILED — это
// производный факт (есть упавшие узлы или отсутствие прогресса), а не
// ранний выход.
type RunReport struct {
	// RunID — идентификатор run.
	RunID string

	// Status — итоговый статус: SUCCEEDED, FAILED или CANCELLED.
	Status domain.RunStatus

	// Deadlocked — true, если run завершён из-за отсутствия готовых
	// узлов при незавершённом графе.
	Deadlocked bool

	// Summary — счётчики узлов по финальным категориям.
	Summary domain.ExecutionSummary

	// Context — снапшот выходов узлов (частичные результаты
	// сохраняются и для упавших runs).
	Context *RunContext

	// NodeErrors — ошибки упавших узлов, по одной на узел.
	NodeErrors []domain.NodeError

	// Attempts — количество попыток по узлам (nodeID → попытки).
	Attempts map[string]int

	// StartedAt, FinishedAt — границы выполнения.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Runner выполняет построенные workflows.
//
// Один Runner можно использовать для множества параллельных runs:
// он не держит состояния run — каждый запуск является чистой свёрткой
// над парой (очередь, контекст).
type Runner struct {
	executor NodeExecutor
	logger   *slog.Logger
	observer Observer
}

// NewRunner создаёт Runner с заданным executor'ом.
func NewRunner(executor NodeExecutor, logger *slog.Logger, observer Observer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if observer == nil {
		observer = noopObserver{}
	}
	return &Runner{
		executor: executor,
		logger:   logger,
		observer: observer,
	}
}

// RunWorkflow — основная точка входа: выполняет built workflow до
// завершения и возвращает отчёт.
func RunWorkflow(ctx context.Context, runID string, wf *BuiltWorkflow, executor NodeExecutor, opts RunOptions) *RunReport {
	r := NewRunner(executor, opts.Logger, opts.Observer)
	return r.Run(ctx, runID, wf, opts)
}

// nodeResult — результат выполнения одного узла в батче.
type nodeResult struct {
	nodeID   string
	outputs  map[string]any
	attempts int
	err      *ExecError
}

// Run выполняет workflow до завершения.
//
// Цикл: пока очередь не завершена — собрать батч готовых узлов
// (не более maxConcurrent), выполнить их параллельно, дождаться всех
// (барьер) и свернуть результаты в очередь и контекст. Между батчами
// цикл однопоточный, поэтому мутации очереди и контекста свободны от
// гонок без блокировок.
//
// Отмена контекста прекращает выдачу новых батчей; результаты текущего
// батча сворачиваются в контекст, после чего run отчитывается CANCELLED.
func (r *Runner) Run(ctx context.Context, runID string, wf *BuiltWorkflow, opts RunOptions) *RunReport {
	startedAt := time.Now()

	maxConcurrent := opts.MaxConcurrentNodes
	if maxConcurrent <= 0 {
		maxConcurrent = wf.MaxConcurrentNodes
	}

	queue := NewExecutionQueue(wf)
	rctx := NewRunContext(ContextMetadata{
		RunID:      runID,
		TotalNodes: wf.Size(),
		Inputs:     opts.Inputs,
		StartedAt:  startedAt,
	})

	report := &RunReport{
		RunID:     runID,
		Attempts:  make(map[string]int),
		StartedAt: startedAt,
	}

	cancelled := false
	for !queue.IsComplete() {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		ready := queue.Ready(maxConcurrent)
		if len(ready) == 0 {
			// Нет готовых узлов при незавершённом графе: ошибка
			// структуры, а не узла. Завершаем, а не зависаем.
			report.Deadlocked = true
			r.logger.Error("workflow deadlocked",
				"run_id", runID,
				"error", ErrNoProgress,
			)
			break
		}

		queue.MarkExecuting(ready...)
		results := r.executeBatch(ctx, runID, wf, rctx, ready, opts.RetryConfig)

		// Reducer: сворачиваем результаты батча в очередь и контекст.
		for _, res := range results {
			report.Attempts[res.nodeID] = res.attempts

			if res.err == nil {
				queue.MarkCompleted(res.nodeID)
				rctx.StoreOutput(res.nodeID, res.outputs)
				r.observer.NodeFinished(runID, res.nodeID, domain.NodeStatusCompleted)
				continue
			}

			if errors.Is(res.err, context.Canceled) {
				// Узел не завершился сам — run отменён. Не считаем
				// это падением узла и не каскадируем.
				cancelled = true
				continue
			}

			nerr := res.err.NodeError(res.nodeID)
			queue.MarkFailed(res.nodeID, nerr)
			rctx.StoreFailure(res.nodeID, nerr)
			r.observer.NodeFinished(runID, res.nodeID, domain.NodeStatusFailed)

			r.logger.Warn("node failed",
				"run_id", runID,
				"node_id", res.nodeID,
				"error_type", nerr.Type,
				"attempts", res.attempts,
				"error", nerr.Message,
			)

			for _, skippedID := range CascadeSkip(queue, res.nodeID) {
				r.observer.NodeFinished(runID, skippedID, domain.NodeStatusSkipped)
			}
		}

		if cancelled {
			break
		}
	}

	report.Summary = queue.Summary()
	report.Context = rctx
	report.NodeErrors = queue.NodeErrors()
	report.FinishedAt = time.Now()

	switch {
	case cancelled:
		report.Status = domain.RunStatusCancelled
	case report.Deadlocked || queue.HasFailed():
		report.Status = domain.RunStatusFailed
	default:
		report.Status = domain.RunStatusSucceeded
	}

	r.observer.RunFinished(runID, report.Status, report.Summary, report.FinishedAt.Sub(startedAt))
	r.logger.Info("run finished",
		"run_id", runID,
		"status", report.Status,
		"completed", report.Summary.Completed,
		"failed", report.Summary.Failed,
		"skipped", report.Summary.Skipped,
		"duration", report.FinishedAt.Sub(startedAt),
	)

	return report
}

// executeBatch выполняет батч узлов параллельно и ждёт завершения всех
// (барьер на итерацию). Внутри батча зависимостей нет — это гарантирует
// проверка готовности, поэтому порядок выполнения внутри батча на
// корректность не влияет.
func (r *Runner) executeBatch(ctx context.Context, runID string, wf *BuiltWorkflow, rctx *RunContext, ready []string, fallbackRetry *domain.RetryConfig) []nodeResult {
	results := make([]nodeResult, len(ready))

	var wg sync.WaitGroup
	for i, nodeID := range ready {
		wg.Add(1)
		go func(i int, nodeID string) {
			defer wg.Done()
			results[i] = r.executeNode(ctx, runID, wf, rctx, wf.Nodes[nodeID], fallbackRetry)
		}(i, nodeID)
	}
	wg.Wait()

	return results
}

// executeNode выполняет один узел с повторными попытками согласно его
// политике. Входы разрешаются из контекста по рёбрам; триггерный узел
// получает входные параметры run.
func (r *Runner) executeNode(ctx context.Context, runID string, wf *BuiltWorkflow, rctx *RunContext, node *ExecutableNode, fallbackRetry *domain.RetryConfig) nodeResult {
	inputs := ResolveInputs(wf, rctx, node.ID)
	if node.ID == wf.TriggerNodeID && len(inputs) == 0 {
		inputs = rctx.Metadata().Inputs
	}

	cfg := resolveRetryConfig(node, fallbackRetry)
	maxAttempts := MaxAttempts(cfg)

	var lastErr *ExecError
	for attempt := 0; attempt < maxAttempts; attempt++ {
		r.observer.NodeStarted(runID, node.ID, attempt+1)

		execCtx := ctx
		var cancel context.CancelFunc
		if node.TimeoutSec > 0 {
			execCtx, cancel = context.WithTimeout(ctx, time.Duration(node.TimeoutSec)*time.Second)
		}

		outputs, err := r.executor.Execute(execCtx, node, inputs)
		if cancel != nil {
			cancel()
		}

		if err == nil {
			return nodeResult{nodeID: node.ID, outputs: outputs, attempts: attempt + 1}
		}

		if errors.Is(err, context.Canceled) {
			return nodeResult{
				nodeID:   node.ID,
				attempts: attempt + 1,
				err:      &ExecError{Type: ErrorTypeUnknown, Message: "run cancelled", Err: context.Canceled},
			}
		}

		lastErr = Classify(err)

		if !IsRetryable(cfg, lastErr) {
			return nodeResult{nodeID: node.ID, attempts: attempt + 1, err: lastErr}
		}

		if attempt == maxAttempts-1 {
			// Попытки исчерпаны: последняя ошибка становится финальной,
			// тег — синтетический MaxRetriesExceeded.
			return nodeResult{
				nodeID:   node.ID,
				attempts: maxAttempts,
				err: &ExecError{
					Type:       ErrorTypeMaxRetries,
					Message:    fmt.Sprintf("exhausted %d attempts: %s", maxAttempts, lastErr.Message),
					StatusCode: lastErr.StatusCode,
					Err:        lastErr,
				},
			}
		}

		delay := BackoffDelay(cfg, attempt)
		r.observer.NodeRetried(runID, node.ID, attempt+1, delay)
		r.logger.Debug("retrying node",
			"run_id", runID,
			"node_id", node.ID,
			"attempt", attempt+1,
			"delay", delay,
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nodeResult{
				nodeID:   node.ID,
				attempts: attempt + 1,
				err:      &ExecError{Type: ErrorTypeUnknown, Message: "run cancelled", Err: context.Canceled},
			}
		}
	}

	// Недостижимо: цикл всегда выходит через return выше.
	return nodeResult{nodeID: node.ID, attempts: maxAttempts, err: lastErr}
}
