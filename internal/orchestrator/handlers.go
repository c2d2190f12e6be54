package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// finalizeTimeout — бюджет на запись итога run в БД после отмены
// корневого контекста.
const finalizeTimeout = 10 * time.Second

// handleRunPending обрабатывает событие о новом pending run.
func (o *Orchestrator) handleRunPending(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunPendingPayload](msg)
	if err != nil {
		o.logger.Error("failed to parse run.pending payload", "error", err)
		return err
	}

	o.logger.Debug("received run.pending event", "run_id", payload.RunID)

	if o.isRunActive(payload.RunID) {
		o.logger.Debug("run already active, skipping", "run_id", payload.RunID)
		return nil
	}

	if err := o.processRun(ctx, payload.RunID); err != nil {
		// Гонка с другим orchestrator или повторная доставка — не ошибка.
		if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) || errors.Is(err, ErrRunNotFound) {
			o.logger.Debug("run not processed", "run_id", payload.RunID, "reason", err)
			return nil
		}
		o.logger.Error("failed to process run", "run_id", payload.RunID, "error", err)
		return err
	}

	return nil
}

// handleRunCancel обрабатывает запрос на отмену run.
func (o *Orchestrator) handleRunCancel(ctx context.Context, msg *mq.Message) error {
	payload, err := mq.ParsePayload[mq.RunCancelPayload](msg)
	if err != nil {
		o.logger.Error("failed to parse run.cancel payload", "error", err)
		return err
	}

	o.logger.Debug("received run.cancel event", "run_id", payload.RunID)

	if err := o.Cancel(ctx, payload.RunID); err != nil {
		if errors.Is(err, ErrRunNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// processRun забирает pending run и запускает его выполнение.
func (o *Orchestrator) processRun(ctx context.Context, runID uuid.UUID) error {
	// 1. Атомарно переводим PENDING → RUNNING. Проигрыш гонки — не ошибка.
	run, err := o.runs.ClaimPending(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		if errors.Is(err, repo.ErrInvalidState) {
			return ErrRunNotPending
		}
		return fmt.Errorf("claim run: %w", err)
	}

	// 2. Загружаем версию workflow.
	version, err := o.versions.GetVersion(ctx, run.WorkflowID, run.Version)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return o.failRun(ctx, run, fmt.Sprintf("workflow version not found: %s v%d", run.WorkflowID, run.Version))
		}
		return fmt.Errorf("get workflow version: %w", err)
	}

	// 3. Строим DAG. Невалидная спека фиксируется как падение run,
	// а не повторяемая ошибка обработки.
	wf, err := engine.BuildWorkflow(&version.Spec)
	if err != nil {
		return o.failRun(ctx, run, fmt.Sprintf("%v: %v", ErrInvalidWorkflowSpec, err))
	}

	// 4. Регистрируем run и запускаем выполнение.
	runCtx, cancel := context.WithCancel(o.runCtx)
	if err := o.addActiveRun(run.ID, cancel); err != nil {
		cancel()
		return err
	}

	if o.tracker != nil {
		o.tracker.RunStarted()
	}

	o.logger.Info("run started",
		"run_id", run.ID,
		"workflow_id", run.WorkflowID,
		"version", run.Version,
		"nodes", wf.Size(),
	)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		defer cancel()
		o.executeRun(runCtx, run, wf)
	}()

	return nil
}

// executeRun выполняет run до завершения и финализирует его.
func (o *Orchestrator) executeRun(ctx context.Context, run *domain.Run, wf *engine.BuiltWorkflow) {
	defer func() {
		o.removeActiveRun(run.ID)
		if o.tracker != nil {
			o.tracker.RunStopped()
		}
	}()

	runner := engine.NewRunner(o.executor, o.logger, o.observer)
	report := runner.Run(ctx, run.ID.String(), wf, engine.RunOptions{
		Inputs:      run.Inputs,
		RetryConfig: o.defaultRetry,
		Logger:      o.logger,
	})

	o.finalizeRun(run, report)
}

// finalizeRun записывает итог run в БД и публикует run.completed.
func (o *Orchestrator) finalizeRun(run *domain.Run, report *engine.RunReport) {
	// Корневой контекст к этому моменту может быть отменён (Stop),
	// поэтому финализация идёт с собственным бюджетом времени.
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()

	run.Status = report.Status
	run.Summary = &report.Summary
	run.Context = report.Context.Outputs()
	run.NodeErrors = report.NodeErrors
	run.FinishedAt = &report.FinishedAt
	run.Error = runErrorMessage(report)

	if err := o.runs.Update(ctx, run); err != nil {
		o.logger.Error("failed to finalize run",
			"run_id", run.ID,
			"status", report.Status,
			"error", err,
		)
		return
	}

	if o.publisher != nil {
		err := o.publisher.PublishRunCompleted(ctx, mq.RunCompletedPayload{
			RunID:      run.ID,
			WorkflowID: run.WorkflowID,
			Status:     string(run.Status),
			Error:      run.Error,
			DurationMS: report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
		})
		if err != nil {
			o.logger.Warn("failed to publish run.completed",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}

// runErrorMessage собирает текст ошибки run из отчёта.
func runErrorMessage(report *engine.RunReport) string {
	if report.Status != domain.RunStatusFailed {
		return ""
	}
	if report.Deadlocked {
		return "no runnable nodes remain: workflow stuck without progress"
	}

	ids := make([]string, 0, len(report.NodeErrors))
	for _, nerr := range report.NodeErrors {
		ids = append(ids, nerr.NodeID)
	}
	return fmt.Sprintf("nodes failed: %s", strings.Join(ids, ", "))
}

// failRun переводит run в статус FAILED до начала выполнения.
func (o *Orchestrator) failRun(ctx context.Context, run *domain.Run, errMsg string) error {
	run.MarkFailed(errMsg)

	if err := o.runs.Update(ctx, run); err != nil {
		return fmt.Errorf("update run to failed: %w", err)
	}

	o.logger.Warn("run failed early",
		"run_id", run.ID,
		"error", errMsg,
	)

	return nil
}
