package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
	"github.com/shaiso/Conveyor/internal/scheduler"
	"github.com/shaiso/Conveyor/internal/telemetry"
)

// Service — доступ CLI к хранилищу и очереди.
//
// CLI работает напрямую с Postgres и RabbitMQ: создаёт workflows,
// версии, runs и schedules. Отсутствие RabbitMQ не фатально — orchestrator
// подхватит pending runs через polling.
type Service struct {
	pool        *pgxpool.Pool
	workflows   *repo.WorkflowRepo
	runs        *repo.RunRepo
	schedules   *repo.ScheduleRepo
	connections *repo.ConnectionRepo
	publisher   *mq.Publisher
	mqConn      *mq.Connection
}

// NewService подключается к БД и (best-effort) к RabbitMQ.
func NewService(ctx context.Context) (*Service, error) {
	pool, err := repo.NewPool(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	s := &Service{
		pool:        pool,
		workflows:   repo.NewWorkflowRepo(pool),
		runs:        repo.NewRunRepo(pool),
		schedules:   repo.NewScheduleRepo(pool),
		connections: repo.NewConnectionRepo(pool),
	}

	mqURL := os.Getenv("RABBITMQ_URL")
	if mqURL == "" {
		mqURL = mq.DefaultURL()
	}
	logger := telemetry.FromContext(ctx)
	if conn, err := mq.NewConnection(mqURL, logger); err == nil {
		s.mqConn = conn
		s.publisher = mq.NewPublisher(conn, logger)
	}

	return s, nil
}

// Close освобождает соединения.
func (s *Service) Close() {
	if s.mqConn != nil {
		s.mqConn.Close()
	}
	s.pool.Close()
}

// --- Workflows ---

// ResolveWorkflow находит workflow по UUID или имени.
func (s *Service) ResolveWorkflow(ctx context.Context, ref string) (*domain.Workflow, error) {
	if id, err := uuid.Parse(ref); err == nil {
		return s.workflows.GetByID(ctx, id)
	}
	return s.workflows.GetByName(ctx, ref)
}

// ListWorkflows возвращает все workflows.
func (s *Service) ListWorkflows(ctx context.Context) ([]domain.Workflow, error) {
	return s.workflows.List(ctx)
}

// CreateWorkflow создаёт workflow с заданным именем.
func (s *Service) CreateWorkflow(ctx context.Context, name string) (*domain.Workflow, error) {
	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      name,
		IsActive:  true,
		CreatedAt: time.Now(),
	}
	if err := s.workflows.Create(ctx, wf); err != nil {
		return nil, err
	}
	return wf, nil
}

// DeleteWorkflow удаляет workflow со всеми версиями, runs и schedules.
func (s *Service) DeleteWorkflow(ctx context.Context, ref string) (*domain.Workflow, error) {
	wf, err := s.ResolveWorkflow(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := s.workflows.Delete(ctx, wf.ID); err != nil {
		return nil, err
	}
	return wf, nil
}

// PublishVersion читает спеку из JSON-файла и создаёт новую версию workflow.
func (s *Service) PublishVersion(ctx context.Context, ref, specPath string) (*domain.WorkflowVersion, error) {
	wf, err := s.ResolveWorkflow(ctx, ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(specPath)
	if err != nil {
		return nil, fmt.Errorf("read spec file: %w", err)
	}

	var spec domain.WorkflowSpec
	if err := json.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("parse spec file: %w", err)
	}

	return s.workflows.CreateVersion(ctx, wf.ID, spec)
}

// ListVersions возвращает версии workflow.
func (s *Service) ListVersions(ctx context.Context, ref string) ([]domain.WorkflowVersion, error) {
	wf, err := s.ResolveWorkflow(ctx, ref)
	if err != nil {
		return nil, err
	}
	return s.workflows.ListVersions(ctx, wf.ID)
}

// --- Runs ---

// StartRunOpts — параметры запуска run.
type StartRunOpts struct {
	// Version — версия workflow. 0 — последняя.
	Version int

	// Inputs — входные параметры run.
	Inputs map[string]any

	// IdempotencyKey — ключ идемпотентности (опционально).
	IdempotencyKey string
}

// StartRun создаёт run и публикует run.pending.
func (s *Service) StartRun(ctx context.Context, ref string, opts StartRunOpts) (*domain.Run, error) {
	wf, err := s.ResolveWorkflow(ctx, ref)
	if err != nil {
		return nil, err
	}

	version := opts.Version
	if version <= 0 {
		latest, err := s.workflows.GetLatestVersion(ctx, wf.ID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, fmt.Errorf("workflow %q has no published versions", wf.Name)
			}
			return nil, err
		}
		version = latest.Version
	} else {
		if _, err := s.workflows.GetVersion(ctx, wf.ID, version); err != nil {
			return nil, err
		}
	}

	if opts.IdempotencyKey != "" {
		existing, err := s.runs.GetByIdempotencyKey(ctx, wf.ID, opts.IdempotencyKey)
		if err != nil && !errors.Is(err, repo.ErrNotFound) {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	run := &domain.Run{
		ID:             uuid.New(),
		WorkflowID:     wf.ID,
		Version:        version,
		Status:         domain.RunStatusPending,
		Inputs:         opts.Inputs,
		IdempotencyKey: opts.IdempotencyKey,
		CreatedAt:      time.Now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		// Гонка по idempotency key — возвращаем уже созданный run.
		if opts.IdempotencyKey != "" && errors.Is(err, repo.ErrAlreadyExists) {
			return s.runs.GetByIdempotencyKey(ctx, wf.ID, opts.IdempotencyKey)
		}
		return nil, err
	}

	// Без MQ orchestrator подхватит run через polling.
	if s.publisher != nil {
		_ = s.publisher.PublishRunPending(ctx, run.ID)
	}

	return run, nil
}

// GetRun возвращает run по ID.
func (s *Service) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	runID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid run id %q: %w", id, err)
	}
	return s.runs.GetByID(ctx, runID)
}

// ListRuns возвращает runs с фильтрацией.
func (s *Service) ListRuns(ctx context.Context, workflowRef, status string, limit int) ([]domain.Run, error) {
	filter := repo.RunFilter{
		Status: domain.RunStatus(status),
		Limit:  limit,
	}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if workflowRef != "" {
		wf, err := s.ResolveWorkflow(ctx, workflowRef)
		if err != nil {
			return nil, err
		}
		filter.WorkflowID = &wf.ID
	}
	return s.runs.List(ctx, filter)
}

// CancelRun отменяет run.
//
// PENDING run отменяется напрямую в БД. Для RUNNING run публикуется
// run.cancel — его обрабатывает orchestrator, выполняющий run.
func (s *Service) CancelRun(ctx context.Context, id string) (*domain.Run, error) {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}

	switch run.Status {
	case domain.RunStatusPending:
		run.MarkCancelled()
		if err := s.runs.Update(ctx, run); err != nil {
			return nil, err
		}
		return run, nil

	case domain.RunStatusRunning:
		if s.publisher == nil {
			return nil, fmt.Errorf("run %s is RUNNING and RabbitMQ is not available: cancel request cannot reach the orchestrator", run.ID)
		}
		if err := s.publisher.PublishRunCancel(ctx, run.ID); err != nil {
			return nil, fmt.Errorf("publish cancel request: %w", err)
		}
		return run, nil

	default:
		return nil, fmt.Errorf("run %s is already %s", run.ID, run.Status)
	}
}

// --- Schedules ---

// CreateScheduleOpts — параметры создания schedule.
type CreateScheduleOpts struct {
	Name        string
	CronExpr    string
	IntervalSec int
	Timezone    string
	Inputs      map[string]any
}

// CreateSchedule создаёт schedule для workflow.
func (s *Service) CreateSchedule(ctx context.Context, workflowRef string, opts CreateScheduleOpts) (*domain.Schedule, error) {
	wf, err := s.ResolveWorkflow(ctx, workflowRef)
	if err != nil {
		return nil, err
	}

	if opts.CronExpr == "" && opts.IntervalSec <= 0 {
		return nil, fmt.Errorf("either --cron or --interval is required")
	}
	if opts.CronExpr != "" {
		if err := scheduler.ValidateCronExpr(opts.CronExpr); err != nil {
			return nil, err
		}
	}

	timezone := opts.Timezone
	if timezone == "" {
		timezone = "UTC"
	}

	now := time.Now()
	sched := &domain.Schedule{
		ID:          uuid.New(),
		WorkflowID:  wf.ID,
		Name:        opts.Name,
		CronExpr:    opts.CronExpr,
		IntervalSec: opts.IntervalSec,
		Timezone:    timezone,
		Enabled:     true,
		Inputs:      opts.Inputs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	nextDue, err := scheduler.CalculateInitialNextDue(sched)
	if err != nil {
		return nil, err
	}
	sched.NextDueAt = &nextDue

	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, err
	}
	return sched, nil
}

// ListSchedules возвращает schedules, опционально по workflow.
func (s *Service) ListSchedules(ctx context.Context, workflowRef string, limit int) ([]domain.Schedule, error) {
	filter := repo.ScheduleFilter{Limit: limit}
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if workflowRef != "" {
		wf, err := s.ResolveWorkflow(ctx, workflowRef)
		if err != nil {
			return nil, err
		}
		filter.WorkflowID = &wf.ID
	}
	return s.schedules.List(ctx, filter)
}

// SetScheduleEnabled включает или выключает schedule.
func (s *Service) SetScheduleEnabled(ctx context.Context, id string, enabled bool) error {
	schedID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid schedule id %q: %w", id, err)
	}
	return s.schedules.SetEnabled(ctx, schedID, enabled)
}

// DeleteSchedule удаляет schedule.
func (s *Service) DeleteSchedule(ctx context.Context, id string) error {
	schedID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid schedule id %q: %w", id, err)
	}
	return s.schedules.Delete(ctx, schedID)
}

// --- Connections ---

// ListConnections возвращает OAuth-учётки.
func (s *Service) ListConnections(ctx context.Context) ([]domain.Connection, error) {
	return s.connections.List(ctx)
}

// DeleteConnection удаляет OAuth-учётку.
func (s *Service) DeleteConnection(ctx context.Context, id string) error {
	connID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid connection id %q: %w", id, err)
	}
	return s.connections.Delete(ctx, connID)
}
