package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/Conveyor/internal/domain"
	"github.com/shaiso/Conveyor/internal/engine"
	"github.com/shaiso/Conveyor/internal/mq"
	"github.com/shaiso/Conveyor/internal/repo"
)

// Default configuration values.
const (
	defaultPollInterval = 10 * time.Second
	defaultBatchSize    = 100
)

// RunStore — операции с runs, нужные оркестратору.
type RunStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	ListPending(ctx context.Context, limit int) ([]domain.Run, error)
	ClaimPending(ctx context.Context, id uuid.UUID) (*domain.Run, error)
	Update(ctx context.Context, run *domain.Run) error
}

// VersionStore — доступ к версиям workflow.
type VersionStore interface {
	GetVersion(ctx context.Context, workflowID uuid.UUID, version int) (*domain.WorkflowVersion, error)
}

// ActiveRunTracker — опциональный приёмник событий start/stop run
// (gauge активных runs в телеметрии).
type ActiveRunTracker interface {
	RunStarted()
	RunStopped()
}

// Orchestrator выполняет runs.
//
// Orchestrator — центральный компонент системы, который:
//   - Получает новые runs из очереди RabbitMQ (event-driven)
//   - Периодически проверяет pending runs в БД (polling fallback)
//   - Атомарно забирает run (PENDING → RUNNING)
//   - Строит DAG из спеки и выполняет его через engine.Runner
//   - Финализирует run (SUCCEEDED/FAILED/CANCELLED) и публикует событие
type Orchestrator struct {
	runs     RunStore
	versions VersionStore
	executor engine.NodeExecutor

	// MQ
	publisher *mq.Publisher
	conn      *mq.Connection

	// Active runs — runs в процессе выполнения (runID → cancel).
	activeRuns map[uuid.UUID]context.CancelFunc
	mu         sync.RWMutex

	// Consumers
	runConsumer    *mq.Consumer
	cancelConsumer *mq.Consumer

	// Configuration
	pollInterval time.Duration
	batchSize    int
	defaultRetry *domain.RetryConfig
	observer     engine.Observer
	tracker      ActiveRunTracker

	// Lifecycle
	logger     *slog.Logger
	runCtx     context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Orchestrator.
type Config struct {
	// Stores
	Runs     RunStore
	Versions VersionStore

	// Executor — диспетчер выполнения узлов (executor.Registry).
	Executor engine.NodeExecutor

	// MQ. Nil Conn — polling-only режим.
	Publisher *mq.Publisher
	Conn      *mq.Connection

	// Polling configuration
	PollInterval time.Duration // интервал polling (default: 10s)
	BatchSize    int           // количество runs за один poll (default: 100)

	// DefaultRetry — политика для узлов без собственной политики.
	DefaultRetry *domain.RetryConfig

	// Observer — приёмник событий engine (телеметрия). Nil — no-op.
	Observer engine.Observer

	// Tracker — приёмник start/stop событий run. Nil — no-op.
	Tracker ActiveRunTracker

	// Logger
	Logger *slog.Logger
}

// New создаёт новый Orchestrator.
func New(cfg Config) *Orchestrator {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		runs:         cfg.Runs,
		versions:     cfg.Versions,
		executor:     cfg.Executor,
		publisher:    cfg.Publisher,
		conn:         cfg.Conn,
		activeRuns:   make(map[uuid.UUID]context.CancelFunc),
		pollInterval: pollInterval,
		batchSize:    batchSize,
		defaultRetry: cfg.DefaultRetry,
		observer:     cfg.Observer,
		tracker:      cfg.Tracker,
		logger:       logger,
	}
}

// Start запускает Orchestrator.
//
// Запускает:
//   - Consumer для runs.pending
//   - Consumer для runs.cancel
//   - Polling горутину для fallback
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.runCtx = ctx
	o.cancelFunc = cancel

	o.logger.Info("starting orchestrator",
		"poll_interval", o.pollInterval,
		"batch_size", o.batchSize,
	)

	if o.conn != nil {
		o.runConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsPending),
			Handler:  o.handleRunPending,
			Prefetch: 10,
		})

		o.cancelConsumer = mq.NewConsumer(o.conn, o.logger, mq.ConsumerConfig{
			Queue:    string(mq.QueueRunsCancel),
			Handler:  o.handleRunCancel,
			Prefetch: 10,
		})

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.runConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("run consumer error", "error", err)
			}
		}()

		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			if err := o.cancelConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				o.logger.Error("cancel consumer error", "error", err)
			}
		}()
	} else {
		o.logger.Info("no MQ connection, running in polling-only mode")
	}

	// Запускаем polling
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.pollLoop(ctx)
	}()

	o.logger.Info("orchestrator started")
	return nil
}

// Stop останавливает Orchestrator.
//
// Активные runs получают отмену контекста, сворачиваются в CANCELLED
// и финализируются в БД до выхода.
func (o *Orchestrator) Stop() {
	o.stoppedMu.Lock()
	o.stopped = true
	o.stoppedMu.Unlock()

	o.logger.Info("stopping orchestrator...")

	if o.cancelFunc != nil {
		o.cancelFunc()
	}

	// Останавливаем consumers
	if o.runConsumer != nil {
		o.runConsumer.Stop()
	}
	if o.cancelConsumer != nil {
		o.cancelConsumer.Stop()
	}

	// Ждём завершения горутин (включая активные runs)
	o.wg.Wait()

	o.logger.Info("orchestrator stopped")
}

// IsStopped проверяет, остановлен ли Orchestrator.
func (o *Orchestrator) IsStopped() bool {
	o.stoppedMu.RLock()
	defer o.stoppedMu.RUnlock()
	return o.stopped
}

// pollLoop — цикл polling для fallback.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	// Первый poll сразу при старте (подхватываем runs созданные пока были выключены)
	o.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.poll(ctx)
		}
	}
}

// poll выполняет один цикл polling.
func (o *Orchestrator) poll(ctx context.Context) {
	runs, err := o.runs.ListPending(ctx, o.batchSize)
	if err != nil {
		if ctx.Err() == nil {
			o.logger.Error("failed to list pending runs", "error", err)
		}
		return
	}

	if len(runs) == 0 {
		return
	}

	o.logger.Debug("poll found pending runs", "count", len(runs))

	for i := range runs {
		run := &runs[i]

		// Проверяем, не обрабатывается ли уже
		if o.isRunActive(run.ID) {
			continue
		}

		if err := o.processRun(ctx, run.ID); err != nil {
			if errors.Is(err, ErrRunNotPending) || errors.Is(err, ErrRunAlreadyActive) {
				continue
			}
			o.logger.Error("failed to process run from poll",
				"run_id", run.ID,
				"error", err,
			)
		}
	}
}

// isRunActive проверяет, находится ли run в обработке.
func (o *Orchestrator) isRunActive(runID uuid.UUID) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	_, exists := o.activeRuns[runID]
	return exists
}

// addActiveRun регистрирует run и его cancel.
func (o *Orchestrator) addActiveRun(runID uuid.UUID, cancel context.CancelFunc) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, exists := o.activeRuns[runID]; exists {
		return ErrRunAlreadyActive
	}

	o.activeRuns[runID] = cancel
	return nil
}

// removeActiveRun удаляет run из активных.
func (o *Orchestrator) removeActiveRun(runID uuid.UUID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.activeRuns, runID)
}

// ActiveRunsCount возвращает количество активных runs.
func (o *Orchestrator) ActiveRunsCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.activeRuns)
}

// Cancel отменяет run.
//
// Активный run получает отмену контекста: текущий батч узлов
// сворачивается, run финализируется как CANCELLED. PENDING run
// отменяется напрямую в БД. Завершённый run — no-op.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) error {
	o.mu.RLock()
	cancel, active := o.activeRuns[runID]
	o.mu.RUnlock()

	if active {
		o.logger.Info("cancelling active run", "run_id", runID)
		cancel()
		return nil
	}

	run, err := o.runs.GetByID(ctx, runID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrRunNotFound
		}
		return err
	}

	if run.IsFinished() {
		return nil
	}

	if run.Status == domain.RunStatusPending {
		run.MarkCancelled()
		if err := o.runs.Update(ctx, run); err != nil {
			return err
		}
		o.logger.Info("pending run cancelled", "run_id", runID)
	}

	return nil
}
