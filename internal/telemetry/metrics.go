package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Conveyor/internal/domain"
)

// Metrics — Prometheus-метрики выполнения workflows.
// Реализует engine.Observer.
type Metrics struct {
	nodesStarted  *prometheus.CounterVec
	nodesFinished *prometheus.CounterVec
	nodeRetries   prometheus.Counter
	runsFinished  *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	nodesSkipped  prometheus.Counter
	activeRuns    prometheus.Gauge
	breakerState  prometheus.Gauge
}

// NewMetrics регистрирует метрики в реестре.
// Nil reg — реестр по умолчанию.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		nodesStarted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_nodes_started_total",
			Help: "Количество запусков узлов (включая повторные попытки).",
		}, []string{"attempt_kind"}),

		nodesFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_nodes_finished_total",
			Help: "Количество узлов по финальному статусу.",
		}, []string{"status"}),

		nodeRetries: factory.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_node_retries_total",
			Help: "Количество запланированных повторных попыток.",
		}),

		runsFinished: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_runs_finished_total",
			Help: "Количество завершённых runs по статусу.",
		}, []string{"status"}),

		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_run_duration_seconds",
			Help:    "Длительность run от старта до финализации.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"status"}),

		nodesSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_nodes_skipped_total",
			Help: "Количество узлов, пропущенных из-за падения зависимостей.",
		}),

		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_active_runs",
			Help: "Количество выполняющихся в данный момент runs.",
		}),

		breakerState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_refresh_breaker_state",
			Help: "Состояние circuit breaker обновления токенов (0=closed, 1=half-open, 2=open).",
		}),
	}
}

// NodeStarted фиксирует запуск узла.
func (m *Metrics) NodeStarted(runID, nodeID string, attempt int) {
	kind := "first"
	if attempt > 0 {
		kind = "retry"
	}
	m.nodesStarted.WithLabelValues(kind).Inc()
}

// NodeFinished фиксирует финальный статус узла.
func (m *Metrics) NodeFinished(runID, nodeID string, status domain.NodeStatus) {
	m.nodesFinished.WithLabelValues(string(status)).Inc()
	if status == domain.NodeStatusSkipped {
		m.nodesSkipped.Inc()
	}
}

// NodeRetried фиксирует запланированный retry.
func (m *Metrics) NodeRetried(runID, nodeID string, attempt int, delay time.Duration) {
	m.nodeRetries.Inc()
}

// RunFinished фиксирует завершение run.
func (m *Metrics) RunFinished(runID string, status domain.RunStatus, summary domain.ExecutionSummary, duration time.Duration) {
	m.runsFinished.WithLabelValues(string(status)).Inc()
	m.runDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// RunStarted увеличивает счётчик активных runs.
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// RunStopped уменьшает счётчик активных runs.
func (m *Metrics) RunStopped() {
	m.activeRuns.Dec()
}

// SetBreakerState публикует состояние circuit breaker.
// Принимает строковое состояние (CLOSED, HALF_OPEN, OPEN).
func (m *Metrics) SetBreakerState(state string) {
	var v float64
	switch state {
	case "HALF_OPEN":
		v = 1
	case "OPEN":
		v = 2
	}
	m.breakerState.Set(v)
}
