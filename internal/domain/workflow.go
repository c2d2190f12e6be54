package domain

import (
	"time"

	"github.com/google/uuid"
)

// Workflow — определение рабочего процесса.
//
// Workflow — это "шаблон" автоматизации. Один workflow может иметь
// множество версий (WorkflowVersion). Каждый запуск (Run) выполняет
// конкретную версию.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя workflow (например, "sync-orders").
	Name string `json:"name"`

	// IsActive — флаг активности. Неактивные workflows не запускаются по расписанию.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания workflow.
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowVersion — версия workflow с конкретной спецификацией.
//
// Версионирование позволяет откатываться к предыдущим версиям
// и запускать старые версии для сравнения.
type WorkflowVersion struct {
	// WorkflowID — ссылка на родительский workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Version — номер версии (1, 2, 3, ...).
	Version int `json:"version"`

	// Spec — спецификация графа в формате JSON.
	Spec WorkflowSpec `json:"spec"`

	// CreatedAt — время создания версии.
	CreatedAt time.Time `json:"created_at"`
}

// WorkflowSpec — спецификация workflow (содержимое JSONB поля spec).
//
// Описывает граф: узлы, типизированные рёбра для проброса данных
// и настройки выполнения.
type WorkflowSpec struct {
	// Version — версия формата спецификации (для обратной совместимости).
	Version string `json:"version,omitempty"`

	// Name — имя workflow (дублирует Workflow.Name для удобства).
	Name string `json:"name,omitempty"`

	// Description — описание назначения workflow.
	Description string `json:"description,omitempty"`

	// Inputs — входные параметры workflow.
	Inputs map[string]InputDef `json:"inputs,omitempty"`

	// Defaults — настройки по умолчанию для всех узлов.
	Defaults *NodeDefaults `json:"defaults,omitempty"`

	// Nodes — узлы графа.
	Nodes []NodeDef `json:"nodes"`

	// Edges — типизированные рёбра для проброса данных между узлами.
	// Порядок выполнения задаётся depends_on, рёбра отвечают только
	// за разрешение входов.
	Edges []EdgeDef `json:"edges,omitempty"`

	// MaxConcurrentNodes — максимум узлов, выполняемых одновременно
	// внутри одной итерации планировщика. 0 — значение по умолчанию.
	MaxConcurrentNodes int `json:"max_concurrent_nodes,omitempty"`
}

// InputDef — определение входного параметра.
type InputDef struct {
	// Type — тип параметра: "string", "number", "boolean", "object".
	Type string `json:"type"`

	// Required — обязательный ли параметр.
	Required bool `json:"required,omitempty"`

	// Default — значение по умолчанию.
	Default any `json:"default,omitempty"`

	// Description — описание параметра.
	Description string `json:"description,omitempty"`
}

// NodeDefaults — настройки по умолчанию для узлов.
type NodeDefaults struct {
	// Retry — политика повторных попыток.
	Retry *RetryConfig `json:"retry,omitempty"`

	// TimeoutSec — таймаут выполнения в секундах.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// NodeDef — определение узла в workflow.
type NodeDef struct {
	// ID — уникальный идентификатор узла в рамках workflow.
	// Используется в depends_on и в рёбрах.
	ID string `json:"id"`

	// Name — человекочитаемое имя узла.
	Name string `json:"name,omitempty"`

	// Type — тип узла: "trigger", "http", "transform", "delay", "output".
	Type string `json:"type"`

	// DependsOn — список ID узлов, от которых зависит этот узел.
	// Узел начнёт выполнение только после успешного завершения всех зависимостей.
	DependsOn []string `json:"depends_on,omitempty"`

	// Config — конфигурация узла (зависит от типа).
	// Для http: method, url, headers, body
	// Для delay: duration_sec
	Config map[string]any `json:"config,omitempty"`

	// ConnectionID — ссылка на connection (OAuth-учётку), если узлу
	// нужен access token для внешнего API.
	ConnectionID string `json:"connection_id,omitempty"`

	// Retry — политика повторных попыток для этого узла.
	// Переопределяет defaults.retry.
	Retry *RetryConfig `json:"retry,omitempty"`

	// TimeoutSec — таймаут для этого узла.
	// Переопределяет defaults.timeout_sec.
	TimeoutSec int `json:"timeout_sec,omitempty"`
}

// EdgeDef — типизированное ребро между узлами.
//
// Ребро описывает, какой выход source-узла попадает в какой вход
// target-узла. Порядок выполнения рёбра не задают.
type EdgeDef struct {
	// ID — идентификатор ребра.
	ID string `json:"id"`

	// Source — ID узла-источника.
	Source string `json:"source"`

	// Target — ID узла-приёмника.
	Target string `json:"target"`

	// SourceHandle — имя выхода source-узла. Пустое значение —
	// весь output целиком.
	SourceHandle string `json:"source_handle,omitempty"`

	// TargetHandle — имя входа target-узла.
	TargetHandle string `json:"target_handle"`

	// HandleType — тип данных на ребре ("main", "string", "object", ...).
	HandleType string `json:"handle_type,omitempty"`
}

// RetryConfig — политика повторных попыток узла.
//
// Ошибка ретраится, если её тип входит в RetryableErrors ИЛИ её
// HTTP-код входит в RetryableStatusCodes. Пустые списки означают,
// что ретраев нет вообще — явная конфигурация всегда сильнее
// встроенных значений по умолчанию.
type RetryConfig struct {
	// MaxRetries — максимальное количество повторов (без учёта первой попытки).
	// Всего попыток: MaxRetries + 1.
	MaxRetries int `json:"max_retries"`

	// InitialDelayMs — начальная задержка в миллисекундах.
	InitialDelayMs int `json:"initial_delay_ms,omitempty"`

	// MaxDelayMs — максимальная задержка в миллисекундах.
	MaxDelayMs int `json:"max_delay_ms,omitempty"`

	// BackoffMultiplier — множитель экспоненциальной задержки.
	BackoffMultiplier float64 `json:"backoff_multiplier,omitempty"`

	// RetryableErrors — типы ошибок, при которых делается retry.
	RetryableErrors []string `json:"retryable_errors,omitempty"`

	// RetryableStatusCodes — HTTP-коды, при которых делается retry.
	RetryableStatusCodes []int `json:"retryable_status_codes,omitempty"`
}
