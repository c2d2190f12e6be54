package executor

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/Conveyor/internal/engine"
)

// Executor — исполнитель одного типа узла.
//
// Каждый тип узла (trigger, http, transform, delay, output) реализует
// этот интерфейс. Исполнители обязаны возвращать *engine.ExecError при
// падении: тег и HTTP-код ошибки определяют, будет ли попытка повторена.
type Executor interface {
	// Type возвращает тип узла.
	Type() string

	// Execute выполняет узел и возвращает его выходы.
	// Исполнитель должен проверять ctx.Done() для graceful shutdown.
	Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error)
}

// Registry — реестр исполнителей по типу узла.
//
// Реализует engine.NodeExecutor: планировщик вызывает Execute, реестр
// диспетчеризует по node.Type. Потокобезопасен.
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// DefaultRegistry создаёт реестр со всеми стандартными исполнителями.
// tokens может быть nil — тогда узлы с connection_id падают с
// AuthenticationError.
func DefaultRegistry(tokens TokenSource) *Registry {
	r := NewRegistry()

	r.Register(NewTriggerExecutor())
	r.Register(NewHTTPExecutor(tokens))
	r.Register(NewTransformExecutor())
	r.Register(NewDelayExecutor())
	r.Register(NewOutputExecutor())

	return r
}

// Register регистрирует исполнителя. Существующий тип перезаписывается.
func (r *Registry) Register(e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[e.Type()] = e
}

// Has проверяет, зарегистрирован ли исполнитель для типа.
func (r *Registry) Has(nodeType string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.executors[nodeType]
	return exists
}

// Types возвращает отсортированный список зарегистрированных типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Execute диспетчеризует выполнение узла по его типу.
// Неизвестный тип — постоянная ошибка валидации, ретраить её бессмысленно.
func (r *Registry) Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	r.mu.RLock()
	e, exists := r.executors[node.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, engine.NewExecError(engine.ErrorTypeValidation,
			fmt.Sprintf("unknown node type: %s", node.Type))
	}
	return e.Execute(ctx, node, inputs)
}
