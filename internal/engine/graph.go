package engine

import (
	"fmt"

	"github.com/shaiso/Conveyor/internal/domain"
)

// defaultMaxConcurrentNodes — лимит параллельных узлов, если спецификация
// его не задаёт.
const defaultMaxConcurrentNodes = 10

// ExecutableNode — узел построенного графа. Неизменяем после BuildWorkflow.
type ExecutableNode struct {
	// ID — идентификатор узла (из NodeDef.ID).
	ID string

	// Type — тип узла: "trigger", "http", "transform", "delay", "output".
	Type string

	// Name — человекочитаемое имя узла.
	Name string

	// Config — конфигурация узла (непрозрачная для ядра).
	Config map[string]any

	// ConnectionID — ссылка на OAuth-учётку, если узлу нужен токен.
	ConnectionID string

	// Depth — топологический уровень (0 для корней).
	Depth int

	// Dependencies — ID узлов, от которых зависит этот узел.
	Dependencies []string

	// Dependents — ID узлов, которые зависят от этого узла.
	Dependents []string

	// Retry — политика повторных попыток узла (может быть nil).
	Retry *domain.RetryConfig

	// TimeoutSec — таймаут выполнения одной попытки в секундах.
	TimeoutSec int
}

// TypedEdge — типизированное ребро для разрешения входов.
// Порядок выполнения задают Dependencies, рёбра — только проброс данных.
type TypedEdge struct {
	ID           string
	Source       string
	Target       string
	SourceHandle string
	TargetHandle string
	HandleType   string
}

// BuiltWorkflow — построенный граф workflow.
//
// Строится один раз на версию workflow и после этого только читается.
// Несколько параллельных runs могут разделять один BuiltWorkflow —
// каждый run получает собственные ExecutionQueue и RunContext.
type BuiltWorkflow struct {
	// Nodes — все узлы графа (nodeID → узел).
	Nodes map[string]*ExecutableNode

	// Edges — все рёбра графа (edgeID → ребро).
	Edges map[string]*TypedEdge

	// Levels — уровни выполнения: Levels[d] содержит ID узлов глубины d
	// в порядке определения.
	Levels [][]string

	// TriggerNodeID — узел-триггер (получает входы run).
	TriggerNodeID string

	// OutputNodeIDs — узлы типа "output".
	OutputNodeIDs []string

	// MaxConcurrentNodes — лимит узлов в одном батче планировщика.
	MaxConcurrentNodes int

	// order — порядок определения узлов в спецификации.
	// Используется для детерминированных tie-break'ов.
	order []string

	// inbound — входящие рёбра по target-узлу, в порядке определения.
	inbound map[string][]*TypedEdge
}

// BuildWorkflow строит BuiltWorkflow из спецификации.
//
// Валидация (пустой граф, дубликаты ID, неизвестные зависимости, циклы)
// выполняется здесь, до запуска планировщика: некорректный граф — это
// ошибка времени сборки, а не выполнения.
func BuildWorkflow(spec *domain.WorkflowSpec) (*BuiltWorkflow, error) {
	if spec == nil || len(spec.Nodes) == 0 {
		return nil, ErrEmptyNodes
	}

	wf := &BuiltWorkflow{
		Nodes:   make(map[string]*ExecutableNode, len(spec.Nodes)),
		Edges:   make(map[string]*TypedEdge, len(spec.Edges)),
		inbound: make(map[string][]*TypedEdge),
	}

	// Первый проход: создаём узлы.
	for i := range spec.Nodes {
		def := &spec.Nodes[i]

		if def.ID == "" {
			return nil, NewValidationError("", "id", "node has empty ID", ErrEmptyNodeID)
		}
		if _, exists := wf.Nodes[def.ID]; exists {
			return nil, NewValidationError(def.ID, "id",
				fmt.Sprintf("duplicate node ID: %s", def.ID), ErrDuplicateNodeID)
		}

		retry := def.Retry
		timeoutSec := def.TimeoutSec
		if spec.Defaults != nil {
			if retry == nil {
				retry = spec.Defaults.Retry
			}
			if timeoutSec == 0 {
				timeoutSec = spec.Defaults.TimeoutSec
			}
		}

		wf.Nodes[def.ID] = &ExecutableNode{
			ID:           def.ID,
			Type:         def.Type,
			Name:         def.Name,
			Config:       def.Config,
			ConnectionID: def.ConnectionID,
			Dependencies: append([]string(nil), def.DependsOn...),
			Retry:        retry,
			TimeoutSec:   timeoutSec,
		}
		wf.order = append(wf.order, def.ID)
	}

	// Второй проход: связываем зависимости.
	for _, id := range wf.order {
		node := wf.Nodes[id]
		for _, depID := range node.Dependencies {
			if depID == id {
				return nil, NewValidationError(id, "depends_on",
					"node depends on itself", ErrSelfDependency)
			}
			dep, exists := wf.Nodes[depID]
			if !exists {
				return nil, NewValidationError(id, "depends_on",
					fmt.Sprintf("depends on unknown node: %s", depID), ErrMissingDependency)
			}
			dep.Dependents = append(dep.Dependents, id)
		}
	}

	// Рёбра: проверяем ссылки и строим индекс входящих.
	for i := range spec.Edges {
		def := &spec.Edges[i]
		if _, ok := wf.Nodes[def.Source]; !ok {
			return nil, NewValidationError("", "edges",
				fmt.Sprintf("edge %s: unknown source %s", def.ID, def.Source), ErrUnknownEdgeNode)
		}
		if _, ok := wf.Nodes[def.Target]; !ok {
			return nil, NewValidationError("", "edges",
				fmt.Sprintf("edge %s: unknown target %s", def.ID, def.Target), ErrUnknownEdgeNode)
		}
		edge := &TypedEdge{
			ID:           def.ID,
			Source:       def.Source,
			Target:       def.Target,
			SourceHandle: def.SourceHandle,
			TargetHandle: def.TargetHandle,
			HandleType:   def.HandleType,
		}
		wf.Edges[edge.ID] = edge
		wf.inbound[edge.Target] = append(wf.inbound[edge.Target], edge)
	}

	// Топологическая сортировка (алгоритм Кана) + глубины + уровни.
	if err := wf.computeLevels(); err != nil {
		return nil, err
	}

	// Триггер и выходные узлы.
	for _, id := range wf.order {
		node := wf.Nodes[id]
		switch node.Type {
		case "trigger":
			if wf.TriggerNodeID == "" {
				wf.TriggerNodeID = id
			}
		case "output":
			wf.OutputNodeIDs = append(wf.OutputNodeIDs, id)
		}
	}
	// Нет явного триггера — им считается первый корневой узел.
	if wf.TriggerNodeID == "" && len(wf.Levels) > 0 {
		wf.TriggerNodeID = wf.Levels[0][0]
	}

	wf.MaxConcurrentNodes = spec.MaxConcurrentNodes
	if wf.MaxConcurrentNodes <= 0 {
		wf.MaxConcurrentNodes = defaultMaxConcurrentNodes
	}

	return wf, nil
}

// computeLevels выполняет сортировку Кана, заполняет Depth и Levels.
// Возвращает ErrCyclicDependency, если не все узлы достижимы.
func (w *BuiltWorkflow) computeLevels() error {
	inDegree := make(map[string]int, len(w.Nodes))
	for _, id := range w.order {
		inDegree[id] = len(w.Nodes[id].Dependencies)
	}

	// Очередь узлов с inDegree = 0, в порядке определения.
	var queue []string
	for _, id := range w.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		node := w.Nodes[id]

		// Глубина: 1 + максимум по зависимостям.
		depth := 0
		for _, depID := range node.Dependencies {
			if d := w.Nodes[depID].Depth + 1; d > depth {
				depth = d
			}
		}
		node.Depth = depth

		// Внутри уровня узлы идут в порядке обхода Кана: детерминированно
		// для одного и того же графа, но не обязательно в порядке
		// определения.
		for len(w.Levels) <= depth {
			w.Levels = append(w.Levels, nil)
		}
		w.Levels[depth] = append(w.Levels[depth], id)

		for _, depID := range node.Dependents {
			inDegree[depID]--
			if inDegree[depID] == 0 {
				queue = append(queue, depID)
			}
		}
	}

	if visited != len(w.Nodes) {
		return ErrCyclicDependency
	}
	return nil
}

// Node возвращает узел по ID.
func (w *BuiltWorkflow) Node(id string) *ExecutableNode {
	return w.Nodes[id]
}

// Size возвращает количество узлов в графе.
func (w *BuiltWorkflow) Size() int {
	return len(w.Nodes)
}

// InboundEdges возвращает входящие рёбра узла в порядке определения.
func (w *BuiltWorkflow) InboundEdges(nodeID string) []*TypedEdge {
	return w.inbound[nodeID]
}
