package engine

import (
	"time"

	"github.com/shaiso/Conveyor/internal/domain"
)

// RunContext — накопитель выходов узлов одного run.
//
// Растёт монотонно: записи только добавляются. Перезапись выхода для
// того же узла допустима (повторное выполнение после retry) — побеждает
// последняя запись. Упавшие узлы получают явную error-запись;
// пропущенные узлы записи не получают вовсе — их отсутствие не должно
// делать зависимые узлы готовыми (это гарантирует проверка готовности
// в очереди, а не контекст).
//
// Мутируется только в reducer-шаге цикла планировщика, поэтому
// мьютекс не нужен. Принадлежит ровно одному run.
type RunContext struct {
	nodeOutputs map[string]any
	meta        ContextMetadata
}

// ContextMetadata — метаданные run для контекста.
type ContextMetadata struct {
	// RunID — идентификатор run.
	RunID string

	// WorkflowName — имя workflow.
	WorkflowName string

	// TotalNodes — количество узлов в графе.
	TotalNodes int

	// Inputs — входные параметры run.
	Inputs map[string]any

	// StartedAt — время начала run.
	StartedAt time.Time
}

// NewRunContext создаёт контекст с метаданными и пустой картой выходов.
func NewRunContext(meta ContextMetadata) *RunContext {
	if meta.Inputs == nil {
		meta.Inputs = make(map[string]any)
	}
	return &RunContext{
		nodeOutputs: make(map[string]any),
		meta:        meta,
	}
}

// StoreOutput сохраняет выход узла. Последняя запись побеждает.
func (c *RunContext) StoreOutput(nodeID string, value any) {
	c.nodeOutputs[nodeID] = value
}

// StoreFailure сохраняет error-запись для упавшего узла.
func (c *RunContext) StoreFailure(nodeID string, nerr domain.NodeError) {
	c.nodeOutputs[nodeID] = map[string]any{
		"error":      true,
		"error_type": nerr.Type,
		"message":    nerr.Message,
	}
}

// Output возвращает выход узла. Отсутствие записи означает
// «ещё не произведено» (PENDING или SKIPPED), само по себе это не ошибка.
func (c *RunContext) Output(nodeID string) (any, bool) {
	v, ok := c.nodeOutputs[nodeID]
	return v, ok
}

// Outputs возвращает копию карты выходов (для персистенции и отчётов).
func (c *RunContext) Outputs() map[string]any {
	out := make(map[string]any, len(c.nodeOutputs))
	for k, v := range c.nodeOutputs {
		out[k] = v
	}
	return out
}

// Metadata возвращает метаданные run.
func (c *RunContext) Metadata() ContextMetadata {
	return c.meta
}

// ResolveInputs собирает входы узла по входящим рёбрам.
//
// Для каждого ребра берётся выход source-узла; если у ребра задан
// SourceHandle и выход — это map, берётся соответствующее поле.
// Ключ входа — TargetHandle, либо ID source-узла, если handle пуст.
// Отсутствующие выходы молча пропускаются.
//
// Если у узла нет рёбер, входами становятся выходы его зависимостей,
// ключованные по ID зависимости (depends_on без явной проводки).
func ResolveInputs(wf *BuiltWorkflow, rctx *RunContext, nodeID string) map[string]any {
	inputs := make(map[string]any)

	edges := wf.InboundEdges(nodeID)
	if len(edges) == 0 {
		for _, depID := range wf.Nodes[nodeID].Dependencies {
			if out, ok := rctx.Output(depID); ok {
				inputs[depID] = out
			}
		}
		return inputs
	}

	for _, edge := range edges {
		out, ok := rctx.Output(edge.Source)
		if !ok {
			continue
		}

		val := out
		if edge.SourceHandle != "" {
			if m, ok := out.(map[string]any); ok {
				val = m[edge.SourceHandle]
			}
		}

		key := edge.TargetHandle
		if key == "" {
			key = edge.Source
		}
		inputs[key] = val
	}
	return inputs
}
