package executor

import (
	"context"

	"github.com/shaiso/Conveyor/internal/engine"
)

// NodeTypeTrigger — тип узла-триггера.
const NodeTypeTrigger = "trigger"

// TriggerExecutor — входной узел workflow.
//
// Сам по себе ничего не делает: run уже запущен (вручную, по cron или
// по событию), триггер лишь пробрасывает входные параметры run вниз
// по графу как свои outputs.
type TriggerExecutor struct{}

// NewTriggerExecutor создаёт TriggerExecutor.
func NewTriggerExecutor() *TriggerExecutor {
	return &TriggerExecutor{}
}

// Type возвращает тип узла.
func (e *TriggerExecutor) Type() string {
	return NodeTypeTrigger
}

// Execute пробрасывает входы run как outputs триггера.
func (e *TriggerExecutor) Execute(ctx context.Context, _ *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if inputs == nil {
		return map[string]any{}, nil
	}
	outputs := make(map[string]any, len(inputs))
	for k, v := range inputs {
		outputs[k] = v
	}
	return outputs, nil
}
