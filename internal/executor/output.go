package executor

import (
	"context"

	"github.com/shaiso/Conveyor/internal/engine"
)

// NodeTypeOutput — тип выходного узла.
const NodeTypeOutput = "output"

// OutputExecutor — выходной узел workflow.
//
// Собирает свои входы в итоговый результат run. Конфигурация может
// содержать шаблоны, формирующие итоговые поля:
//
//	{
//	    "fields": {
//	        "report": "{{ .Inputs.summary }}",
//	        "count": "{{ .Inputs.total }}"
//	    }
//	}
//
// Без fields выходом становятся входы узла как есть.
type OutputExecutor struct{}

// NewOutputExecutor создаёт OutputExecutor.
func NewOutputExecutor() *OutputExecutor {
	return &OutputExecutor{}
}

// Type возвращает тип узла.
func (e *OutputExecutor) Type() string {
	return NodeTypeOutput
}

// Execute собирает итоговый результат.
func (e *OutputExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	fields := configStringMap(node.Config, "fields")
	if len(fields) == 0 {
		if inputs == nil {
			return map[string]any{}, nil
		}
		outputs := make(map[string]any, len(inputs))
		for k, v := range inputs {
			outputs[k] = v
		}
		return outputs, nil
	}

	data := &templateData{Inputs: inputs, Node: node.ID}
	outputs := make(map[string]any, len(fields))
	for key, tmpl := range fields {
		rendered, err := render(tmpl, data)
		if err != nil {
			return nil, engine.NewExecError(engine.ErrorTypeValidation,
				"output: "+err.Error())
		}
		outputs[key] = parseValue(rendered)
	}
	return outputs, nil
}
