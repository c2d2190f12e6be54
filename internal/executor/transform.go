package executor

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/Conveyor/internal/engine"
)

const (
	// NodeTypeTransform — тип узла трансформации.
	NodeTypeTransform = "transform"

	configMappings = "mappings"
)

// TransformExecutor — узел трансформации данных.
//
// Применяет Go templates к входам узла:
//
//	{
//	    "mappings": {
//	        "total": "{{ len .Inputs.items }}",
//	        "summary": "{{ .Inputs.title }}: {{ .Inputs.count }}"
//	    }
//	}
//
// Outputs — результаты рендеринга каждого mapping. Результаты,
// похожие на JSON, парсятся обратно в структуры.
type TransformExecutor struct{}

// NewTransformExecutor создаёт TransformExecutor.
func NewTransformExecutor() *TransformExecutor {
	return &TransformExecutor{}
}

// Type возвращает тип узла.
func (e *TransformExecutor) Type() string {
	return NodeTypeTransform
}

// Execute выполняет трансформацию данных.
func (e *TransformExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, inputs map[string]any) (map[string]any, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	mappings := parseMappings(node.Config)
	if len(mappings) == 0 {
		return map[string]any{}, nil
	}

	data := &templateData{Inputs: inputs, Node: node.ID}
	outputs := make(map[string]any, len(mappings))
	for key, tmpl := range mappings {
		rendered, err := render(tmpl, data)
		if err != nil {
			return nil, engine.NewExecError(engine.ErrorTypeValidation,
				fmt.Sprintf("transform %s: %v", key, err))
		}
		outputs[key] = parseValue(rendered)
	}

	return outputs, nil
}

// parseMappings извлекает mappings из конфигурации.
func parseMappings(config map[string]any) map[string]string {
	raw := config[configMappings]
	if raw == nil {
		return nil
	}

	switch m := raw.(type) {
	case map[string]string:
		return m

	case map[string]any:
		result := make(map[string]string, len(m))
		for key, val := range m {
			if str, ok := val.(string); ok {
				result[key] = str
			}
		}
		return result

	default:
		return nil
	}
}

// parseValue пытается распарсить строку как JSON значение.
// Если не получается — возвращает строку как есть.
func parseValue(value string) any {
	var obj map[string]any
	if err := json.Unmarshal([]byte(value), &obj); err == nil {
		return obj
	}

	var arr []any
	if err := json.Unmarshal([]byte(value), &arr); err == nil {
		return arr
	}

	var num json.Number
	if err := json.Unmarshal([]byte(value), &num); err == nil {
		if i, err := num.Int64(); err == nil {
			return i
		}
		if f, err := num.Float64(); err == nil {
			return f
		}
	}

	if value == "true" {
		return true
	}
	if value == "false" {
		return false
	}

	return value
}
