package executor

import (
	"context"
	"time"

	"github.com/shaiso/Conveyor/internal/engine"
)

const (
	// NodeTypeDelay — тип узла задержки.
	NodeTypeDelay = "delay"

	configDurationSec = "duration_sec"
	configDurationMs  = "duration_ms"
)

// DelayExecutor — узел задержки.
//
// Приостанавливает ветку на указанное время. Отмена контекста
// прерывает ожидание.
//
// Конфигурация:
//
//	{"duration_sec": 10}   // или
//	{"duration_ms": 500}
type DelayExecutor struct{}

// NewDelayExecutor создаёт DelayExecutor.
func NewDelayExecutor() *DelayExecutor {
	return &DelayExecutor{}
}

// Type возвращает тип узла.
func (e *DelayExecutor) Type() string {
	return NodeTypeDelay
}

// Execute выполняет задержку.
func (e *DelayExecutor) Execute(ctx context.Context, node *engine.ExecutableNode, _ map[string]any) (map[string]any, error) {
	duration, err := parseDuration(node.Config)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return map[string]any{
			"duration_ms": duration.Milliseconds(),
		}, nil
	}
}

// parseDuration извлекает длительность из конфигурации.
func parseDuration(config map[string]any) (time.Duration, error) {
	if sec := configInt(config, configDurationSec); sec > 0 {
		return time.Duration(sec) * time.Second, nil
	}
	if ms := configInt(config, configDurationMs); ms > 0 {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return 0, engine.NewExecError(engine.ErrorTypeValidation,
		"delay: duration_sec or duration_ms required")
}
