package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler обрабатывает одно сообщение из очереди.
//
// Возврат nil — ack. Возврат ошибки — nack: первая доставка
// возвращается в очередь, повторная уходит в DLQ, чтобы битое
// сообщение не крутилось бесконечно.
type Handler func(ctx context.Context, msg *Message) error

// inbound — envelope входящего сообщения. Payload остаётся сырым
// JSON до вызова ParsePayload.
type inbound struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Consumer читает одну очередь RabbitMQ и переживает реконнекты.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    string
	handler  Handler
	prefetch int

	stop context.CancelFunc
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	// Queue — имя очереди.
	Queue string

	// Handler — обработчик сообщений.
	Handler Handler

	// Prefetch — лимит неподтверждённых сообщений (default: 1).
	Prefetch int
}

// NewConsumer создаёт Consumer. Чтение начинается в Start.
func NewConsumer(conn *Connection, logger *slog.Logger, cfg ConsumerConfig) *Consumer {
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}

	return &Consumer{
		conn:     conn,
		logger:   logger.With("queue", cfg.Queue),
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: prefetch,
	}
}

// Start читает очередь до отмены контекста или вызова Stop.
// При обрыве соединения ждёт реконнект и подписывается заново.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.stop = cancel

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		stream, err := c.subscribe()
		if err != nil {
			c.logger.Error("subscribe failed, waiting for reconnect", "error", err)
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
			continue
		}

		c.logger.Info("consumer subscribed")

		if err := c.drain(ctx, stream); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Warn("delivery stream closed, waiting for reconnect")
			if err := c.awaitReconnect(ctx); err != nil {
				return err
			}
		}
	}
}

// Stop прекращает чтение. Уже взятые сообщения дообрабатываются.
func (c *Consumer) Stop() {
	if c.stop != nil {
		c.stop()
	}
}

// subscribe выставляет prefetch и подписывается на очередь.
func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, fmt.Errorf("no channel available")
	}

	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}

	tag := "conveyor." + c.queue
	stream, err := ch.Consume(c.queue, tag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume %s: %w", c.queue, err)
	}

	return stream, nil
}

// awaitReconnect блокируется до восстановления соединения.
func (c *Consumer) awaitReconnect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.conn.ReconnectNotify():
		c.logger.Info("connection restored, resubscribing")
		return nil
	}
}

// drain обрабатывает сообщения, пока stream не закроется.
func (c *Consumer) drain(ctx context.Context, stream <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case d, ok := <-stream:
			if !ok {
				return fmt.Errorf("delivery stream closed")
			}
			c.dispatch(ctx, d)
		}
	}
}

// dispatch декодирует envelope и вызывает handler.
//
// Ack/nack решает сам consumer: handler'ам достаётся только
// типизированное сообщение.
func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery) {
	var env inbound
	if err := json.Unmarshal(d.Body, &env); err != nil {
		c.logger.Error("malformed message, sending to DLQ",
			"error", err,
			"body", string(d.Body),
		)
		d.Nack(false, false)
		return
	}

	msg := &Message{
		ID:        env.ID,
		Type:      env.Type,
		Payload:   env.Payload,
		Timestamp: env.Timestamp,
	}

	c.logger.Debug("message received", "message_id", msg.ID, "type", msg.Type)

	if err := c.handler(ctx, msg); err != nil {
		c.logger.Error("handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"redelivered", d.Redelivered,
			"error", err,
		)
		// Вторая неудача подряд — в DLQ, иначе на повтор.
		d.Nack(false, !d.Redelivered)
		return
	}

	d.Ack(false)
}

// ParsePayload декодирует payload сообщения в тип T.
//
// Для входящих сообщений payload — сырой JSON и декодируется
// напрямую; для сообщений, собранных в процессе, значение
// прогоняется через marshal/unmarshal.
func ParsePayload[T any](msg *Message) (T, error) {
	var result T

	raw, ok := msg.Payload.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(msg.Payload)
		if err != nil {
			return result, fmt.Errorf("marshal payload: %w", err)
		}
		raw = b
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}

	return result, nil
}
