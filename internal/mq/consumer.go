package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrReject — обработчик отказывается от сообщения без повтора
// (например, некорректный payload). Сообщение уходит в DLQ.
var ErrReject = errors.New("message rejected")

// Handler обрабатывает сообщение. nil — ack, ошибка — nack (см. settle).
type Handler func(ctx context.Context, d *Delivery) error

// Delivery — доставленное сообщение.
type Delivery struct {
	Message     Message
	Redelivered bool
	Raw         amqp.Delivery
}

// Disposition — как подтвердить сообщение после обработки.
type Disposition int

const (
	Ack Disposition = iota
	Requeue
	DeadLetter
)

func (d Disposition) String() string {
	switch d {
	case Ack:
		return "ack"
	case Requeue:
		return "requeue"
	default:
		return "dead_letter"
	}
}

// settle выбирает исход по ошибке обработчика.
// Первая неудача возвращает сообщение в очередь, повторная отправляет в DLQ.
func settle(err error, redelivered bool) Disposition {
	switch {
	case err == nil:
		return Ack
	case errors.Is(err, ErrReject):
		return DeadLetter
	case redelivered:
		return DeadLetter
	default:
		return Requeue
	}
}

// Consumer потребляет сообщения из очереди.
type Consumer struct {
	conn     *Connection
	logger   *slog.Logger
	queue    Queue
	handler  Handler
	prefetch int

	cancelFunc context.CancelFunc
}

// ConsumerConfig — конфигурация Consumer.
type ConsumerConfig struct {
	Queue    Queue
	Handler  Handler
	Prefetch int // default: 1
	Logger   *slog.Logger
}

// NewConsumer создаёт новый Consumer.
func NewConsumer(conn *Connection, cfg ConsumerConfig) *Consumer {
	c := &Consumer{
		conn:     conn,
		logger:   cfg.Logger,
		queue:    cfg.Queue,
		handler:  cfg.Handler,
		prefetch: cfg.Prefetch,
	}
	if c.prefetch <= 0 {
		c.prefetch = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = c.logger.With("queue", c.queue)
	return c
}

// Start потребляет сообщения до отмены ctx или Stop. Блокирующий.
// После разрыва соединения ждёт переподключения и подписывается снова.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancelFunc = context.WithCancel(ctx)

	for {
		deliveries, err := c.subscribe()
		if err == nil {
			c.logger.Info("consumer started")
			err = c.drain(ctx, deliveries)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer interrupted, waiting for reconnect", "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.conn.ReconnectNotify():
		}
	}
}

// Stop останавливает Start.
func (c *Consumer) Stop() {
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
}

func (c *Consumer) subscribe() (<-chan amqp.Delivery, error) {
	ch := c.conn.Channel()
	if ch == nil {
		return nil, ErrNoChannel
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(string(c.queue), "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", err)
	}
	return deliveries, nil
}

func (c *Consumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.handle(ctx, raw)
		}
	}
}

func (c *Consumer) handle(ctx context.Context, raw amqp.Delivery) {
	var msg Message
	if err := json.Unmarshal(raw.Body, &msg); err != nil {
		c.logger.Error("failed to unmarshal message", "error", err, "body", string(raw.Body))
		c.apply(raw, DeadLetter)
		return
	}

	err := c.handler(ctx, &Delivery{Message: msg, Redelivered: raw.Redelivered, Raw: raw})
	d := settle(err, raw.Redelivered)
	if err != nil {
		c.logger.Error("message handler failed",
			"message_id", msg.ID,
			"type", msg.Type,
			"redelivered", raw.Redelivered,
			"disposition", d,
			"error", err,
		)
	}
	c.apply(raw, d)
}

func (c *Consumer) apply(raw amqp.Delivery, d Disposition) {
	var err error
	switch d {
	case Ack:
		err = raw.Ack(false)
	case Requeue:
		err = raw.Nack(false, true)
	case DeadLetter:
		err = raw.Nack(false, false)
	}
	if err != nil {
		c.logger.Warn("failed to settle delivery", "disposition", d, "error", err)
	}
}
