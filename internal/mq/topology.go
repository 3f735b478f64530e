package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — имя обменника.
type Exchange string

// Queue — имя очереди.
type Queue string

// RoutingKey — ключ маршрутизации.
type RoutingKey string

const (
	ExchangeEmail Exchange = "quizflow.email"
	ExchangeDLQ   Exchange = "quizflow.dlq"
)

const (
	QueueEmailBatches Queue = "email.batches"
	QueueDLQEmail     Queue = "dlq.email"
)

const (
	RoutingKeyEmailBatch RoutingKey = "batch"
	RoutingKeyDLQEmail   RoutingKey = "email"
)

type binding struct {
	queue    Queue
	key      RoutingKey
	exchange Exchange
	args     amqp.Table
}

// topology — очереди и их привязки. Сообщения, отклонённые из
// email.batches без requeue, уходят в dlq.email.
var topology = []binding{
	{
		queue:    QueueEmailBatches,
		key:      RoutingKeyEmailBatch,
		exchange: ExchangeEmail,
		args: amqp.Table{
			"x-dead-letter-exchange":    string(ExchangeDLQ),
			"x-dead-letter-routing-key": string(RoutingKeyDLQEmail),
		},
	},
	{queue: QueueDLQEmail, key: RoutingKeyDLQEmail, exchange: ExchangeDLQ},
}

// SetupTopology объявляет обменники, очереди и привязки. Идемпотентна.
func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		for _, ex := range []Exchange{ExchangeEmail, ExchangeDLQ} {
			if err := ch.ExchangeDeclare(string(ex), amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
				return fmt.Errorf("declare exchange %s: %w", ex, err)
			}
		}

		for _, b := range topology {
			if _, err := ch.QueueDeclare(string(b.queue), true, false, false, false, b.args); err != nil {
				return fmt.Errorf("declare queue %s: %w", b.queue, err)
			}
			if err := ch.QueueBind(string(b.queue), string(b.key), string(b.exchange), false, nil); err != nil {
				return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
			}
		}
		return nil
	})
}

// TopologyInfo возвращает описание топологии для логирования при старте.
func TopologyInfo() string {
	return `
  quizflow RabbitMQ topology:

    quizflow.email (direct)
    └── email.batches [routing: batch]
            Consumer: quizflow-mailer
            DLQ: dlq.email

    quizflow.dlq (direct)
    └── dlq.email [routing: email]
            Manual processing
`
}
