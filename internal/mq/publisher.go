package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/shaiso/quizflow/internal/domain"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// MessageTypeEmailBatch — пакет писем для quizflow-mailer.
const MessageTypeEmailBatch MessageType = "email.batch"

// Message — конверт сообщения.
type Message struct {
	ID        string          `json:"id"`
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует persistent-сообщение в exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, key RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(ctx, string(exchange), string(key), false, false, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         string(msg.Type),
			Timestamp:    msg.Timestamp,
			Body:         body,
		})
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, key, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", key,
			"message_id", msg.ID,
			"type", msg.Type,
		)
		return nil
	})
}

// EnqueueEmailBatch ставит пакет писем в email.batches.
// Реализует notify.EmailQueue.
func (p *Publisher) EnqueueEmailBatch(ctx context.Context, batch domain.EmailBatch) error {
	msg, err := NewMessage(MessageTypeEmailBatch, batch.ID, batch, batch.CreatedAt)
	if err != nil {
		return err
	}
	return p.Publish(ctx, ExchangeEmail, RoutingKeyEmailBatch, msg)
}

// NewMessage упаковывает payload в конверт.
func NewMessage(typ MessageType, id uuid.UUID, payload any, ts time.Time) (*Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return &Message{ID: id.String(), Type: typ, Payload: raw, Timestamp: ts}, nil
}

// ParsePayload разбирает payload сообщения в T.
func ParsePayload[T any](msg *Message) (T, error) {
	var out T
	if err := json.Unmarshal(msg.Payload, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s payload: %w", msg.Type, err)
	}
	return out, nil
}
