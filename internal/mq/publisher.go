package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskEnqueued     MessageType = "task.enqueued"
	MessageTypeTaskCompleted    MessageType = "task.completed"
	MessageTypeTaskDeadLettered MessageType = "task.dead_lettered"
)

// Publisher публикует сообщения в RabbitMQ.
//
// Publisher nil-safe: деплой без RabbitMQ легален, воркеры тогда
// работают в режиме чистого polling'а, а все Publish* превращаются
// в no-op. Ошибки публикации логируются и не распространяются —
// события лишь ускоряют pickup, источником истины остаётся БД.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher. conn может быть nil.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{
		conn:   conn,
		logger: logger,
	}
}

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskEnqueuedPayload — payload события о новой задаче в очереди.
type TaskEnqueuedPayload struct {
	TaskID   uuid.UUID `json:"task_id"`
	Platform string    `json:"platform"`
}

// TaskCompletedPayload — payload события о завершённой задаче.
type TaskCompletedPayload struct {
	TaskID     uuid.UUID `json:"task_id"`
	Platform   string    `json:"platform"`
	ContentID  string    `json:"content_id"`
	Status     string    `json:"status"` // completed, failed или skipped
	ExternalID string    `json:"external_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	Attempts   int       `json:"attempts"`
}

// TaskDeadLetteredPayload — payload события о dead-letter задаче.
type TaskDeadLetteredPayload struct {
	TaskID          uuid.UUID `json:"task_id"`
	Platform        string    `json:"platform"`
	Error           string    `json:"error"`
	ErrorClass      string    `json:"error_class"`
	IntegrityFailed bool      `json:"integrity_failed,omitempty"`
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	if p == nil || p.conn == nil {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:    msg.ID,
				Timestamp:    msg.Timestamp,
				Body:         body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskEnqueued публикует wake-up событие о новой задаче.
// Потребитель: Worker.
func (p *Publisher) PublishTaskEnqueued(ctx context.Context, taskID uuid.UUID, platform string) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskEnqueued,
		Payload:   TaskEnqueuedPayload{TaskID: taskID, Platform: platform},
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyEnqueued, msg)
}

// PublishTaskCompleted публикует событие о завершённой задаче.
// Потребители: внешние подписчики (аналитика, нотификации).
func (p *Publisher) PublishTaskCompleted(ctx context.Context, payload TaskCompletedPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskCompleted,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyCompleted, msg)
}

// PublishTaskDeadLettered публикует событие о задаче, ушедшей в DLQ.
func (p *Publisher) PublishTaskDeadLettered(ctx context.Context, payload TaskDeadLetteredPayload) error {
	msg := &Message{
		ID:        uuid.New().String(),
		Type:      MessageTypeTaskDeadLettered,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	return p.Publish(ctx, ExchangeDLQ, RoutingKeyDeadLettered, msg)
}
