package mq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Exchange — тип для имени обменника.
type Exchange string

// Queue — тип для имени очереди.
type Queue string

// RoutingKey — тип для ключа маршрутизации.
type RoutingKey string

// Exchanges — имена обменников.
const (
	ExchangeTasks Exchange = "promotor.tasks"
	ExchangeDLQ   Exchange = "promotor.dlq"
)

// Queues — имена очередей.
const (
	QueueTasksEnqueued  Queue = "tasks.enqueued"
	QueueTasksCompleted Queue = "tasks.completed"
	QueueDLQTasks       Queue = "dlq.tasks"
)

// Routing keys.
const (
	RoutingKeyEnqueued     RoutingKey = "enqueued"
	RoutingKeyCompleted    RoutingKey = "completed"
	RoutingKeyDeadLettered RoutingKey = "dead_lettered"
)

func SetupTopology(ctx context.Context, conn *Connection) error {
	return conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		// 1. Создаём exchanges
		if err := declareExchanges(ch); err != nil {
			return err
		}

		// 2. Создаём queues
		if err := declareQueues(ch); err != nil {
			return err
		}

		// 3. Привязываем queues к exchanges
		if err := bindQueues(ch); err != nil {
			return err
		}

		return nil
	})
}

// declareExchanges создаёт обменники.
func declareExchanges(ch *amqp.Channel) error {
	exchanges := []struct {
		name Exchange
		kind string
	}{
		{ExchangeTasks, "direct"},
		{ExchangeDLQ, "direct"},
	}

	for _, ex := range exchanges {
		err := ch.ExchangeDeclare(
			string(ex.name), // name
			ex.kind,         // type
			true,            // durable
			false,           // auto-deleted
			false,           // internal
			false,           // no-wait
			nil,             // arguments
		)
		if err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex.name, err)
		}
	}

	return nil
}

// declareQueues создаёт очереди.
func declareQueues(ch *amqp.Channel) error {
	queues := []struct {
		name Queue
		args amqp.Table
	}{
		// tasks.enqueued — wake-up сигналы воркерам. Потеря сообщения
		// не критична: polling fallback подберёт задачу из БД.
		{QueueTasksEnqueued, nil},

		// tasks.completed — события завершения для внешних подписчиков.
		{QueueTasksCompleted, nil},

		// dlq.tasks — уведомления о dead-letter задачах.
		{QueueDLQTasks, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			string(q.name), // name
			true,           // durable
			false,          // delete when unused
			false,          // exclusive
			false,          // no-wait
			q.args,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// bindQueues привязывает очереди к обменникам.
func bindQueues(ch *amqp.Channel) error {
	bindings := []struct {
		queue      Queue
		routingKey RoutingKey
		exchange   Exchange
	}{
		{QueueTasksEnqueued, RoutingKeyEnqueued, ExchangeTasks},
		{QueueTasksCompleted, RoutingKeyCompleted, ExchangeTasks},
		{QueueDLQTasks, RoutingKeyDeadLettered, ExchangeDLQ},
	}

	for _, b := range bindings {
		err := ch.QueueBind(
			string(b.queue),      // queue name
			string(b.routingKey), // routing key
			string(b.exchange),   // exchange
			false,                // no-wait
			nil,                  // arguments
		)
		if err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, b.exchange, err)
		}
	}

	return nil
}

// TopologyInfo возвращает описание топологии для логирования.
func TopologyInfo() string {
	return `
  Promotor RabbitMQ Topology:

    promotor.tasks (direct)
    ├── tasks.enqueued [routing: enqueued]
    │       Consumer: Worker (low-latency wake-up)
    └── tasks.completed [routing: completed]
            Consumer: external subscribers

    promotor.dlq (direct)
    └── dlq.tasks [routing: dead_lettered]
            Manual processing
  `
}
