// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением с RabbitMQ (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений в очереди
//   - consumer.go   — потребление сообщений из очередей
//
// Типы сообщений:
//   - task.enqueued      — новая задача поставлена в очередь (wake-up воркеров)
//   - task.completed     — задача завершена (для внешних подписчиков)
//   - task.dead_lettered — задача терминально провалилась
//
// Exchanges:
//   - promotor.tasks — события задач
//   - promotor.dlq   — dead letter queue
//
// События — оптимизация латентности, не источник истины: воркеры в любом
// случае периодически опрашивают БД, поэтому потеря сообщения приводит
// максимум к задержке pickup'а, не к потере задачи.
package mq
