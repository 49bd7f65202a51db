// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go            — Handler с DI (сервис постановки, репозитории, logger)
//   - routes.go             — регистрация маршрутов
//   - middleware.go         — middleware (logging, recovery)
//   - response.go           — унифицированные JSON-ответы и обработка ошибок
//   - dto.go                — Data Transfer Objects (request/response)
//   - task_handler.go       — обработчики для /tasks
//   - post_handler.go       — обработчики для /posts и /variants
//   - deadletter_handler.go — обработчики для /dead-letters и /counters
//
// API предоставляет REST endpoints для постановки задач продвижения
// и инспекции очереди, постов, dead letter и счётчиков.
package api
