// Package sweeper реализует периодические фоновые проходы по хранилищу.
//
// Sweeper снимает подавление с вариантов, отбывших suppression cooldown,
// и возвращает в очередь задачи, застрявшие в processing после смерти
// воркера.
//
// Структура:
//   - sweeper.go — Sweeper (Start/Stop/Sweep) поверх robfig/cron
//
// Leader Election:
//
// Sweeper не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock: проходы
// выполняет только лидер. Обе операции идемпотентны, поэтому
// случайный двойной проход безвреден.
package sweeper
