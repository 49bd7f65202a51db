// Package worker обрабатывает задачи продвижения.
//
// # Обзор
//
// Worker — stateless компонент системы Promotor, который доводит задачи
// platform_post от очереди до публикации. Worker отвечает за:
//
//   - Получение wake-up событий из очереди RabbitMQ (event-driven)
//   - Периодическую проверку queued tasks в БД (polling fallback)
//   - Приоритетный выбор задачи (velocity + engagement + tie-break)
//   - Протокол распределённой блокировки (platform, postHash) с takeover
//   - Выбор варианта текста (bandit/rotation)
//   - Retry с exponential backoff и классификацией ошибок
//
// Workers масштабируются горизонтально — несколько экземпляров работают
// с одной БД, эксклюзивность постов обеспечивает протокол блокировок.
//
// # Конвейер ProcessNext
//
//  1. Batch queued задач (oldest-first), фильтр nextAttemptAt ≤ now
//  2. Приоритетный выбор, условный claim queued → processing
//  3. Проверка HMAC-подписи (провал → failed + dead letter, без диспатча)
//  4. Cooldown-гейт платформы (деферрал без расхода попытки)
//  5. Блокировка/takeover (проигрыш → skipped)
//  6. Выбор варианта, shortlink-обогащение
//  7. Диспатч, фиксация исхода, обновление статистики варианта
//
// # Retry
//
// Ошибки диспатча классифицируются по тексту: rate_limit/transient/generic
// ретраятся с backoff base·2^min(attempts,6)·classFactor + jitter,
// auth/not_found терминальны сразу. После MaxAttempts — failed + DLQ.
//
// ProcessNext никогда не «бросает» по бизнес-причинам: всё ожидаемое
// (деферралы, skip, retry, терминальный провал) приходит в Outcome,
// ошибка возвращается только при отказе инфраструктуры.
package worker
