package worker

import (
	"crypto/rand"
	"math/big"
	"time"

	"github.com/shaiso/Promotor/internal/domain"
)

// Параметры retry.
const (
	// DefaultMaxAttempts — максимум попыток диспатча одной задачи.
	DefaultMaxAttempts = 5

	// DefaultBaseBackoff — базовая задержка экспоненциального backoff.
	DefaultBaseBackoff = 30 * time.Second

	// maxBackoffExponent ограничивает рост 2^attempts.
	maxBackoffExponent = 6
)

// Backoff вычисляет задержку перед следующей попыткой:
//
//	base · 2^min(attempts, 6) · classFactor + jitter
//
// classFactor растягивает ожидание для rate_limit (×2) и auth (×3).
// Jitter равномерный в [0, 0.3·base) и берётся из crypto/rand, чтобы
// волна задач, упавших одновременно, не вернулась в очередь синхронно.
func Backoff(attempts int, base time.Duration, class domain.ErrorClass) time.Duration {
	exp := attempts
	if exp > maxBackoffExponent {
		exp = maxBackoffExponent
	}
	delay := base * time.Duration(int64(1)<<exp) * time.Duration(class.BackoffFactor())
	return delay + jitter(base)
}

// jitter возвращает случайную добавку в [0, 0.3·base).
func jitter(base time.Duration) time.Duration {
	span := int64(float64(base) * 0.3)
	if span <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return 0
	}
	return time.Duration(n.Int64())
}
