package domain

import "strings"

// ErrorClass — классификация ошибки диспатча по тексту сообщения.
//
// Классификация определяет поведение retry:
//   - rate_limit, transient, generic — retry с backoff
//   - auth, not_found — терминальные с первого раза
type ErrorClass string

const (
	// ErrClassRateLimit — квота/429/too many requests.
	ErrClassRateLimit ErrorClass = "rate_limit"

	// ErrClassTransient — таймаут или сетевая ошибка.
	ErrClassTransient ErrorClass = "transient"

	// ErrClassAuth — 401/permission; требует ручного вмешательства.
	ErrClassAuth ErrorClass = "auth"

	// ErrClassNotFound — ресурс не найден; скорее всего невосстановимо.
	ErrClassNotFound ErrorClass = "not_found"

	// ErrClassGeneric — всё остальное.
	ErrClassGeneric ErrorClass = "generic"

	// ErrClassIntegrity — подпись задачи не прошла проверку; всегда терминально.
	ErrClassIntegrity ErrorClass = "integrity_failed"
)

// ClassifyError определяет класс ошибки по тексту сообщения платформы.
func ClassifyError(message string) ErrorClass {
	m := strings.ToLower(message)
	switch {
	case strings.Contains(m, "quota"),
		strings.Contains(m, "rate limit"),
		strings.Contains(m, "too many requests"),
		strings.Contains(m, "429"):
		return ErrClassRateLimit
	case strings.Contains(m, "timeout"),
		strings.Contains(m, "network"),
		strings.Contains(m, "fetch failed"):
		return ErrClassTransient
	case strings.Contains(m, "auth"),
		strings.Contains(m, "unauthorized"),
		strings.Contains(m, "permission"):
		return ErrClassAuth
	case strings.Contains(m, "not found"):
		return ErrClassNotFound
	default:
		return ErrClassGeneric
	}
}

// Retryable возвращает false для классов, требующих ручного вмешательства.
func (c ErrorClass) Retryable() bool {
	switch c {
	case ErrClassAuth, ErrClassNotFound, ErrClassIntegrity:
		return false
	default:
		return true
	}
}

// BackoffFactor — множитель backoff для класса ошибки.
// rate_limit ждёт дольше (×2), auth — ещё дольше (×3), если бы retry был возможен.
func (c ErrorClass) BackoffFactor() int {
	switch c {
	case ErrClassRateLimit:
		return 2
	case ErrClassAuth:
		return 3
	default:
		return 1
	}
}
