package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus-зеркала персистентных счётчиков promo_counters.
// Персистентные значения переживают рестарты, эти — нет; для алертинга
// и rate() этого достаточно.
var (
	// TasksEnqueued — созданные задачи по платформам.
	TasksEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotor_tasks_enqueued_total",
		Help: "Tasks accepted by Enqueue, by platform.",
	}, []string{"platform"})

	// TasksProcessed — терминальные исходы обработки.
	TasksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotor_tasks_processed_total",
		Help: "Processed tasks by platform and terminal outcome.",
	}, []string{"platform", "outcome"})

	// TaskRetries — возвраты в очередь по классам ошибок.
	TaskRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotor_task_retries_total",
		Help: "Task retries by error class.",
	}, []string{"error_class"})

	// LockTakeovers — исходы takeover-протокола.
	LockTakeovers = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotor_lock_takeovers_total",
		Help: "Stale lock takeover attempts by result.",
	}, []string{"result"})

	// RateLimitEvents — зафиксированные rate-limit окна платформ.
	RateLimitEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promotor_rate_limit_events_total",
		Help: "Rate limit windows recorded, by platform.",
	}, []string{"platform"})

	// DispatchDuration — длительность вызовов диспатчеров.
	DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promotor_dispatch_duration_seconds",
		Help:    "Platform dispatcher call duration.",
		Buckets: prometheus.DefBuckets,
	}, []string{"platform"})
)
