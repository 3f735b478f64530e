package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики quizflow. Экспортируются на /metrics через promhttp.
var (
	// JobsExecuted — выполненные отложенные задачи по типу и исходу
	// (done, stale, retry, failed, unknown_type).
	JobsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizflow_jobs_executed_total",
		Help: "Deferred jobs processed by the scheduler worker.",
	}, []string{"job_type", "outcome"})

	// JobPollDuration — длительность одного цикла poll.
	JobPollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "quizflow_job_poll_duration_seconds",
		Help:    "Duration of a single scheduler poll cycle.",
		Buckets: prometheus.DefBuckets,
	})

	// EventsDispatched — вызовы обработчиков доменных событий (ok, error, panic).
	EventsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizflow_events_dispatched_total",
		Help: "Domain event handler invocations.",
	}, []string{"event", "outcome"})

	// NotificationsCreated — созданные уведомления по типу.
	NotificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizflow_notifications_created_total",
		Help: "Persisted notification records.",
	}, []string{"kind"})

	// EmailBatches — пакеты писем по стадии (enqueue, send) и исходу.
	EmailBatches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "quizflow_email_batches_total",
		Help: "Batch email jobs by stage and outcome.",
	}, []string{"stage", "outcome"})
)
