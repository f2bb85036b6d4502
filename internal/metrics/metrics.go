// Package metrics exposes Prometheus collectors for the pool and the
// admin API wrapped around it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execpool_tasks_submitted_total",
			Help: "Total number of tasks submitted to the pool",
		},
		[]string{"type"},
	)

	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execpool_tasks_completed_total",
			Help: "Total number of tasks that reached a terminal state",
		},
		[]string{"type", "status"},
	)

	TaskDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execpool_task_duration_seconds",
			Help:    "Task execution duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"type"},
	)

	ActiveWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execpool_active_workers",
			Help: "Current number of live worker processes",
		},
	)

	ActiveTasks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execpool_active_tasks",
			Help: "Current number of tasks being executed by a worker",
		},
	)

	WorkerKills = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execpool_worker_kills_total",
			Help: "Total number of worker processes force-terminated",
		},
		[]string{"reason"},
	)

	WorkerRespawns = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "execpool_worker_respawns_total",
			Help: "Total number of replacement worker processes spawned",
		},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execpool_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execpool_http_requests_total",
			Help: "Total number of HTTP requests served by the admin API",
		},
		[]string{"method", "path", "status"},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "execpool_websocket_connections",
			Help: "Current number of connected WebSocket event subscribers",
		},
	)

	WebSocketMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execpool_websocket_messages_total",
			Help: "Total number of events broadcast over WebSocket",
		},
		[]string{"type"},
	)
)

// RecordTaskSubmission records a task submission.
func RecordTaskSubmission(taskType string) {
	TasksSubmitted.WithLabelValues(taskType).Inc()
}

// RecordTaskCompletion records a terminal outcome and its duration.
func RecordTaskCompletion(taskType, status string, durationSeconds float64) {
	TasksCompleted.WithLabelValues(taskType, status).Inc()
	TaskDuration.WithLabelValues(taskType).Observe(durationSeconds)
}

// SetActiveWorkers sets the live worker-process gauge.
func SetActiveWorkers(count float64) { ActiveWorkers.Set(count) }

// SetActiveTasks sets the currently-executing task gauge.
func SetActiveTasks(count float64) { ActiveTasks.Set(count) }

// RecordWorkerKill records a forced worker termination.
func RecordWorkerKill(reason string) { WorkerKills.WithLabelValues(reason).Inc() }

// RecordWorkerRespawn records a replacement worker being spawned.
func RecordWorkerRespawn() { WorkerRespawns.Inc() }

// RecordHTTPRequest records an admin API request.
func RecordHTTPRequest(method, path, status string, durationSeconds float64) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
}

// SetWebSocketConnections sets the connected-subscriber gauge.
func SetWebSocketConnections(count float64) { WebSocketConnections.Set(count) }

// RecordWebSocketMessage records an event broadcast to subscribers.
func RecordWebSocketMessage(eventType string) { WebSocketMessages.WithLabelValues(eventType).Inc() }
