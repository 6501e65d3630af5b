// Package metrics defines the Prometheus instruments exported at
// /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all orchestration counters and gauges.
type Metrics struct {
	TasksSubmitted prometheus.Counter
	Transitions    *prometheus.CounterVec
	Ticks          prometheus.Counter
	Assignments    prometheus.Counter
	TasksBlocked   prometheus.Counter
	TasksInFlight  prometheus.Gauge
	HTTPRequests   *prometheus.CounterVec
}

// New registers all instruments on the given registerer. Pass
// prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TasksSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "gantry_tasks_submitted_total",
			Help: "Tasks accepted into the graph.",
		}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_task_transitions_total",
			Help: "Committed status transitions, labeled by resulting status.",
		}, []string{"to"}),
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "gantry_orchestrator_ticks_total",
			Help: "Completed orchestrator ticks.",
		}),
		Assignments: factory.NewCounter(prometheus.CounterOpts{
			Name: "gantry_assignments_total",
			Help: "Task-to-worker assignments committed.",
		}),
		TasksBlocked: factory.NewCounter(prometheus.CounterOpts{
			Name: "gantry_tasks_blocked_total",
			Help: "Tasks that reached the terminal blocked state.",
		}),
		TasksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "gantry_tasks_in_flight",
			Help: "Tasks currently assigned or running.",
		}),
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gantry_http_requests_total",
			Help: "HTTP API requests, labeled by method, path, and status code.",
		}, []string{"method", "path", "status"}),
	}
}
