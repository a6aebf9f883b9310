// Package telemetry exposes the module's Prometheus metrics. Embedding
// applications that already serve a /metrics endpoint pick these up through
// the default registry.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bgtask",
		Subsystem: "runner",
		Name:      "calls_total",
		Help:      "Total recorded calls, labelled by terminal status.",
	}, []string{"status"})

	BackgroundTasksLaunched = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bgtask",
		Subsystem: "launcher",
		Name:      "background_tasks_total",
		Help:      "Total detached background tasks launched.",
	})

	TraceAppendFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bgtask",
		Subsystem: "sink",
		Name:      "trace_append_failures_total",
		Help:      "Raw trace appends to the log file that failed.",
	})
)
