package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTPRequestDuration tracks HTTP request latency across all routers.
var HTTPRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "getouch",
		Subsystem: "api",
		Name:      "request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"method", "path", "status"},
)

var MessagesQueuedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "dispatch",
		Name:      "messages_queued_total",
		Help:      "Total number of outbound messages accepted into the queue.",
	},
)

var MessagesDispatchedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "dispatch",
		Name:      "messages_dispatched_total",
		Help:      "Total number of lease outcomes, by outcome status.",
	},
	[]string{"status"},
)

var DispatchCycleDuration = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Namespace: "getouch",
		Subsystem: "dispatch",
		Name:      "cycle_duration_seconds",
		Help:      "Duration of one dispatcher lease-and-send cycle.",
		Buckets:   prometheus.DefBuckets,
	},
)

var DispatchReentrancySkippedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "dispatch",
		Name:      "reentrancy_skipped_total",
		Help:      "Total number of dispatcher ticks skipped because a cycle was already running.",
	},
)

var RateLimitRejectedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "auth",
		Name:      "rate_limit_rejected_total",
		Help:      "Total number of requests rejected for exceeding the per-key rate limit.",
	},
	[]string{"api_key_id"},
)

var DeviceAuthFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "auth",
		Name:      "device_auth_failures_total",
		Help:      "Total number of rejected device HMAC authentications, by reason.",
	},
	[]string{"reason"},
)

var WebhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "webhook",
		Name:      "deliveries_total",
		Help:      "Total number of webhook delivery attempts, by event type and outcome.",
	},
	[]string{"event_type", "outcome"},
)

var TasksDroppedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "taskqueue",
		Name:      "tasks_dropped_total",
		Help:      "Total number of fire-and-forget tasks dropped because the queue was full.",
	},
	[]string{"kind"},
)

var StaleDevicesOfflinedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Namespace: "getouch",
		Subsystem: "router",
		Name:      "stale_devices_offlined_total",
		Help:      "Total number of devices transitioned from online to offline by the stale sweeper.",
	},
)

// All returns the gateway's domain-specific metrics for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		MessagesQueuedTotal,
		MessagesDispatchedTotal,
		DispatchCycleDuration,
		DispatchReentrancySkippedTotal,
		RateLimitRejectedTotal,
		DeviceAuthFailuresTotal,
		WebhookDeliveriesTotal,
		TasksDroppedTotal,
		StaleDevicesOfflinedTotal,
	}
}

// NewMetricsRegistry creates a Prometheus registry with Go/process collectors,
// the shared HTTPRequestDuration metric, and every gateway-specific collector.
func NewMetricsRegistry(extra ...prometheus.Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		HTTPRequestDuration,
	)
	for _, c := range extra {
		reg.MustRegister(c)
	}
	return reg
}
