package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace for all job board metrics
const namespace = "jobboard"

// Registry is the global Prometheus registry for all metrics
var Registry = prometheus.NewRegistry()

// AppInfo is a gauge that exposes application version information as labels
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always set to 1, version info in labels)",
	},
	[]string{"version", "commit", "build_date", "store"},
)

// RateLimitRejections counts requests refused with 429
var RateLimitRejections = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_rejections_total",
		Help:      "Total number of requests rejected by the rate limiter",
	},
)

// RateLimitErrors counts limiter backend failures (requests are let through)
var RateLimitErrors = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limit_errors_total",
		Help:      "Total number of rate limiter backend errors",
	},
)

// AuthFailures counts rejected bearer tokens by reason
var AuthFailures = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_failures_total",
		Help:      "Total number of requests rejected by bearer authentication",
	},
	[]string{"reason"}, // reason: missing|invalid|expired|unknown_user
)

// NotifyConnections tracks open websocket connections
var NotifyConnections = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "notify_connections",
		Help:      "Current number of connected notification clients",
	},
)

// NotifyBroadcasts counts messages fanned out to clients
var NotifyBroadcasts = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_broadcasts_total",
		Help:      "Total number of notification broadcasts",
	},
	[]string{"source"}, // source: ticker|event
)

// NotifyDropped counts clients disconnected because their send buffer was full
var NotifyDropped = promauto.With(Registry).NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notify_dropped_clients_total",
		Help:      "Total number of notification clients dropped for being too slow",
	},
)

// DomainEvents counts domain event deliveries per sink
var DomainEvents = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "domain_events_total",
		Help:      "Total number of domain event deliveries",
	},
	[]string{"type", "sink", "status"},
)

// Init registers runtime collectors and sets version information.
func Init(version, commit, buildDate, store string) {
	// Register default Go metrics (memory, goroutines, GC, etc.)
	Registry.MustRegister(collectors.NewGoCollector())

	// Register process metrics (CPU, memory, file descriptors)
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	AppInfo.WithLabelValues(version, commit, buildDate, store).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
