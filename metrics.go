package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// metricsPath is where the debug metrics server exposes the registry,
// mirroring the teacher's "/_gitmproxy_metrics" convention with a name
// that matches this rewrite's own domain.
const metricsPath = "/debug/metrics"

// promMetrics mirrors StatsAggregator's counters as Prometheus metrics,
// using the promauto factory pattern so every metric self-registers on
// construction. Registered with a fresh registry per instance so tests
// can create more than one StatsAggregator without a "duplicate metrics
// collector registration" panic from the default global registry.
type promMetrics struct {
	registry *prometheus.Registry

	requestsTotal       *prometheus.CounterVec
	bytesTransferred    prometheus.Counter
	activeConnections   prometheus.Gauge
	responseTimeSeconds prometheus.Histogram
	cacheLookups        prometheus.Counter
	cacheHits           prometheus.Counter
}

func newPromMetrics() *promMetrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &promMetrics{
		registry: reg,

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fileservd_requests_total",
			Help: "Total number of completed requests, by response status.",
		}, []string{"status"}),

		bytesTransferred: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileservd_bytes_transferred_total",
			Help: "Total response body bytes sent to clients.",
		}),

		activeConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "fileservd_active_connections",
			Help: "Number of requests currently being served.",
		}),

		responseTimeSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fileservd_response_time_seconds",
			Help:    "Per-request response time.",
			Buckets: prometheus.DefBuckets,
		}),

		cacheLookups: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileservd_cache_lookups_total",
			Help: "Total file cache lookups.",
		}),

		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "fileservd_cache_hits_total",
			Help: "Total file cache hits.",
		}),
	}
}

// newMetricsServer builds the debug metrics HTTP server, kept entirely
// separate from the raw-socket file-serving listener: the core protocol
// here is a hand-rolled GET-only codec (httpcodec.go), not net/http, so
// Prometheus exposition gets its own net/http.Server bound to its own
// listener instead of being mounted in-band the way the teacher's
// main.go mounts promhttp.Handler() inside its proxy's own request path.
// The caller supplies the listener (see server.go) so the bound address
// is known immediately, the same way Acceptor exposes its listener.
func newMetricsServer(handler http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(metricsPath, handler)
	return &http.Server{Handler: mux}
}
