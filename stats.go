package main

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Stats is an immutable snapshot of the counters, safe to format without
// holding any lock.
type Stats struct {
	TotalRequests        int64
	BytesTransferred      int64
	TimedRequests         int64
	Status200             int64
	Status206             int64
	Status400             int64
	Status404             int64
	Status405             int64
	Status416             int64
	Status500             int64
	Status503             int64
	StatusOther           int64
	ActiveConnections     int64
	TotalResponseTimeSec  float64
	CacheHits             int64
	CacheLookups          int64
}

// StatsAggregator holds every counter behind one mutex. All
// operations are O(1) integer increments, so the mutex is uncontended in
// practice, matching the original stats.c's single stats_mutex.
type StatsAggregator struct {
	mu    sync.Mutex
	stats Stats

	startedAt time.Time

	metrics *promMetrics
}

// NewStatsAggregator creates an aggregator and registers its Prometheus
// mirror (teacher's metrics.go promauto style, see metrics.go).
func NewStatsAggregator() *StatsAggregator {
	return &StatsAggregator{
		startedAt: time.Now(),
		metrics:   newPromMetrics(),
	}
}

// RequestStart marks the beginning of a request: increments
// ActiveConnections.
func (s *StatsAggregator) RequestStart() {
	s.mu.Lock()
	s.stats.ActiveConnections++
	s.mu.Unlock()

	s.metrics.activeConnections.Inc()
}

// RequestEnd marks the end of a request: totals, status bucket, byte
// count, response-time sum, and decrements ActiveConnections. elapsed
// <= 0 is not counted toward the timed-request average, matching
// stats_request_end's "if (response_time_sec > 0.0)" guard.
func (s *StatsAggregator) RequestEnd(status int, bytes int64, elapsed time.Duration) {
	s.mu.Lock()
	s.stats.TotalRequests++
	s.stats.BytesTransferred += bytes
	bucketStatus(&s.stats, status)

	s.stats.ActiveConnections--
	if s.stats.ActiveConnections < 0 {
		s.stats.ActiveConnections = 0
	}

	elapsedSec := elapsed.Seconds()
	if elapsedSec > 0 {
		s.stats.TimedRequests++
		s.stats.TotalResponseTimeSec += elapsedSec
	}
	s.mu.Unlock()

	s.metrics.requestsTotal.WithLabelValues(statusLabel(status)).Inc()
	s.metrics.bytesTransferred.Add(float64(bytes))
	s.metrics.activeConnections.Dec()
	if elapsedSec > 0 {
		s.metrics.responseTimeSeconds.Observe(elapsedSec)
	}
}

// RecordRejected accounts a master-side 503 (queue-full admission
// rejection) that never passed through RequestStart/RequestEnd.
// ActiveConnections must NOT be touched here: a rejected connection was
// never admitted, so there is nothing to decrement.
func (s *StatsAggregator) RecordRejected(bytes int64) {
	s.mu.Lock()
	s.stats.TotalRequests++
	s.stats.BytesTransferred += bytes
	s.stats.Status503++
	s.mu.Unlock()

	s.metrics.requestsTotal.WithLabelValues(statusLabel(503)).Inc()
	s.metrics.bytesTransferred.Add(float64(bytes))
}

// CacheAccess records one cache lookup, and a hit if hit is true.
func (s *StatsAggregator) CacheAccess(hit bool) {
	s.mu.Lock()
	s.stats.CacheLookups++
	if hit {
		s.stats.CacheHits++
	}
	s.mu.Unlock()

	s.metrics.cacheLookups.Inc()
	if hit {
		s.metrics.cacheHits.Inc()
	}
}

// Snapshot copies the counters under the lock.
func (s *StatsAggregator) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func bucketStatus(st *Stats, status int) {
	switch status {
	case 200:
		st.Status200++
	case 206:
		st.Status206++
	case 400:
		st.Status400++
	case 404:
		st.Status404++
	case 405:
		st.Status405++
	case 416:
		st.Status416++
	case 500:
		st.Status500++
	case 503:
		st.Status503++
	default:
		st.StatusOther++
	}
}

func statusLabel(status int) string {
	switch status {
	case 200, 206, 400, 404, 405, 416, 500, 503:
		return strconv.Itoa(status)
	default:
		return "other"
	}
}

// MetricsHandler serves this aggregator's Prometheus registry, mounted by
// the server on its separate debug metrics listener (see server.go).
func (s *StatsAggregator) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{})
}

// CacheHitRate computes hits/max(1,lookups) — the documented fix for
// a hardcoded-0% bug in the reference implementation this replaces.
func (st Stats) CacheHitRate() float64 {
	lookups := st.CacheLookups
	if lookups < 1 {
		lookups = 1
	}
	return float64(st.CacheHits) / float64(lookups)
}

// PrintReport logs the statistics report (nine value lines between
// banner rules). The Acceptor calls it every 30s and Server.Shutdown
// calls it once at shutdown.
func (s *StatsAggregator) PrintReport() {
	st := s.Snapshot()
	uptime := time.Since(s.startedAt)

	avgMs := 0.0
	if st.TimedRequests > 0 {
		avgMs = (st.TotalResponseTimeSec / float64(st.TimedRequests)) * 1000.0
	}

	successful2xx := st.Status200 + st.Status206
	client4xx := st.Status400 + st.Status404 + st.Status405 + st.Status416
	server5xx := st.Status500 + st.Status503

	log.Info("========================================")
	log.Info("SERVER STATISTICS")
	log.Info("========================================")
	log.Info("Uptime: %.0f seconds", uptime.Seconds())
	log.Info("Total Requests: %d", st.TotalRequests)
	log.Info("Successful (2xx): %d", successful2xx)
	log.Info("Client Errors (4xx): %d", client4xx)
	log.Info("Server Errors (5xx): %d", server5xx)
	log.Info("Bytes Transferred: %d (%s)", st.BytesTransferred, humanize.Bytes(uint64(st.BytesTransferred)))
	log.Info("Average Response Time: %.1f ms", avgMs)
	log.Info("Active Connections: %d", st.ActiveConnections)
	log.Info("Cache Hit Rate: %.1f%%", st.CacheHitRate()*100.0)
	log.Info("========================================")
}
