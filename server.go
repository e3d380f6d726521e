package main

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/AdguardTeam/golibs/log"
)

// shutdownSignal is an atomic boolean carried in the Server context
// instead of as a package-level global, so nothing reaches for hidden
// process-wide state.
type shutdownSignal struct {
	flag atomic.Bool
}

func (s *shutdownSignal) isSet() bool { return s.flag.Load() }
func (s *shutdownSignal) set()        { s.flag.Store(true) }

// Server bundles every shared component the Acceptor and WorkerPool
// borrow: cache, access log, stats, connection queue, worker pool, and
// the shutdown flag. main owns this struct; no component reaches for
// package-level state.
type Server struct {
	config          Config
	cache           *FileCache
	log             *AccessLog
	stats           *StatsAggregator
	queue           *ConnectionQueue
	pool            *WorkerPool
	acceptor        *Acceptor
	metricsServer   *http.Server
	metricsListener net.Listener
	shutdown        shutdownSignal
}

// NewServer constructs every component from config but does not start
// accepting connections yet (call Run for that).
func NewServer(config Config) (*Server, error) {
	s := &Server{config: config}

	s.cache = NewFileCache(config.CacheMaxBytes())

	accessLog, err := NewAccessLog(config.LogFile)
	if err != nil {
		return nil, fmt.Errorf("init access log: %w", err)
	}
	s.log = accessLog

	s.stats = NewStatsAggregator()
	s.queue = NewConnectionQueue(config.MaxQueueSize)
	s.pool = NewWorkerPool(config.NumWorkerThreads(), s.queue, s.cache, s.log, s.stats, config.DocumentRoot, config.RecvTimeout())

	acceptor, err := NewAcceptor(config.Port, s.queue, s.stats, &s.shutdown)
	if err != nil {
		_ = s.log.Close()
		return nil, fmt.Errorf("init acceptor: %w", err)
	}
	s.acceptor = acceptor

	metricsListener, err := net.Listen("tcp", fmt.Sprintf(":%d", config.MetricsPort))
	if err != nil {
		_ = s.acceptor.Close()
		_ = s.log.Close()
		return nil, fmt.Errorf("init metrics listener: %w", err)
	}
	s.metricsListener = metricsListener
	s.metricsServer = newMetricsServer(s.stats.MetricsHandler())

	return s, nil
}

// Run starts the worker pool, the debug metrics listener, and the accept
// loop, and blocks until Shutdown is called (or the accept loop exits for
// another reason). acceptPollInterval is how often the accept loop wakes
// to recheck the shutdown flag and stats-print timer; it defaults to the
// configured receive timeout, mirroring SO_RCVTIMEO on the original's
// listener.
func (s *Server) Run() {
	s.pool.Start()

	go func() {
		if err := s.metricsServer.Serve(s.metricsListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server: %v", err)
		}
	}()

	pollInterval := s.config.RecvTimeout()
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	s.acceptor.Run(pollInterval)
}

// Shutdown initiates graceful shutdown: set the flag,
// close the listener so Accept unblocks, wake every blocked worker via
// the queue, wait for them to drain, close the metrics server, print the
// final stats report, then close the access log.
func (s *Server) Shutdown() {
	s.shutdown.set()

	if err := s.acceptor.Close(); err != nil {
		log.Error("closing listener: %v", err)
	}
	s.queue.Close()
	s.pool.Wait()

	if err := s.metricsServer.Close(); err != nil {
		log.Error("closing metrics server: %v", err)
	}

	s.stats.PrintReport()

	if err := s.log.Close(); err != nil {
		log.Error("closing access log: %v", err)
	}
}
