package main

import (
	"fmt"
	"net"
	"time"

	"github.com/AdguardTeam/golibs/log"
)

// listenBacklog matches the original master.c's listen(sockfd, 128).
const listenBacklog = 128

// statsPrintInterval is how often the Acceptor prints the stats report.
const statsPrintInterval = 30 * time.Second

// Acceptor owns the listening socket, runs the accept loop, admits
// connections into the ConnectionQueue, and periodically prints stats.
type Acceptor struct {
	listener *net.TCPListener
	queue    *ConnectionQueue
	stats    *StatsAggregator
	shutdown *shutdownSignal
}

// NewAcceptor binds and listens on 0.0.0.0:port with SO_REUSEADDR. Go's
// net package always sets SO_REUSEADDR on TCP listeners and takes the
// listen backlog from the system's somaxconn setting, so the backlog is
// not 128: net.ListenTCP has no backlog parameter, and listenBacklog
// only records the original C value without being passed anywhere.
func NewAcceptor(port int, queue *ConnectionQueue, stats *StatsAggregator, shutdown *shutdownSignal) (*Acceptor, error) {
	addr := &net.TCPAddr{IP: net.IPv4zero, Port: port}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on port %d: %w", port, err)
	}
	return &Acceptor{listener: ln, queue: queue, stats: stats, shutdown: shutdown}, nil
}

// Run executes the accept loop: on accept success, admit into the
// queue (rejecting with 503 when full); periodically, between accepts,
// print the stats report; exit when shutdown is signaled.
// acceptPollInterval bounds how long Accept blocks before the loop
// rechecks shutdown/stats-print timing, standing in for the original's
// SO_RCVTIMEO-on-the-listener trick.
func (a *Acceptor) Run(acceptPollInterval time.Duration) {
	lastPrint := time.Now()

	for {
		if a.shutdown.isSet() {
			return
		}

		_ = a.listener.SetDeadline(time.Now().Add(acceptPollInterval))
		conn, err := a.listener.Accept()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				a.maybePrintStats(&lastPrint)
				continue
			}
			if a.shutdown.isSet() {
				return
			}
			log.Error("accept failed: %v", err)
			continue
		}

		if !a.queue.TryEnqueue(conn) {
			a.rejectOverflow(conn)
		}

		a.maybePrintStats(&lastPrint)
	}
}

func (a *Acceptor) maybePrintStats(lastPrint *time.Time) {
	if time.Since(*lastPrint) >= statsPrintInterval {
		a.stats.PrintReport()
		*lastPrint = time.Now()
	}
}

// rejectOverflow sends a 503 body, closes the socket, and records the
// rejection in Stats without ever touching ActiveConnections: a
// rejected connection was never admitted into a worker's care.
func (a *Acceptor) rejectOverflow(conn net.Conn) {
	defer conn.Close()

	body := []byte("<html><body><h1>503 Service Unavailable</h1>" +
		"<p>Server queue is full, please try again later.</p></body></html>")
	header := responseHeader(503, "text/html", int64(len(body)), false, "")

	_, _ = conn.Write(header)
	_, _ = conn.Write(body)

	a.stats.RecordRejected(int64(len(body)))
}

// Close closes the listening socket.
func (a *Acceptor) Close() error {
	return a.listener.Close()
}
