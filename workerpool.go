package main

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
)

// recvBufferSize is the request-header read buffer.
const recvBufferSize = 8 * 1024

// WorkerPool runs N identical workers, each looping
// dequeue -> handle -> loop.
type WorkerPool struct {
	n      int
	queue  *ConnectionQueue
	cache  *FileCache
	log    *AccessLog
	stats  *StatsAggregator
	root   string
	timeout time.Duration

	wg sync.WaitGroup
}

// NewWorkerPool wires the shared components a worker needs: the queue
// to consume from, the cache and access log, the stats aggregator, the
// document root to resolve paths against, and the per-connection
// receive timeout.
func NewWorkerPool(n int, queue *ConnectionQueue, cache *FileCache, accessLog *AccessLog, stats *StatsAggregator, documentRoot string, timeout time.Duration) *WorkerPool {
	return &WorkerPool{
		n:       n,
		queue:   queue,
		cache:   cache,
		log:     accessLog,
		stats:   stats,
		root:    documentRoot,
		timeout: timeout,
	}
}

// Start launches the N worker goroutines.
func (p *WorkerPool) Start() {
	for i := 0; i < p.n; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker goroutine has exited (post-shutdown).
func (p *WorkerPool) Wait() {
	p.wg.Wait()
}

func (p *WorkerPool) run(id int) {
	defer p.wg.Done()
	for {
		conn, ok := p.queue.Dequeue()
		if !ok {
			return // shutdown: queue closed and drained
		}
		p.handleConnection(conn)
	}
}

// handleConnection runs the full per-connection lifecycle: parse ->
// resolve -> serve -> log -> stats, looping while keep-alive holds.
func (p *WorkerPool) handleConnection(conn net.Conn) {
	defer conn.Close()

	keepAlive := true
	clientAddr := remoteIP(conn)

	for keepAlive {
		_ = conn.SetReadDeadline(time.Now().Add(p.timeout))

		reqBuf, err := recvRequestHeaders(conn)
		if err != nil || len(reqBuf) == 0 {
			// Client closed or errored/timed out mid-read: terminate
			// without accounting a new request.
			return
		}

		start := time.Now()
		p.stats.RequestStart()

		status, bytesSent, method, path, version, keepAliveNext := p.serveOne(conn, reqBuf)
		keepAlive = keepAliveNext

		p.log.Log(clientAddr, method, path, version, status, bytesSent)
		p.stats.RequestEnd(status, bytesSent, time.Since(start))
	}
}

// serveOne handles exactly one request/response cycle and returns the
// fields needed for logging/stats plus whether the connection should
// stay open.
func (p *WorkerPool) serveOne(conn net.Conn, reqBuf []byte) (status int, bytesSent int64, method, path, version string, keepAlive bool) {
	req, err := ParseRequestLine(reqBuf)
	if err != nil {
		return p.respondError(conn, 400, "-", "-", "HTTP/1.1", false)
	}
	method, path, version = req.Method, req.Path, req.Version

	keepAlive = WantsKeepAlive(req, reqBuf)

	if req.Method != "GET" {
		return p.respondError(conn, 405, method, path, version, false)
	}

	fullPath, ok := resolvePath(p.root, req.Path)
	if !ok {
		return p.respondError(conn, 400, method, path, version, false)
	}

	data, fromCache, hit, err := p.cache.Get(fullPath)
	p.stats.CacheAccess(hit)
	if err != nil {
		return p.respondError(conn, 404, method, path, version, false)
	}
	body := ServedBody{Data: data, FromCache: fromCache}
	defer func() {
		if !body.FromCache {
			body.Release()
		}
	}()

	fileSize := uint64(len(body.Data))
	rng, rerr := ParseRangeHeader(reqBuf, fileSize)
	if rerr != nil {
		return p.respondError(conn, 416, method, path, version, false)
	}

	if rng.Present {
		n, werr := writeRangeResponse(conn, body.Data, rng, keepAlive)
		if werr != nil {
			log.Debug("write range response failed: %v", werr)
		}
		return 206, n, method, path, version, keepAlive
	}

	n, werr := writeFullResponse(conn, body.Data, keepAlive)
	if werr != nil {
		log.Debug("write full response failed: %v", werr)
	}
	return 200, n, method, path, version, keepAlive
}

// respondError writes one of the fixed HTML error bodies and returns the
// keepAlive it was given; every caller passes false, so the connection
// is closed after any error response.
func (p *WorkerPool) respondError(conn net.Conn, status int, method, path, version string, keepAlive bool) (int, int64, string, string, string, bool) {
	body := []byte(fmt.Sprintf("<html><body><h1>%d %s</h1></body></html>", status, StatusText(status)))
	header := responseHeader(status, "text/html", int64(len(body)), keepAlive, "")
	_, _ = conn.Write(header)
	_, _ = conn.Write(body)
	return status, int64(len(body)), method, path, version, keepAlive
}

// writeFullResponse sends a 200 OK with the entire body.
func writeFullResponse(conn net.Conn, data []byte, keepAlive bool) (int64, error) {
	header := responseHeader(200, "application/octet-stream", int64(len(data)), keepAlive, "")
	if _, err := conn.Write(header); err != nil {
		return 0, err
	}
	if len(data) == 0 {
		return 0, nil
	}
	n, err := conn.Write(data)
	return int64(n), err
}

// writeRangeResponse sends a 206 Partial Content with the sliced bytes.
func writeRangeResponse(conn net.Conn, data []byte, rng RangeSpec, keepAlive bool) (int64, error) {
	slice := data[int(rng.Start) : int(rng.End)+1]
	contentRange := fmt.Sprintf("bytes %d-%d/%d", rng.Start, rng.End, len(data))
	header := responseHeader(206, "application/octet-stream", int64(len(slice)), keepAlive, contentRange)
	if _, err := conn.Write(header); err != nil {
		return 0, err
	}
	n, err := conn.Write(slice)
	return int64(n), err
}

// recvRequestHeaders reads from conn into an 8 KiB buffer until CRLF
// CRLF is seen or the buffer fills. A read of zero
// bytes or an error returns what has been read so far plus an error
// (io.EOF for a zero-byte read); the caller treats either as
// "terminate the connection".
func recvRequestHeaders(conn net.Conn) ([]byte, error) {
	buf := make([]byte, recvBufferSize)
	total := 0

	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		if n > 0 {
			total += n
			if bytes.Contains(buf[:total], []byte("\r\n\r\n")) {
				return buf[:total], nil
			}
		}
		if err != nil {
			if total == 0 {
				return nil, err
			}
			return buf[:total], err
		}
		if n == 0 {
			return buf[:total], io.EOF
		}
	}
	return buf[:total], nil
}

// resolvePath rejects any path containing "..", strips the leading "/",
// defaults an empty path to "index.html", and joins with the document
// root. A join that would produce an absolute escape is rejected as 400.
func resolvePath(root, requestPath string) (string, bool) {
	if strings.Contains(requestPath, "..") {
		return "", false
	}

	sub := strings.TrimPrefix(requestPath, "/")
	if sub == "" {
		sub = "index.html"
	}

	full := filepath.Join(root, sub)
	// filepath.Join cleans ".." segments away, but we already rejected
	// any literal ".." above; this second check guards against a clean
	// escaping the root via an absolute request path.
	rootClean := filepath.Clean(root)
	if full != rootClean && !strings.HasPrefix(full, rootClean+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}

func remoteIP(conn net.Conn) string {
	addr := conn.RemoteAddr()
	if addr == nil {
		return "127.0.0.1"
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

