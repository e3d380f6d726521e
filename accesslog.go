package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/dustin/go-humanize"
)

// accessLogBufferSize and accessLogRotateSize match the original
// logger.c's LOG_BUFFER_SIZE (8 KiB) and LOG_ROTATE_SIZE (10 MiB).
const (
	accessLogBufferSize = 8 * 1024
	accessLogRotateSize = 10 * 1024 * 1024
)

// AccessLog is a buffered, rotating, append-only request log. One mutex
// is held across format+append+maybe-flush, matching
// logger.c's single log_mutex discipline.
type AccessLog struct {
	mu sync.Mutex

	path     string
	file     *os.File
	buf      []byte
	fileSize int64
}

// NewAccessLog opens (or creates) the log file at path in append mode
// and determines its current size, per logger_init.
func NewAccessLog(path string) (*AccessLog, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open access log %q: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat access log %q: %w", path, err)
	}
	return &AccessLog{
		path:     path,
		file:     f,
		buf:      make([]byte, 0, accessLogBufferSize),
		fileSize: info.Size(),
	}, nil
}

// Log appends one Apache-common-log line:
//
//	IP - - [DD/Mon/YYYY:HH:MM:SS +ZZZZ] "METHOD PATH VERSION" STATUS BYTES
func (l *AccessLog) Log(clientAddr, method, path, version string, status int, bytes int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := time.Now().Format("02/Jan/2006:15:04:05 -0700")
	line := fmt.Sprintf("%s - - [%s] \"%s %s %s\" %d %d\n",
		clientAddr, ts, method, path, version, status, bytes)
	entry := []byte(line)

	// Rotation trigger: file_size + buffered_bytes + next_line > 10 MiB.
	if l.fileSize+int64(len(l.buf))+int64(len(entry)) > accessLogRotateSize {
		l.rotate()
	}

	if len(entry) > cap(l.buf) {
		// A line larger than the buffer is written directly after flushing.
		l.flush()
		l.writeDirect(entry)
		return
	}

	if len(l.buf)+len(entry) > cap(l.buf) {
		l.flush()
	}
	l.buf = append(l.buf, entry...)

	if len(l.buf) >= cap(l.buf)/2 {
		l.flush()
	}
}

// flush writes the in-memory buffer to disk. Caller must hold l.mu. A
// write failure drops the buffered bytes and logs the error; serving
// continues rather than blocking requests on a broken log file.
func (l *AccessLog) flush() {
	if len(l.buf) == 0 || l.file == nil {
		return
	}
	n, err := l.file.Write(l.buf)
	if err != nil {
		log.Error("access log write failed, dropping %d buffered bytes: %v", len(l.buf), err)
	} else {
		l.fileSize += int64(n)
	}
	l.buf = l.buf[:0]
}

func (l *AccessLog) writeDirect(entry []byte) {
	if l.file == nil {
		return
	}
	n, err := l.file.Write(entry)
	if err != nil {
		log.Error("access log write failed, dropping %d bytes: %v", len(entry), err)
		return
	}
	l.fileSize += int64(n)
}

// rotate flushes, closes, renames the current file with a local-time
// suffix, and opens a fresh file at the same path.
// Caller must hold l.mu.
func (l *AccessLog) rotate() {
	l.flush()
	if err := l.file.Close(); err != nil {
		log.Error("access log close during rotation failed: %v", err)
	}

	suffix := time.Now().Format("2006-01-02-15-04-05")
	rotatedPath := fmt.Sprintf("%s.%s", l.path, suffix)
	if err := os.Rename(l.path, rotatedPath); err != nil {
		log.Error("access log rotation rename failed: %v", err)
	} else {
		log.Info("access log rotated: %s -> %s (%s)", l.path, rotatedPath, humanize.Bytes(uint64(l.fileSize)))
	}

	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Error("access log reopen after rotation failed: %v", err)
		l.file = nil
		l.fileSize = 0
		return
	}
	l.file = f
	l.fileSize = 0
}

// Close flushes and closes the log file, for use at shutdown.
func (l *AccessLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.flush()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
