package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AdguardTeam/golibs/log"
	"github.com/caarlos0/env/v11"
	"github.com/dustin/go-humanize"
)

// Config holds every tunable the core subsystems consume. It is
// assembled in four layers, lowest precedence first: built-in defaults,
// the KEY=VALUE config file, environment variables, then CLI flags.
type Config struct {
	Port              int           `env:"PORT"`
	MetricsPort       int           `env:"METRICS_PORT"`
	NumWorkers        int           `env:"NUM_WORKERS"`
	ThreadsPerWorker  int           `env:"THREADS_PER_WORKER"`
	MaxQueueSize      int           `env:"MAX_QUEUE_SIZE"`
	DocumentRoot      string        `env:"DOCUMENT_ROOT"`
	LogFile           string        `env:"LOG_FILE"`
	CacheSizeMB       int           `env:"CACHE_SIZE_MB"`
	TimeoutSeconds    int           `env:"TIMEOUT_SECONDS"`
	Verbose           bool          `env:"VERBOSE"`
	recvTimeout       time.Duration // derived from TimeoutSeconds
}

const (
	defaultPort             = 8080
	defaultMetricsPort      = 9100
	defaultNumWorkers       = 1
	defaultThreadsPerWorker = 1
	defaultMaxQueueSize     = 100
	defaultDocumentRoot     = "www"
	defaultLogFile          = "access.log"
	defaultCacheSizeMB      = 10
	defaultTimeoutSeconds   = 30
)

// DefaultConfig returns the zero-value defaults from the
// original config.c (port 8080, 1x1 workers, "www" root, queue 100),
// plus the metrics listener port this rewrite adds.
func DefaultConfig() Config {
	c := Config{
		Port:             defaultPort,
		MetricsPort:      defaultMetricsPort,
		NumWorkers:       defaultNumWorkers,
		ThreadsPerWorker: defaultThreadsPerWorker,
		MaxQueueSize:     defaultMaxQueueSize,
		DocumentRoot:     defaultDocumentRoot,
		LogFile:          defaultLogFile,
		CacheSizeMB:      defaultCacheSizeMB,
		TimeoutSeconds:   defaultTimeoutSeconds,
	}
	c.normalize()
	return c
}

// LoadConfigFile parses the line-oriented KEY=VALUE format:
// '#' starts a comment, blank lines are ignored, unknown keys are
// skipped. Missing keys keep whatever the caller already had set
// (normally DefaultConfig's values).
func LoadConfigFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		applyConfigKey(c, key, value)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}
	c.normalize()
	return nil
}

func applyConfigKey(c *Config, key, value string) {
	switch key {
	case "PORT":
		if v, err := strconv.Atoi(value); err == nil {
			c.Port = v
		}
	case "METRICS_PORT":
		if v, err := strconv.Atoi(value); err == nil {
			c.MetricsPort = v
		}
	case "NUM_WORKERS":
		if v, err := strconv.Atoi(value); err == nil {
			c.NumWorkers = v
		}
	case "THREADS_PER_WORKER":
		if v, err := strconv.Atoi(value); err == nil {
			c.ThreadsPerWorker = v
		}
	case "MAX_QUEUE_SIZE":
		if v, err := strconv.Atoi(value); err == nil {
			c.MaxQueueSize = v
		}
	case "DOCUMENT_ROOT":
		c.DocumentRoot = value
	case "LOG_FILE":
		c.LogFile = value
	case "CACHE_SIZE_MB":
		if v, err := strconv.Atoi(value); err == nil {
			c.CacheSizeMB = v
		}
	case "TIMEOUT_SECONDS":
		if v, err := strconv.Atoi(value); err == nil {
			c.TimeoutSeconds = v
		}
	default:
		log.Debug("config: ignoring unknown key %q", key)
	}
}

// ApplyEnv overlays environment variables onto an already-loaded Config,
// layered the way environment-variable overlays usually are, but as an
// overlay rather than the sole source.
func (c *Config) ApplyEnv() error {
	if err := env.Parse(c); err != nil {
		return fmt.Errorf("parse env overrides: %w", err)
	}
	c.normalize()
	return nil
}

// normalize clamps/derives fields after any layer is applied: MAX_QUEUE_SIZE
// is clamped to MaxQueueCapacity, CacheSizeMB<=0 falls back to the
// default, and the derived receive timeout is recomputed.
func (c *Config) normalize() {
	if c.Port <= 0 {
		c.Port = defaultPort
	}
	if c.MetricsPort <= 0 {
		c.MetricsPort = defaultMetricsPort
	}
	if c.NumWorkers <= 0 {
		c.NumWorkers = defaultNumWorkers
	}
	if c.ThreadsPerWorker <= 0 {
		c.ThreadsPerWorker = defaultThreadsPerWorker
	}
	if c.MaxQueueSize <= 0 || c.MaxQueueSize > MaxQueueCapacity {
		c.MaxQueueSize = MaxQueueCapacity
	}
	if c.DocumentRoot == "" {
		c.DocumentRoot = defaultDocumentRoot
	}
	if c.LogFile == "" {
		c.LogFile = defaultLogFile
	}
	if c.CacheSizeMB <= 0 {
		c.CacheSizeMB = defaultCacheSizeMB
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = defaultTimeoutSeconds
	}
	c.recvTimeout = time.Duration(c.TimeoutSeconds) * time.Second
}

// CacheMaxBytes returns the cache capacity in bytes.
func (c *Config) CacheMaxBytes() int64 {
	return int64(c.CacheSizeMB) * 1024 * 1024
}

// RecvTimeout is the socket receive timeout applied by the acceptor and
// each worker connection.
func (c *Config) RecvTimeout() time.Duration {
	return c.recvTimeout
}

// NumWorkerThreads is N = num_workers * threads_per_worker.
func (c *Config) NumWorkerThreads() int {
	n := c.NumWorkers * c.ThreadsPerWorker
	if n <= 0 {
		return 1
	}
	return n
}

// Print logs the effective configuration, using go-humanize for the
// cache-size field the same way the teacher's Config.Print formats
// MaxSize/EntryMaxSize.
func (c *Config) Print() {
	log.Info("Config:")
	log.Info("  Port: %d", c.Port)
	log.Info("  MetricsPort: %d", c.MetricsPort)
	log.Info("  NumWorkers x ThreadsPerWorker: %d x %d (%d threads)", c.NumWorkers, c.ThreadsPerWorker, c.NumWorkerThreads())
	log.Info("  MaxQueueSize: %d", c.MaxQueueSize)
	log.Info("  DocumentRoot: %s", c.DocumentRoot)
	log.Info("  LogFile: %s", c.LogFile)
	log.Info("  CacheSize: %s", humanize.IBytes(uint64(c.CacheMaxBytes())))
	log.Info("  TimeoutSeconds: %d", c.TimeoutSeconds)
}
