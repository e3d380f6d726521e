package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	if c.Port != defaultPort {
		t.Fatalf("Port = %d, want %d", c.Port, defaultPort)
	}
	if c.MetricsPort != defaultMetricsPort {
		t.Fatalf("MetricsPort = %d, want %d", c.MetricsPort, defaultMetricsPort)
	}
	if c.NumWorkerThreads() != 1 {
		t.Fatalf("NumWorkerThreads() = %d, want 1", c.NumWorkerThreads())
	}
	if c.CacheMaxBytes() != defaultCacheSizeMB*1024*1024 {
		t.Fatalf("CacheMaxBytes() = %d, want %d", c.CacheMaxBytes(), defaultCacheSizeMB*1024*1024)
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "server.conf")
	contents := "# comment\nPORT=9090\n\nDOCUMENT_ROOT=/srv/www\nMAX_QUEUE_SIZE=500\nUNKNOWN_KEY=ignored\n"
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c := DefaultConfig()
	if err := LoadConfigFile(path, &c); err != nil {
		t.Fatalf("LoadConfigFile() error = %v", err)
	}

	if c.Port != 9090 {
		t.Fatalf("Port = %d, want 9090", c.Port)
	}
	if c.DocumentRoot != "/srv/www" {
		t.Fatalf("DocumentRoot = %q, want /srv/www", c.DocumentRoot)
	}
	if c.MaxQueueSize != MaxQueueCapacity {
		t.Fatalf("MaxQueueSize = %d, want clamped to %d", c.MaxQueueSize, MaxQueueCapacity)
	}
}

func TestLoadConfigFile_MissingFile(t *testing.T) {
	c := DefaultConfig()
	if err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.conf"), &c); err == nil {
		t.Fatalf("LoadConfigFile() on a missing file returned nil error")
	}
}

func TestConfig_ApplyEnv(t *testing.T) {
	t.Setenv("PORT", "8888")
	t.Setenv("VERBOSE", "true")

	c := DefaultConfig()
	if err := c.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if c.Port != 8888 {
		t.Fatalf("Port = %d, want 8888", c.Port)
	}
	if !c.Verbose {
		t.Fatalf("Verbose = false, want true")
	}
}

func TestConfig_NormalizeClampsMaxQueueSize(t *testing.T) {
	c := Config{MaxQueueSize: MaxQueueCapacity * 10}
	c.normalize()
	if c.MaxQueueSize != MaxQueueCapacity {
		t.Fatalf("MaxQueueSize = %d after normalize, want %d", c.MaxQueueSize, MaxQueueCapacity)
	}
}

func TestConfig_NormalizeFillsZeroValues(t *testing.T) {
	var c Config
	c.normalize()

	if c.Port != defaultPort || c.NumWorkers != defaultNumWorkers || c.DocumentRoot != defaultDocumentRoot {
		t.Fatalf("normalize() on zero Config = %+v, want defaults filled in", c)
	}
	if c.RecvTimeout().Seconds() != defaultTimeoutSeconds {
		t.Fatalf("RecvTimeout() = %v, want %ds", c.RecvTimeout(), defaultTimeoutSeconds)
	}
}
