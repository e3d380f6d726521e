package main

import (
	"container/list"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/AdguardTeam/golibs/log"
)

// MaxCacheableFileBytes is the per-entry size cap: files
// larger than this are served but never admitted to the cache.
const MaxCacheableFileBytes = 1024 * 1024 // 1 MiB

// cacheEntry is a cached file: the canonical path (key) and the owned
// byte buffer; it is stored as the Value of its LRU list element. The
// buffer is owned exclusively by the cache while the entry is live.
type cacheEntry struct {
	path string
	data []byte
}

// FileCache is a thread-safe, size-bounded LRU of file contents. Lookups
// take the shared lock; insertion and promotion take the exclusive lock.
// The two-phase miss algorithm (disk read outside any lock, re-check
// under the write lock) guarantees at-most-one insertion per path under
// concurrent misses, following the original cache.c and the
// container/list MRU/LRU shape used by bazel-remote's disk.SizedLRU.
type FileCache struct {
	mu         sync.RWMutex
	ll         *list.List // front = MRU, back = LRU
	index      map[string]*list.Element
	totalBytes int64
	maxBytes   int64
}

// NewFileCache creates a cache bounded at maxBytes total resident bytes.
func NewFileCache(maxBytes int64) *FileCache {
	return &FileCache{
		ll:       list.New(),
		index:    make(map[string]*list.Element),
		maxBytes: maxBytes,
	}
}

// Get implements the FileCache contract: it returns the
// file's bytes, whether they are cache-owned (from_cache), and whether
// the lookup was a cache hit. The returned slice must only be released
// by the caller when fromCache is false —
// callers should use ServedBody (see httpcodec.go) rather than this
// return tuple directly, so the ownership flag travels with the bytes.
func (c *FileCache) Get(path string) (data []byte, fromCache bool, wasHit bool, err error) {
	c.mu.RLock()
	if el, ok := c.index[path]; ok {
		c.mu.RUnlock()

		c.mu.Lock()
		// Re-check: another goroutine may have evicted it between the
		// RUnlock above and taking the write lock here.
		if el, ok := c.index[path]; ok {
			c.ll.MoveToFront(el)
			entry := el.Value.(*cacheEntry)
			c.mu.Unlock()
			return entry.data, true, true, nil
		}
		c.mu.Unlock()
		// Fell through to a genuine miss below.
	} else {
		c.mu.RUnlock()
	}

	buf, err := readFileFully(path)
	if err != nil {
		return nil, false, false, err
	}

	if int64(len(buf)) > MaxCacheableFileBytes {
		return buf, false, false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.index[path]; ok {
		// Someone else inserted it while we were reading from disk.
		c.ll.MoveToFront(el)
		entry := el.Value.(*cacheEntry)
		return entry.data, true, true, nil
	}

	c.evictToFit(int64(len(buf)))

	entry := &cacheEntry{path: path, data: buf}
	el := c.ll.PushFront(entry)
	c.index[path] = el
	c.totalBytes += int64(len(buf))

	return entry.data, true, false, nil
}

// evictToFit removes LRU-tail entries until there is room for size more
// bytes, or the cache is empty. Caller must hold the write lock.
func (c *FileCache) evictToFit(size int64) {
	for c.totalBytes+size > c.maxBytes {
		back := c.ll.Back()
		if back == nil {
			return
		}
		entry := back.Value.(*cacheEntry)
		c.ll.Remove(back)
		delete(c.index, entry.path)
		c.totalBytes -= int64(len(entry.data))
		log.Debug("cache EVICT: %s (%d bytes)", entry.path, len(entry.data))
	}
}

// TotalBytes reports current resident bytes, mostly for tests/metrics.
func (c *FileCache) TotalBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.totalBytes
}

// readFileFully reads a regular file entirely into memory, matching
// read_file_fully in the original cache.c: non-regular files (dirs,
// symlinks to non-regular targets, devices, ...) are rejected, and a
// zero-length file is a valid, cacheable empty buffer.
func readFileFully(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %q: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%q is not a regular file", path)
	}

	buf, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", path, err)
	}
	return buf, nil
}
