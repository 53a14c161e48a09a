// Package filecache implements the file-content LRU cache used when a task
// embeds file contents into a prompt: re-reading the same path repeatedly
// across a layer of tasks is wasteful, so content is cached keyed by path
// and invalidated by modification time.
package filecache

import (
	"os"
	"sync"
)

// EnvSizeOverride names the environment variable that overrides the
// default cache size.
const EnvSizeOverride = "MEM_STDIO_FILE_CACHE_SIZE"

// DefaultMaxEntries is used when no override is configured.
const DefaultMaxEntries = 256

type entry struct {
	content []byte
	modTime int64
	seq     int64
}

// Cache is a bounded, mtime-invalidated file content cache.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	maxSize int
	seq     int64
}

// New constructs a Cache bounded to maxEntries (DefaultMaxEntries if <= 0).
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{entries: make(map[string]entry), maxSize: maxEntries}
}

// NewFromEnv builds a Cache sized from EnvSizeOverride, falling back to
// DefaultMaxEntries when unset or invalid.
func NewFromEnv() *Cache {
	size := DefaultMaxEntries
	if v := os.Getenv(EnvSizeOverride); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			size = n
		}
	}
	return New(size)
}

// Get returns the content at path, serving from cache when the file's
// modification time matches what was last cached.
func (c *Cache) Get(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	mtime := info.ModTime().UnixNano()

	c.mu.Lock()
	if e, ok := c.entries[path]; ok && e.modTime == mtime {
		c.seq++
		e.seq = c.seq
		c.entries[path] = e
		content := e.content
		c.mu.Unlock()
		return content, nil
	}
	c.mu.Unlock()

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.seq++
	c.entries[path] = entry{content: content, modTime: mtime, seq: c.seq}
	c.evictOverflow()
	c.mu.Unlock()
	return content, nil
}

func (c *Cache) evictOverflow() {
	for len(c.entries) > c.maxSize {
		var oldestKey string
		var oldestSeq int64 = -1
		for k, e := range c.entries {
			if oldestSeq == -1 || e.seq < oldestSeq {
				oldestSeq = e.seq
				oldestKey = k
			}
		}
		if oldestKey == "" {
			break
		}
		delete(c.entries, oldestKey)
	}
}

// Reset clears the cache; used between test cases and when MEM_STDIO_FILE_CACHE_SIZE
// is changed at runtime.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
	c.seq = 0
}

// Size returns the current number of cached entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func parsePositiveInt(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, os.ErrInvalid
		}
		n = n*10 + int(r-'0')
	}
	if n <= 0 {
		return 0, os.ErrInvalid
	}
	return n, nil
}
