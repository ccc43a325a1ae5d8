// Package cache provides a JSON-file-backed key/value cache with an
// in-memory first tier and an optional Redis second tier. Instances are
// created explicitly and injected into the components that need them;
// there is no package-level cache state.
//
// Persistence model: the whole map is read from disk on Load and
// rewritten on Save. A cache file is owned by a single process; no
// cross-process locking is attempted.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skillgraph/skillgraph/internal/metrics"
)

// redisTTL bounds how long L2 entries outlive the process.
const redisTTL = 24 * time.Hour

// FileCache maps string keys to values of type T.
type FileCache[T any] struct {
	name string // metrics label and Redis key prefix
	path string

	mu      sync.RWMutex
	entries map[string]T

	rdb *redis.Client // nil when L2 is disabled
}

// New creates a cache persisted at path. name labels the cache in
// metrics and prefixes its Redis keys.
func New[T any](name, path string) *FileCache[T] {
	return &FileCache[T]{
		name:    name,
		path:    path,
		entries: make(map[string]T),
	}
}

// WithRedis attaches a Redis client as a second tier shared across
// restarts. The client is pinged lazily on first use.
func (c *FileCache[T]) WithRedis(rdb *redis.Client) *FileCache[T] {
	c.rdb = rdb
	return c
}

// Key builds a deterministic cache key by hashing the given parts.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Load reads the cache file into memory. A missing file is an empty
// cache, not an error.
func (c *FileCache[T]) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cache %s: %w", c.name, err)
	}

	entries := make(map[string]T)
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("decode cache %s: %w", c.name, err)
	}

	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	slog.Debug("cache loaded", slog.String("cache", c.name), slog.Int("entries", len(entries)))
	return nil
}

// Save rewrites the whole cache file. The write goes through a temp
// file and rename so a crash never leaves a truncated cache.
func (c *FileCache[T]) Save() error {
	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", c.name, err)
	}

	if dir := filepath.Dir(c.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create cache dir: %w", err)
		}
	}
	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write cache %s: %w", c.name, err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("rename cache %s: %w", c.name, err)
	}
	return nil
}

// Get returns the cached value for key, consulting L1 then Redis. A
// Redis hit repopulates L1.
func (c *FileCache[T]) Get(ctx context.Context, key string) (T, bool) {
	c.mu.RLock()
	val, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		metrics.CacheHits.WithLabelValues(c.name).Inc()
		return val, true
	}

	if c.rdb != nil {
		data, err := c.rdb.Get(ctx, c.redisKey(key)).Bytes()
		if err == nil {
			var out T
			if json.Unmarshal(data, &out) == nil {
				metrics.CacheHits.WithLabelValues(c.name).Inc()
				c.mu.Lock()
				c.entries[key] = out
				c.mu.Unlock()
				return out, true
			}
		}
	}

	metrics.CacheMisses.WithLabelValues(c.name).Inc()
	var zero T
	return zero, false
}

// Put stores a value in L1 and, when configured, Redis. L2 failures are
// logged and ignored.
func (c *FileCache[T]) Put(ctx context.Context, key string, val T) {
	c.mu.Lock()
	c.entries[key] = val
	c.mu.Unlock()

	if c.rdb != nil {
		data, err := json.Marshal(val)
		if err != nil {
			return
		}
		if err := c.rdb.Set(ctx, c.redisKey(key), data, redisTTL).Err(); err != nil {
			slog.Debug("cache L2 set failed", slog.String("cache", c.name), slog.Any("error", err))
		}
	}
}

// Len returns the number of in-memory entries.
func (c *FileCache[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *FileCache[T]) redisKey(key string) string {
	return "skillgraph:" + c.name + ":" + key
}
