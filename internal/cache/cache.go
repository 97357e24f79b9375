// Package cache provides best-effort memoization of reconstructed images and
// query results.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/allegro/bigcache/v3"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	ImageTTL         time.Duration
	QueryCacheSize   int
}

// Manager manages the image and query caches. A manager whose backend could
// not be constructed is disabled: every Get misses and every Set is a no-op,
// so callers always fall through to the authoritative store. The failure is
// detected once here, never re-probed per call.
type Manager struct {
	imageCache *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a cache manager. Backend construction failure downgrades
// to a disabled manager with a warning instead of failing startup.
func NewManager(cfg Config) *Manager {
	imageCacheConfig := bigcache.Config{
		Shards:             1024,
		LifeWindow:         cfg.ImageTTL,
		CleanWindow:        cfg.ImageTTL / 2,
		MaxEntriesInWindow: 100000,
		MaxEntrySize:       2 * 1024 * 1024, // one dense section image compressed
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}

	imageCache, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		log.Printf("image cache unavailable, serving without memoization: %v", err)
		return &Manager{}
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		log.Printf("query cache unavailable, serving without memoization: %v", err)
		imageCache.Close()
		return &Manager{}
	}

	return &Manager{
		imageCache: imageCache,
		queryCache: queryCache,
	}
}

// Disabled reports whether the manager degraded to no-op at construction.
func (m *Manager) Disabled() bool {
	return m.imageCache == nil
}

// GetImage retrieves a serialized image from cache.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	if m.imageCache == nil {
		return nil, false
	}
	data, err := m.imageCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetImage stores a serialized image in cache. Concurrent writers racing on
// the same key are fine: cached values are deterministic functions of it.
func (m *Manager) SetImage(key string, data []byte) {
	if m.imageCache == nil {
		return
	}
	m.imageCache.Set(key, data)
}

// Memoize returns the cached payload for key, or computes, stores, and
// returns it. Absence is never cached: a nil payload from compute is passed
// through without a cache write, so a transient failure cannot stick.
func (m *Manager) Memoize(key string, compute func() ([]byte, error)) ([]byte, error) {
	if data, ok := m.GetImage(key); ok {
		return data, nil
	}
	data, err := compute()
	if err != nil || data == nil {
		return data, err
	}
	m.SetImage(key, data)
	return data, nil
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	if m.queryCache == nil {
		return nil, false
	}
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	if m.queryCache == nil {
		return
	}
	m.queryCache.Add(key, data)
}

// Key builds a stable cache key from an operation name and its arguments.
// The key is a content hash, not an identity hash: identical inputs collide
// across process restarts and across worker processes. Arguments must render
// deterministically with %v (strings and numbers do).
func Key(op string, args ...any) string {
	h := sha256.New()
	h.Write([]byte(op))
	for _, a := range args {
		h.Write([]byte{0})
		fmt.Fprintf(h, "%v", a)
	}
	return op + ":" + hex.EncodeToString(h.Sum(nil))[:16]
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	if m.Disabled() {
		return map[string]interface{}{"disabled": true}
	}
	return map[string]interface{}{
		"image_cache_len": m.imageCache.Len(),
		"image_cache_cap": m.imageCache.Capacity(),
		"query_cache_len": m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	if m.imageCache == nil {
		return nil
	}
	return m.imageCache.Close()
}
