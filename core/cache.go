package core

import (
	"strings"
	"sync"
	"time"

	"github.com/ebogdum/davgate/metadata"
	"github.com/ebogdum/davgate/metrics"
)

// CacheEntry represents a cached stat result with expiration
type CacheEntry struct {
	Metadata  *metadata.Metadata
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired
func (e *CacheEntry) IsExpired(now time.Time) bool {
	return now.After(e.ExpiresAt)
}

// StatCache holds short-lived stat results per identity. PROPFIND walks stat
// the same names repeatedly; the cache keeps those off the backend.
// Entries are keyed by identity and path, so users never share results.
type StatCache struct {
	cache    map[cacheKey]*CacheEntry
	mu       sync.RWMutex
	ttl      time.Duration
	maxSize  int
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewStatCache creates a cache with the given TTL and size bound. A zero TTL
// disables caching; a positive TTL starts a cleanup goroutine that runs
// until Stop.
func NewStatCache(ttl time.Duration, maxSize int) *StatCache {
	c := &StatCache{
		cache:    make(map[cacheKey]*CacheEntry),
		ttl:      ttl,
		maxSize:  maxSize,
		stopChan: make(chan struct{}),
	}
	if c.enabled() {
		go c.cleanupExpiredEntries(cleanupInterval(ttl))
	}
	return c
}

func (c *StatCache) enabled() bool {
	return c != nil && c.ttl > 0 && c.maxSize > 0
}

func cleanupInterval(ttl time.Duration) time.Duration {
	if ttl < time.Second {
		return time.Second
	}
	if ttl > time.Minute {
		return time.Minute
	}
	return ttl
}

// cacheKey keeps the path apart from the identity, which may itself
// contain separators.
type cacheKey struct {
	identity string
	name     string
}

// Get returns the cached stat for name as seen by identity.
func (c *StatCache) Get(identity, name string) (*metadata.Metadata, bool) {
	if !c.enabled() {
		return nil, false
	}

	c.mu.RLock()
	entry, exists := c.cache[cacheKey{identity: identity, name: name}]
	c.mu.RUnlock()

	if !exists || entry.IsExpired(time.Now()) {
		metrics.StatCacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.StatCacheLookupsTotal.WithLabelValues("hit").Inc()
	return entry.Metadata, true
}

// Set stores the stat for name as seen by identity.
func (c *StatCache) Set(identity, name string, md *metadata.Metadata) {
	if !c.enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{identity: identity, name: name}
	if _, exists := c.cache[key]; !exists && len(c.cache) >= c.maxSize {
		c.evictOneEntry()
	}
	c.cache[key] = &CacheEntry{
		Metadata:  md,
		ExpiresAt: time.Now().Add(c.ttl),
	}
}

// Invalidate drops name, everything below it and its parent collection for
// every identity. Another identity may share the same backend namespace.
func (c *StatCache) Invalidate(name, parent string) {
	if !c.enabled() {
		return
	}

	below := strings.TrimSuffix(name, "/") + "/"
	c.mu.Lock()
	defer c.mu.Unlock()

	for key := range c.cache {
		cached := key.name
		if cached == name || cached == parent || strings.HasPrefix(cached, below) {
			delete(c.cache, key)
		}
	}
}

// Len reports the number of stored entries, expired ones included.
func (c *StatCache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}

// Stop ends the cleanup goroutine.
func (c *StatCache) Stop() {
	if c == nil {
		return
	}
	c.stopOnce.Do(func() { close(c.stopChan) })
}

// evictOneEntry removes one entry to make space (caller must hold lock)
func (c *StatCache) evictOneEntry() {
	now := time.Now()
	var (
		oldestKey cacheKey
		oldest    time.Time
		found     bool
	)
	for key, entry := range c.cache {
		if entry.IsExpired(now) {
			delete(c.cache, key)
			return
		}
		if !found || entry.ExpiresAt.Before(oldest) {
			oldestKey, oldest, found = key, entry.ExpiresAt, true
		}
	}
	if found {
		delete(c.cache, oldestKey)
	}
}

func (c *StatCache) cleanupExpiredEntries(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performCleanup()
		case <-c.stopChan:
			return
		}
	}
}

func (c *StatCache) performCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, entry := range c.cache {
		if entry.IsExpired(now) {
			delete(c.cache, key)
		}
	}
}
