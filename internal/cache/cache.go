// Package cache implements C2: a two-tier cache sitting in front of the
// vector/graph stores and the hybrid retriever. Tier 1 is an in-process
// LRU bounded by entry count; tier 2 is an optional remote KV (Redis).
// Write strategy (WriteThrough/WriteBack/WriteAround) is selected per
// instance; tier-2 failures never block the caller, they degrade to
// tier-1-only and bump a counter.
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"sync"
	"time"

	"conhub-ingest/internal/deployment"
	"conhub-ingest/internal/logging"
)

// Strategy selects how writes propagate across the two tiers.
type Strategy string

const (
	WriteThrough Strategy = "write_through" // both tiers, synchronously
	WriteBack    Strategy = "write_back"    // tier 1 immediate, tier 2 deferred
	WriteAround  Strategy = "write_around"  // tier 2 only, skip tier 1 on write
)

// Entry is one cached value plus the bookkeeping fields the spec requires.
type Entry struct {
	Data         []byte
	CreatedAt    time.Time
	LastAccessed time.Time
	AccessCount  int64
	TTLSeconds   int
	Compressed   bool
	Encrypted    bool
}

func (e *Entry) expired(now time.Time) bool {
	if e.TTLSeconds <= 0 {
		return false
	}
	return now.After(e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second))
}

// Config configures a Cache instance.
type Config struct {
	Strategy            Strategy
	Tier1MaxEntries     int
	CompressThreshold   int           // payloads larger than this (bytes) are gzipped on write
	WriteBackQueueSize  int           // bounded channel capacity for the WriteBack batch writer
	WriteBackFlushEvery time.Duration // flush interval for the WriteBack batch writer
	WriteBackFlushBatch int           // flush when this many writes have queued, whichever comes first
}

// DefaultConfig returns sane defaults matching the teacher's cache
// defaults (15 minute TTL callers set explicitly, LRU on count).
func DefaultConfig() Config {
	return Config{
		Strategy:            WriteThrough,
		Tier1MaxEntries:     10000,
		CompressThreshold:   4096,
		WriteBackQueueSize:  1024,
		WriteBackFlushEvery: 2 * time.Second,
		WriteBackFlushBatch: 64,
	}
}

// Tier2 abstracts the optional remote KV. A nil Tier2 means tier 2 is
// disabled and the cache runs tier-1-only.
type Tier2 interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Stats tracks cache hit/miss/degradation counters.
type Stats struct {
	mu               sync.Mutex
	Tier1Hits        int64
	Tier2Hits        int64
	Misses           int64
	Tier2Errors      int64
	Evictions        int64
	WriteBackDropped int64
}

func (s *Stats) incr(p *int64) {
	s.mu.Lock()
	*p++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Tier1Hits: s.Tier1Hits, Tier2Hits: s.Tier2Hits, Misses: s.Misses,
		Tier2Errors: s.Tier2Errors, Evictions: s.Evictions, WriteBackDropped: s.WriteBackDropped,
	}
}

// Cache is the two-tier admission-and-eviction cache C2 describes.
type Cache struct {
	cfg    Config
	tier1  *lruTier
	tier2  Tier2
	stats  *Stats
	logger logging.Logger

	writeBack *batchWriter
}

// New builds a Cache. tier2 may be nil (no remote KV configured).
func New(cfg Config, tier2 Tier2, logger logging.Logger) *Cache {
	if cfg.Tier1MaxEntries <= 0 {
		cfg.Tier1MaxEntries = 10000
	}
	stats := &Stats{}
	c := &Cache{
		cfg:    cfg,
		tier1:  newLRUTier(cfg.Tier1MaxEntries, stats),
		tier2:  tier2,
		stats:  stats,
		logger: logger,
	}
	if cfg.Strategy == WriteBack && tier2 != nil {
		c.writeBack = newBatchWriter(tier2, cfg.WriteBackQueueSize, cfg.WriteBackFlushEvery, cfg.WriteBackFlushBatch, stats, logger)
	}
	return c
}

// Get tries tier 1, then tier 2 on a miss; a tier-2 hit is promoted back
// into tier 1. TTL is checked on every read regardless of which tier
// served it.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	now := time.Now()
	if e, ok := c.tier1.get(key, now); ok {
		c.stats.incr(&c.stats.Tier1Hits)
		return e, true
	}

	if c.tier2 == nil {
		c.stats.incr(&c.stats.Misses)
		return Entry{}, false
	}

	raw, found, err := c.tier2.Get(ctx, key)
	if err != nil {
		c.stats.incr(&c.stats.Tier2Errors)
		deployment.Metrics().IncrementCounter("cache.tier2_get_errors")
		if c.logger != nil {
			c.logger.Warn("cache tier2 get degraded to tier1-only", "key", key, "error", err)
		}
		c.stats.incr(&c.stats.Misses)
		return Entry{}, false
	}
	if !found {
		c.stats.incr(&c.stats.Misses)
		return Entry{}, false
	}

	entry := decodeEntry(raw)
	if entry.expired(now) {
		_ = c.tier2.Delete(ctx, key)
		c.stats.incr(&c.stats.Misses)
		return Entry{}, false
	}
	c.stats.incr(&c.stats.Tier2Hits)
	entry.LastAccessed = now
	entry.AccessCount++
	c.tier1.set(key, entry)
	return entry, true
}

// Set writes a value under the configured strategy. data above
// CompressThreshold is gzip-compressed before storage (admission policy);
// Entry.Compressed records whether that happened so Get-side callers can
// decompress transparently.
func (c *Cache) Set(ctx context.Context, key string, data []byte, ttlSeconds int) {
	now := time.Now()
	entry := Entry{Data: data, CreatedAt: now, LastAccessed: now, AccessCount: 1, TTLSeconds: ttlSeconds}
	if c.cfg.CompressThreshold > 0 && len(data) > c.cfg.CompressThreshold {
		if compressed, ok := gzipCompress(data); ok {
			entry.Data = compressed
			entry.Compressed = true
		}
	}

	switch c.cfg.Strategy {
	case WriteAround:
		c.writeTier2(ctx, key, entry)
	case WriteBack:
		c.tier1.set(key, entry)
		if c.writeBack != nil {
			c.writeBack.enqueue(key, entry)
		}
	default: // WriteThrough
		c.tier1.set(key, entry)
		c.writeTier2(ctx, key, entry)
	}
}

func (c *Cache) writeTier2(ctx context.Context, key string, entry Entry) {
	if c.tier2 == nil {
		return
	}
	ttl := time.Duration(entry.TTLSeconds) * time.Second
	if err := c.tier2.Set(ctx, key, encodeEntry(entry), ttl); err != nil {
		c.stats.incr(&c.stats.Tier2Errors)
		deployment.Metrics().IncrementCounter("cache.tier2_set_errors")
		if c.logger != nil {
			c.logger.Warn("cache tier2 set degraded to tier1-only", "key", key, "error", err)
		}
	}
}

// Delete removes key from both tiers. Suppressed after cancellation by
// callers that check ctx.Err() before calling Delete — the cache itself
// does not inspect ctx for cancellation on delete.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.tier1.delete(key)
	if c.tier2 != nil {
		if err := c.tier2.Delete(ctx, key); err != nil {
			c.stats.incr(&c.stats.Tier2Errors)
			deployment.Metrics().IncrementCounter("cache.tier2_delete_errors")
		}
	}
}

// Stats returns a point-in-time snapshot of the cache counters.
func (c *Cache) Stats() Stats { return c.stats.Snapshot() }

// Close stops the write-back batch writer (if any) and the tier-2 client.
func (c *Cache) Close() error {
	if c.writeBack != nil {
		c.writeBack.stop()
	}
	if c.tier2 != nil {
		return c.tier2.Close()
	}
	return nil
}

func gzipCompress(data []byte) ([]byte, bool) {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, false
	}
	if err := w.Close(); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}
