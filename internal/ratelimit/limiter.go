package ratelimit

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// RateLimitExceeded is returned by Check when the bucket has no tokens left.
type RateLimitExceeded struct {
	SourceType  string
	SourceID    string
	AvailableIn time.Duration
}

func (e *RateLimitExceeded) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s/%s, available in %s", e.SourceType, e.SourceID, e.AvailableIn)
}

// InBackoff is returned by Check when a prior 429 response put the bucket
// into a backoff window that has not yet elapsed.
type InBackoff struct {
	SourceType string
	SourceID   string
	Remaining  time.Duration
}

func (e *InBackoff) Error() string {
	return fmt.Sprintf("source %s/%s is in backoff, %s remaining", e.SourceType, e.SourceID, e.Remaining)
}

// bucket is the per-(source_type, source_id) token bucket state.
type bucket struct {
	mu sync.Mutex

	cfg BucketConfig

	tokens     float64
	lastRefill time.Time

	backoffUntil   time.Time
	consecutive429 int
}

func newBucket(cfg BucketConfig, now time.Time) *bucket {
	return &bucket{
		cfg:        cfg,
		tokens:     float64(cfg.MaxRequests),
		lastRefill: now,
	}
}

// refill adds tokens linearly over the configured window, capped at MaxRequests.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastRefill)
	if elapsed <= 0 {
		return
	}
	rate := float64(b.cfg.MaxRequests) / b.cfg.Window.Seconds()
	b.tokens += elapsed.Seconds() * rate
	if b.tokens > float64(b.cfg.MaxRequests) {
		b.tokens = float64(b.cfg.MaxRequests)
	}
	b.lastRefill = now
}

// Limiter tracks one token bucket per (source_type, source_id) key, plus an
// optional Redis mirror (see RedisMirror) used to share state across
// instances. Redis failures degrade to process-local state; they never
// surface as errors to callers of Check/RecordTooManyRequests.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	cfg     *Config
	mirror  mirror

	now func() time.Time
}

// mirror is the subset of RedisMirror behaviour the limiter depends on,
// kept narrow so tests can substitute a fake without a live Redis.
type mirror interface {
	Load(sourceType, sourceID string) (tokens float64, backoffUntil time.Time, consecutive429 int, ok bool)
	Save(sourceType, sourceID string, tokens float64, backoffUntil time.Time, consecutive429 int)
}

// NewLimiter builds a Limiter from cfg. If cfg.RedisAddr is empty the
// limiter holds state purely in process memory.
func NewLimiter(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		buckets: make(map[string]*bucket),
		cfg:     cfg,
		now:     time.Now,
	}
	if cfg.RedisAddr != "" {
		l.mirror = NewRedisMirror(cfg)
	}
	return l
}

func key(sourceType, sourceID string) string {
	return sourceType + "/" + sourceID
}

func (l *Limiter) bucketFor(sourceType, sourceID string, now time.Time) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	k := key(sourceType, sourceID)
	b, ok := l.buckets[k]
	if !ok {
		b = newBucket(l.cfg.BucketFor(sourceType), now)
		if l.mirror != nil {
			if tokens, backoffUntil, n, found := l.mirror.Load(sourceType, sourceID); found {
				b.tokens = tokens
				b.backoffUntil = backoffUntil
				b.consecutive429 = n
			}
		}
		l.buckets[k] = b
	}
	return b
}

// Check consumes one token for (sourceType, sourceID), returning
// *RateLimitExceeded if the bucket is empty or *InBackoff if a 429 backoff
// window is still active. A successful check zeros the 429 counter.
func (l *Limiter) Check(sourceType, sourceID string) error {
	now := l.now()
	b := l.bucketFor(sourceType, sourceID, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cfg.AutoBackoff && now.Before(b.backoffUntil) {
		return &InBackoff{SourceType: sourceType, SourceID: sourceID, Remaining: b.backoffUntil.Sub(now)}
	}

	b.refill(now)

	if b.tokens < 1 {
		rate := float64(b.cfg.MaxRequests) / b.cfg.Window.Seconds()
		deficit := 1 - b.tokens
		availableIn := time.Duration(deficit/rate*float64(time.Second))
		return &RateLimitExceeded{SourceType: sourceType, SourceID: sourceID, AvailableIn: availableIn}
	}

	b.tokens--
	b.consecutive429 = 0
	l.persist(sourceType, sourceID, b)
	return nil
}

// RecordTooManyRequests registers an upstream 429 for (sourceType, sourceID),
// opening (or extending) an exponential backoff window. retryAfter, when
// non-zero, overrides the computed backoff duration per the upstream's
// Retry-After hint.
func (l *Limiter) RecordTooManyRequests(sourceType, sourceID string, retryAfter time.Duration) {
	now := l.now()
	b := l.bucketFor(sourceType, sourceID, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.consecutive429++

	var backoff time.Duration
	if retryAfter > 0 {
		backoff = retryAfter
	} else if b.cfg.AutoBackoff {
		mult := math.Pow(2, float64(b.consecutive429-1))
		backoff = time.Duration(float64(b.cfg.InitialBackoff) * mult)
		if backoff > b.cfg.MaxBackoff {
			backoff = b.cfg.MaxBackoff
		}
	}
	if backoff > 0 {
		b.backoffUntil = now.Add(backoff)
	}
	l.persist(sourceType, sourceID, b)
}

// IsNearLimit reports whether the bucket's utilisation for (sourceType,
// sourceID) exceeds 80%, a signal callers use to proactively slow down
// before the next Check fails outright.
func (l *Limiter) IsNearLimit(sourceType, sourceID string) bool {
	now := l.now()
	b := l.bucketFor(sourceType, sourceID, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill(now)
	utilisation := 1 - (b.tokens / float64(b.cfg.MaxRequests))
	return utilisation > 0.8
}

// persist must be called with b.mu held.
func (l *Limiter) persist(sourceType, sourceID string, b *bucket) {
	if l.mirror == nil {
		return
	}
	l.mirror.Save(sourceType, sourceID, b.tokens, b.backoffUntil, b.consecutive429)
}
