package ratelimit

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"conhub-ingest/internal/logging"
)

// RedisMirror shares token bucket state across instances via Redis hashes,
// one hash per (source_type, source_id) key. Any client error is logged and
// treated as a cache miss by the caller (Limiter falls back to its
// in-process bucket) rather than propagated, per C1's degrade-don't-fail
// contract for the Redis mirror.
type RedisMirror struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisMirror builds a mirror from cfg. Panics are never raised here;
// redis.NewClient only validates options locally, the actual connection is
// lazy and failures surface as errors on individual commands.
func NewRedisMirror(cfg *Config) *RedisMirror {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	return &RedisMirror{
		client:    client,
		keyPrefix: cfg.KeyPrefix,
		ttl:       24 * time.Hour,
	}
}

func (m *RedisMirror) redisKey(sourceType, sourceID string) string {
	var b strings.Builder
	b.WriteString(m.keyPrefix)
	b.WriteString(sourceType)
	b.WriteByte(':')
	b.WriteString(sourceID)
	return b.String()
}

// Load fetches the last known bucket state for (sourceType, sourceID). ok is
// false on a cache miss or any Redis error.
func (m *RedisMirror) Load(sourceType, sourceID string) (tokens float64, backoffUntil time.Time, consecutive429 int, ok bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	vals, err := m.client.HGetAll(ctx, m.redisKey(sourceType, sourceID)).Result()
	if err != nil || len(vals) == 0 {
		if err != nil {
			logging.Warn("rate limiter redis mirror load failed, using local state", "error", err.Error())
		}
		return 0, time.Time{}, 0, false
	}

	tokens, _ = strconv.ParseFloat(vals["tokens"], 64)
	if unixNano, err := strconv.ParseInt(vals["backoff_until"], 10, 64); err == nil && unixNano > 0 {
		backoffUntil = time.Unix(0, unixNano)
	}
	consecutive429, _ = strconv.Atoi(vals["consecutive_429"])
	return tokens, backoffUntil, consecutive429, true
}

// Save writes the current bucket state back to Redis. Errors are logged and
// swallowed; the in-process bucket remains authoritative for this instance.
func (m *RedisMirror) Save(sourceType, sourceID string, tokens float64, backoffUntil time.Time, consecutive429 int) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	redisKey := m.redisKey(sourceType, sourceID)
	fields := map[string]interface{}{
		"tokens":          tokens,
		"backoff_until":   backoffUntil.UnixNano(),
		"consecutive_429": consecutive429,
	}
	pipe := m.client.TxPipeline()
	pipe.HSet(ctx, redisKey, fields)
	pipe.Expire(ctx, redisKey, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		logging.Warn("rate limiter redis mirror save failed", "error", err.Error())
	}
}

// Close releases the underlying Redis client connection.
func (m *RedisMirror) Close() error {
	return m.client.Close()
}
