// Package ratelimit implements the per-(source_type, source_id) token
// bucket with exponential backoff-on-429 described for C1, with optional
// Redis-backed state sharing across instances.
package ratelimit

import (
	"fmt"
	"time"
)

// Config carries the default bucket parameters plus per-source-kind
// overrides, mirroring internal/config.RateLimitConfig so callers can pass
// the loaded application config straight through.
type Config struct {
	Default   BucketConfig
	Overrides map[string]BucketConfig

	// Redis mirrors bucket state across instances when non-empty. A Redis
	// error during check/record degrades to process-local state rather
	// than failing the call — see Limiter.Check.
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// BucketConfig is one source kind's token bucket parameters.
type BucketConfig struct {
	MaxRequests    int
	Window         time.Duration
	AutoBackoff    bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Validate checks the bucket parameters are usable.
func (b *BucketConfig) Validate() error {
	if b.MaxRequests <= 0 {
		return fmt.Errorf("max requests must be positive")
	}
	if b.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if b.AutoBackoff {
		if b.InitialBackoff <= 0 {
			return fmt.Errorf("initial backoff must be positive when auto backoff is enabled")
		}
		if b.MaxBackoff < b.InitialBackoff {
			return fmt.Errorf("max backoff cannot be less than initial backoff")
		}
	}
	return nil
}

// DefaultConfig returns sane defaults: 60 requests/minute, exponential
// backoff from 1s up to 1 minute.
func DefaultConfig() *Config {
	return &Config{
		Default: BucketConfig{
			MaxRequests:    60,
			Window:         time.Minute,
			AutoBackoff:    true,
			InitialBackoff: time.Second,
			MaxBackoff:     time.Minute,
		},
		Overrides: make(map[string]BucketConfig),
		KeyPrefix: "conhub:ratelimit:",
	}
}

// BucketFor resolves the effective bucket configuration for a source type.
func (c *Config) BucketFor(sourceType string) BucketConfig {
	if override, ok := c.Overrides[sourceType]; ok {
		return override
	}
	return c.Default
}
