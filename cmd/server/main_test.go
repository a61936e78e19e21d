package main

import (
	"testing"
	"time"

	"conhub-ingest/internal/config"
	"conhub-ingest/internal/ratelimit"
)

// TestRateLimitConfigFrom checks the translation from the loaded
// application config into C1's own Config shape, including the per-source
// override map and the optional Redis mirror fields.
func TestRateLimitConfigFrom(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.RateLimit.Overrides = map[string]config.SourceRateLimit{
		"github": {
			MaxRequests:    10,
			Window:         time.Second,
			AutoBackoff:    true,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
		},
	}
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = "localhost:6379"

	rc := rateLimitConfigFrom(cfg)

	if rc.Default.MaxRequests != cfg.RateLimit.Default.MaxRequests {
		t.Fatalf("default max requests = %d, want %d", rc.Default.MaxRequests, cfg.RateLimit.Default.MaxRequests)
	}
	override, ok := rc.Overrides["github"]
	if !ok {
		t.Fatal("expected github override to be carried over")
	}
	if override.MaxRequests != 10 {
		t.Fatalf("github override max requests = %d, want 10", override.MaxRequests)
	}
	if rc.RedisAddr != "localhost:6379" {
		t.Fatalf("redis addr = %q, want localhost:6379", rc.RedisAddr)
	}

	// The translated config must still build a working Limiter.
	limiter := ratelimit.NewLimiter(rc)
	if limiter == nil {
		t.Fatal("expected a non-nil limiter")
	}
}

// TestRateLimitConfigFromNoRedis confirms the Redis fields stay empty when
// the tier is disabled, so the limiter degrades to process-local state.
func TestRateLimitConfigFromNoRedis(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Redis.Enabled = false

	rc := rateLimitConfigFrom(cfg)
	if rc.RedisAddr != "" {
		t.Fatalf("expected no redis addr when disabled, got %q", rc.RedisAddr)
	}
}
