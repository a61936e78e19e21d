package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *Config {
	return &Config{
		Default: BucketConfig{
			MaxRequests:    5,
			Window:         time.Second,
			AutoBackoff:    true,
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
		},
		Overrides: make(map[string]BucketConfig),
		KeyPrefix: "test:",
	}
}

func TestLimiter_Check_AllowsUpToMax(t *testing.T) {
	l := NewLimiter(testConfig())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("github", "repo-a"))
	}

	err := l.Check("github", "repo-a")
	require.Error(t, err)
	var exceeded *RateLimitExceeded
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, "github", exceeded.SourceType)
	assert.Equal(t, "repo-a", exceeded.SourceID)
	assert.Greater(t, exceeded.AvailableIn, time.Duration(0))
}

func TestLimiter_Check_RefillsOverTime(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("github", "repo-a"))
	}
	require.Error(t, l.Check("github", "repo-a"))

	fakeNow = fakeNow.Add(cfg.Default.Window)
	require.NoError(t, l.Check("github", "repo-a"))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l := NewLimiter(testConfig())

	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("github", "repo-a"))
	}

	require.NoError(t, l.Check("github", "repo-b"))
}

func TestLimiter_RecordTooManyRequests_OpensBackoff(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	l.RecordTooManyRequests("jira", "PROJ", 0)

	err := l.Check("jira", "PROJ")
	require.Error(t, err)
	var inBackoff *InBackoff
	require.ErrorAs(t, err, &inBackoff)
	assert.Equal(t, cfg.Default.InitialBackoff, inBackoff.Remaining)

	fakeNow = fakeNow.Add(cfg.Default.InitialBackoff)
	require.NoError(t, l.Check("jira", "PROJ"))
}

func TestLimiter_RecordTooManyRequests_ExponentialBackoff(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	l.RecordTooManyRequests("jira", "PROJ", 0)
	l.RecordTooManyRequests("jira", "PROJ", 0)

	b := l.bucketFor("jira", "PROJ", fakeNow)
	assert.Equal(t, 2*cfg.Default.InitialBackoff, b.backoffUntil.Sub(fakeNow))
}

func TestLimiter_RecordTooManyRequests_CapsAtMaxBackoff(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	for i := 0; i < 10; i++ {
		l.RecordTooManyRequests("jira", "PROJ", 0)
	}

	b := l.bucketFor("jira", "PROJ", fakeNow)
	assert.Equal(t, cfg.Default.MaxBackoff, b.backoffUntil.Sub(fakeNow))
}

func TestLimiter_RecordTooManyRequests_HonoursRetryAfter(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	l.RecordTooManyRequests("jira", "PROJ", 5*time.Second)

	b := l.bucketFor("jira", "PROJ", fakeNow)
	assert.Equal(t, 5*time.Second, b.backoffUntil.Sub(fakeNow))
}

func TestLimiter_SuccessfulCheckResetsConsecutive429(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	l.RecordTooManyRequests("jira", "PROJ", 0)
	fakeNow = fakeNow.Add(cfg.Default.InitialBackoff)
	require.NoError(t, l.Check("jira", "PROJ"))

	l.RecordTooManyRequests("jira", "PROJ", 0)
	b := l.bucketFor("jira", "PROJ", fakeNow)
	assert.Equal(t, cfg.Default.InitialBackoff, b.backoffUntil.Sub(fakeNow))
}

func TestLimiter_IsNearLimit(t *testing.T) {
	cfg := testConfig()
	l := NewLimiter(cfg)

	assert.False(t, l.IsNearLimit("github", "repo-a"))

	// 4 of 5 tokens used is exactly 80%, which does not exceed the
	// threshold; draining the bucket does.
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Check("github", "repo-a"))
	}

	assert.True(t, l.IsNearLimit("github", "repo-a"))
}

func TestLimiter_UsesPerSourceOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Overrides["ticketing"] = BucketConfig{
		MaxRequests: 1,
		Window:      time.Second,
	}
	l := NewLimiter(cfg)

	require.NoError(t, l.Check("ticketing", "PROJ"))
	require.Error(t, l.Check("ticketing", "PROJ"))
}

func TestBucketConfig_Validate(t *testing.T) {
	valid := BucketConfig{MaxRequests: 1, Window: time.Second}
	assert.NoError(t, valid.Validate())

	missingRequests := BucketConfig{Window: time.Second}
	assert.Error(t, missingRequests.Validate())

	missingWindow := BucketConfig{MaxRequests: 1}
	assert.Error(t, missingWindow.Validate())

	badBackoff := BucketConfig{MaxRequests: 1, Window: time.Second, AutoBackoff: true}
	assert.Error(t, badBackoff.Validate())
}
