package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conhub-ingest/internal/logging"
)

// fakeTier2 is an in-memory stand-in for the remote KV used to exercise
// write-strategy and degradation behaviour without a live Redis.
type fakeTier2 struct {
	mu      sync.Mutex
	data    map[string][]byte
	setErr  error
	getErr  error
	setCall int
}

func newFakeTier2() *fakeTier2 {
	return &fakeTier2{data: make(map[string][]byte)}
}

func (f *fakeTier2) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.getErr != nil {
		return nil, false, f.getErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *fakeTier2) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCall++
	if f.setErr != nil {
		return f.setErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeTier2) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeTier2) Close() error { return nil }

func (f *fakeTier2) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.setCall
}

func TestCache_WriteThrough_WritesBothTiersSynchronously(t *testing.T) {
	t2 := newFakeTier2()
	cfg := DefaultConfig()
	cfg.Strategy = WriteThrough
	c := New(cfg, t2, logging.NewNoOpLogger())

	c.Set(context.Background(), "k", []byte("v"), 60)

	entry, ok := c.Get(context.Background(), "k")
	require.True(t, ok)
	assert.Equal(t, []byte("v"), entry.Data)
	assert.Equal(t, 1, t2.calls(), "write-through must hit tier 2 synchronously")
}

func TestCache_WriteAround_SkipsTier1OnWrite(t *testing.T) {
	t2 := newFakeTier2()
	cfg := DefaultConfig()
	cfg.Strategy = WriteAround
	c := New(cfg, t2, logging.NewNoOpLogger())

	c.Set(context.Background(), "k", []byte("v"), 60)

	assert.Equal(t, 1, t2.calls())
	_, tier1Hit := c.tier1.get("k", time.Now())
	assert.False(t, tier1Hit, "write-around must not populate tier 1")

	entry, ok := c.Get(context.Background(), "k")
	require.True(t, ok, "a tier-2 hit must still be reachable via Get")
	assert.Equal(t, []byte("v"), entry.Data)
}

func TestCache_WriteBack_Tier1ImmediateTier2Deferred(t *testing.T) {
	t2 := newFakeTier2()
	cfg := DefaultConfig()
	cfg.Strategy = WriteBack
	cfg.WriteBackFlushEvery = 20 * time.Millisecond
	cfg.WriteBackFlushBatch = 1024
	c := New(cfg, t2, logging.NewNoOpLogger())
	defer c.Close()

	c.Set(context.Background(), "k", []byte("v"), 60)

	entry, ok := c.tier1.get("k", time.Now())
	require.True(t, ok, "write-back must populate tier 1 immediately")
	assert.Equal(t, []byte("v"), entry.Data)

	require.Eventually(t, func() bool { return t2.calls() == 1 }, time.Second, 5*time.Millisecond,
		"write-back must flush to tier 2 within one flush interval")
}

func TestCache_WriteBack_FlushesOnBatchSizeWithoutWaitingForTicker(t *testing.T) {
	t2 := newFakeTier2()
	cfg := DefaultConfig()
	cfg.Strategy = WriteBack
	cfg.WriteBackFlushEvery = time.Hour // effectively disable the ticker
	cfg.WriteBackFlushBatch = 3
	c := New(cfg, t2, logging.NewNoOpLogger())
	defer c.Close()

	for i := 0; i < 3; i++ {
		c.Set(context.Background(), string(rune('a'+i)), []byte("v"), 60)
	}

	require.Eventually(t, func() bool { return t2.calls() == 3 }, time.Second, 5*time.Millisecond,
		"write-back must flush once the batch threshold is reached, not wait for the ticker")
}

func TestCache_Get_PromotesTier2HitToTier1(t *testing.T) {
	t2 := newFakeTier2()
	cfg := DefaultConfig()
	cfg.Strategy = WriteAround
	c := New(cfg, t2, logging.NewNoOpLogger())

	c.Set(context.Background(), "k", []byte("v"), 60)
	_, ok := c.Get(context.Background(), "k") // first Get promotes tier2 -> tier1
	require.True(t, ok)

	_, tier1Hit := c.tier1.get("k", time.Now())
	assert.True(t, tier1Hit, "a tier-2 hit must promote into tier 1")
}

func TestCache_Get_ExpiredEntryIsTreatedAsMiss(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = WriteThrough
	c := New(cfg, nil, logging.NewNoOpLogger())

	c.Set(context.Background(), "k", []byte("v"), 1)
	c.tier1.items["k"].Value.(*lruNode).entry.CreatedAt = time.Now().Add(-2 * time.Second)

	_, ok := c.Get(context.Background(), "k")
	assert.False(t, ok)
}

func TestCache_Get_Tier2ErrorDegradesToTier1OnlyWithoutFailingCaller(t *testing.T) {
	t2 := newFakeTier2()
	t2.getErr = errors.New("connection refused")
	cfg := DefaultConfig()
	cfg.Strategy = WriteThrough
	c := New(cfg, t2, logging.NewNoOpLogger())

	_, ok := c.Get(context.Background(), "missing")
	assert.False(t, ok)
	assert.Equal(t, int64(1), c.Stats().Tier2Errors)
}

func TestCache_Set_CompressesPayloadsAboveThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Strategy = WriteThrough
	cfg.CompressThreshold = 8
	c := New(cfg, nil, logging.NewNoOpLogger())

	big := make([]byte, 1024)
	c.Set(context.Background(), "k", big, 60)

	el, ok := c.tier1.items["k"]
	require.True(t, ok)
	entry := el.Value.(*lruNode).entry
	assert.True(t, entry.Compressed)
}

func TestLRUTier_EvictsLeastRecentlyUsedOnCapacityOverflow(t *testing.T) {
	stats := &Stats{}
	tier := newLRUTier(2, stats)
	now := time.Now()

	tier.set("a", Entry{Data: []byte("a")})
	tier.set("b", Entry{Data: []byte("b")})
	tier.get("a", now) // touch "a" so "b" becomes the LRU victim
	tier.set("c", Entry{Data: []byte("c")})

	_, aOK := tier.get("a", now)
	_, bOK := tier.get("b", now)
	_, cOK := tier.get("c", now)
	assert.True(t, aOK)
	assert.False(t, bOK, "least recently used entry must be evicted")
	assert.True(t, cOK)
	assert.Equal(t, int64(1), stats.Snapshot().Evictions)
}

func TestQueryKey_DeterministicRegardlessOfCallOrder(t *testing.T) {
	k1 := QueryKey("q", "eq:a=1;", "default")
	k2 := QueryKey("q", "eq:a=1;", "default")
	assert.Equal(t, k1, k2)
}

func TestQueryKey_DifferentInputsProduceDifferentKeys(t *testing.T) {
	k1 := QueryKey("q1", "", "")
	k2 := QueryKey("q2", "", "")
	assert.NotEqual(t, k1, k2)
}
