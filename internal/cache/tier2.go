package cache

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier2 implements Tier2 against Redis: SET EX / GET / DEL, matching
// the wire operations the egress interfaces section names for the
// optional remote cache.
type RedisTier2 struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisTier2 builds a RedisTier2 over an already-configured client.
func NewRedisTier2(client *redis.Client, keyPrefix string) *RedisTier2 {
	return &RedisTier2{client: client, keyPrefix: keyPrefix}
}

func (r *RedisTier2) prefixed(key string) string { return r.keyPrefix + key }

// Get returns the raw stored value, false if absent.
func (r *RedisTier2) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.prefixed(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value with the given ttl (0 means no expiry).
func (r *RedisTier2) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.prefixed(key), value, ttl).Err()
}

// Delete removes key.
func (r *RedisTier2) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.prefixed(key)).Err()
}

// Close releases the underlying client.
func (r *RedisTier2) Close() error { return r.client.Close() }

// encodeEntry/decodeEntry give Entry a compact wire form for tier 2: a
// fixed header (created_at unix nano, ttl seconds, access count, flags)
// followed by the raw (possibly already-gzipped) payload. Avoiding
// encoding/json here keeps the hot cache-write path allocation-light.
func encodeEntry(e Entry) []byte {
	buf := make([]byte, 8+4+8+1+len(e.Data))
	binary.BigEndian.PutUint64(buf[0:8], uint64(e.CreatedAt.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(int32(e.TTLSeconds)))
	binary.BigEndian.PutUint64(buf[12:20], uint64(e.AccessCount))
	flags := byte(0)
	if e.Compressed {
		flags |= 1
	}
	if e.Encrypted {
		flags |= 2
	}
	buf[20] = flags
	copy(buf[21:], e.Data)
	return buf
}

func decodeEntry(raw []byte) Entry {
	if len(raw) < 21 {
		return Entry{Data: raw, CreatedAt: time.Now()}
	}
	createdAt := time.Unix(0, int64(binary.BigEndian.Uint64(raw[0:8])))
	ttl := int32(binary.BigEndian.Uint32(raw[8:12]))
	accessCount := int64(binary.BigEndian.Uint64(raw[12:20]))
	flags := raw[20]
	return Entry{
		Data:         raw[21:],
		CreatedAt:    createdAt,
		LastAccessed: createdAt,
		AccessCount:  accessCount,
		TTLSeconds:   int(ttl),
		Compressed:   flags&1 != 0,
		Encrypted:    flags&2 != 0,
	}
}
