package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// QueryKey derives the hybrid retriever's cache key, hash(q, filter,
// profile), deterministically: equal inputs must hash to the same key
// regardless of map iteration order in filter, so filterRepr must already
// be a canonical (sorted) string form by the time it reaches here.
func QueryKey(query, filterRepr, profile string) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write([]byte(filterRepr))
	h.Write([]byte{0})
	h.Write([]byte(profile))
	return hex.EncodeToString(h.Sum(nil))
}
