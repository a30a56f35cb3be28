package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"casesync/pkg/store"
)

// CachePolicy controls response caching for a single request. The zero value
// is no-cache.
type CachePolicy struct {
	TTL time.Duration
}

// NoCache disables caching for a request
var NoCache = CachePolicy{}

// TTL returns a cache policy storing successful responses for d
func TTL(d time.Duration) CachePolicy {
	return CachePolicy{TTL: d}
}

func (p CachePolicy) cacheable() bool {
	return p.TTL > 0
}

// cacheEntry is a stored response body with its expiry
type cacheEntry struct {
	Payload   []byte    `json:"payload"`
	ExpiresAt time.Time `json:"expires_at"`
}

// cacheKey canonicalizes (method, url, body) into a store key
func cacheKey(method, url string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(url))
	h.Write([]byte{0})
	h.Write(body)
	return store.PrefixCache + hex.EncodeToString(h.Sum(nil))
}

// cacheGet returns a cached payload if present and unexpired. Expired entries
// are removed on read.
func cacheGet(ctx context.Context, kv store.KV, key string) ([]byte, bool) {
	data, err := kv.Get(ctx, key)
	if err != nil {
		return nil, false
	}

	var entry cacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = kv.Delete(ctx, key)
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		_ = kv.Delete(ctx, key)
		return nil, false
	}

	return entry.Payload, true
}

// cacheSet stores a payload under key with the policy's TTL
func cacheSet(ctx context.Context, kv store.KV, key string, payload []byte, ttl time.Duration) error {
	entry := cacheEntry{
		Payload:   payload,
		ExpiresAt: time.Now().Add(ttl),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return kv.Set(ctx, key, data)
}

// PurgeCache removes every cache entry from the store
func PurgeCache(ctx context.Context, kv store.KV) error {
	if err := kv.DeletePrefix(ctx, store.PrefixCache); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	return nil
}
