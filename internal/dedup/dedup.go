// Package dedup implements the response deduplication cache (C5): a
// fingerprint of (user, intent, entities, minute bucket) maps to a cached
// response for a short TTL, guarding against network-retry double sends.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Cache is an in-process, mutex-guarded deduplication cache (spec §5's
// "single in-process mapping" shared resource).
type Cache struct {
	mu             sync.Mutex
	ttl            time.Duration
	bucketWidth    time.Duration
	bypassKeywords []string
	entries        map[string]entry
}

type entry struct {
	response any
	expires  time.Time
}

// New creates a Cache with the given TTL, bucket width (for the rounded
// timestamp component of the fingerprint), and bypass keyword list.
func New(ttl, bucketWidth time.Duration, bypassKeywords []string) *Cache {
	lower := make([]string, len(bypassKeywords))
	for i, k := range bypassKeywords {
		lower[i] = strings.ToLower(k)
	}
	return &Cache{
		ttl:            ttl,
		bucketWidth:    bucketWidth,
		bypassKeywords: lower,
		entries:        make(map[string]entry),
	}
}

// Fingerprint computes the stable hash for (userID, intent, entities) at
// the current time, rounded to the bucket width so near-simultaneous
// retries collide into the same fingerprint.
func (c *Cache) Fingerprint(userID, intent string, entities map[string]any) string {
	return c.fingerprintAt(userID, intent, entities, time.Now())
}

func (c *Cache) fingerprintAt(userID, intent string, entities map[string]any, at time.Time) string {
	bucket := at.Unix() - (at.Unix() % int64(c.bucketWidth.Seconds()))

	keys := make([]string, 0, len(entities))
	for k := range entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sorted := make(map[string]any, len(entities))
	for _, k := range keys {
		sorted[k] = entities[k]
	}
	entitiesJSON, _ := json.Marshal(sorted)

	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{'|'})
	h.Write([]byte(intent))
	h.Write([]byte{'|'})
	h.Write(entitiesJSON)
	h.Write([]byte{'|'})
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// ShouldBypass reports whether message contains an explicit retry/resend
// keyword, which bypasses the duplicate check entirely.
func (c *Cache) ShouldBypass(message string) bool {
	lower := strings.ToLower(message)
	for _, kw := range c.bypassKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// CheckDuplicate returns (true, cachedResponse) if a live entry exists for
// (userID, intent, entities) and message does not contain a bypass keyword.
func (c *Cache) CheckDuplicate(userID, intent string, entities map[string]any, message string) (bool, any) {
	if c.ShouldBypass(message) {
		return false, nil
	}

	fp := c.Fingerprint(userID, intent, entities)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.cleanExpiredLocked()

	e, ok := c.entries[fp]
	if !ok || time.Now().After(e.expires) {
		return false, nil
	}
	return true, e.response
}

// CacheResponse stores response under the fingerprint for (userID, intent,
// entities), expiring after the configured TTL.
func (c *Cache) CacheResponse(userID, intent string, entities map[string]any, response any) {
	fp := c.Fingerprint(userID, intent, entities)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[fp] = entry{response: response, expires: time.Now().Add(c.ttl)}
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// cleanExpiredLocked removes expired entries. Caller holds c.mu.
func (c *Cache) cleanExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}
