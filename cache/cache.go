// Package cache is a process-wide TTL response cache with single-flight
// fetch semantics: for a given key, at most one upstream fetch is in flight
// at a time, and concurrent callers share its result.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// FetchFunc produces the value for a key on cache miss.
type FetchFunc func(ctx context.Context) ([]byte, error)

type entry struct {
	value   []byte
	expires time.Time
}

// Stats counts cache outcomes. Shared counts callers that joined an
// in-flight fetch instead of starting their own.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Shared int64 `json:"shared"`
}

// Cache is safe for concurrent use. Entries are evicted lazily: an expired
// entry is treated as absent on the next lookup, never reaped proactively.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	group   singleflight.Group

	statsMu sync.Mutex
	stats   Stats
}

// New creates a cache whose entries live for ttl from creation.
func New(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
	}
}

// GetOrFetch returns the live cached value for key, or runs fetch exactly
// once for all concurrent callers and caches its result. A fetch failure is
// delivered to every waiter and nothing is cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) ([]byte, error) {
	if v, ok := c.lookup(key); ok {
		c.count(func(s *Stats) { s.Hits++ })
		return v, nil
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		// A racing caller may have populated the entry between our lookup
		// and winning the flight.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		c.count(func(s *Stats) { s.Misses++ })
		val, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = &entry{value: val, expires: time.Now().Add(c.ttl)}
		c.mu.Unlock()
		return val, nil
	})
	if shared {
		c.count(func(s *Stats) { s.Shared++ })
	}
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()
	return c.stats
}

func (c *Cache) lookup(key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expires) {
		// Lazy eviction on expiry check.
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *Cache) count(fn func(*Stats)) {
	c.statsMu.Lock()
	fn(&c.stats)
	c.statsMu.Unlock()
}

// Key derives the canonical cache key for a tool call: the tool name plus
// the argument map normalized with sorted keys, hashed. Identical calls
// always map to the same key regardless of argument order.
func Key(tool string, args map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(tool))
	h.Write([]byte{0})
	h.Write(normalize(args))
	return hex.EncodeToString(h.Sum(nil))
}

func normalize(args map[string]interface{}) []byte {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var buf []byte
	for _, k := range keys {
		v, _ := json.Marshal(args[k])
		buf = append(buf, k...)
		buf = append(buf, '=')
		buf = append(buf, v...)
		buf = append(buf, ';')
	}
	return buf
}
