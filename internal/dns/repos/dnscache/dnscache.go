package dnscache

import (
	"errors"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

var (
	ErrMultipleKeys = errors.New("multiple records with different keys provided")
)

// dnsCache is an in-memory TTL-aware multiset cache using an LRU eviction
// strategy. Each cache key (owner+type+class) can hold several independently
// expiring records at once - inserting a record never displaces one already
// present at the same key, matching how a real resolver accumulates answers
// for a name across several upstream queries (e.g. round-robin A records
// learned one response at a time).
type dnsCache struct {
	lru *lru.Cache[string, []domain.ResourceRecord]
}

// New returns a new dnsCache instance of the given size using an LRU backing store.
func New(size int) (*dnsCache, error) {
	cache, err := lru.New[string, []domain.ResourceRecord](size)
	if err != nil {
		return nil, err
	}
	return &dnsCache{lru: cache}, nil
}

// Set appends records to the existing entry for their shared cache key,
// rather than replacing it - a second upstream response for the same name
// and type adds to the set of cached answers instead of evicting the first.
// All records passed must share one cache key.
func (c *dnsCache) Set(records []domain.ResourceRecord) error {
	if len(records) == 0 {
		return nil
	}
	key := records[0].CacheKey()
	for _, record := range records {
		if record.CacheKey() != key {
			return ErrMultipleKeys
		}
	}
	existing, _ := c.lru.Get(key)
	c.lru.Add(key, append(existing, records...))
	return nil
}

// Put appends a single record to its cache key's existing set, without
// disturbing any other record already stored there.
func (c *dnsCache) Put(record domain.ResourceRecord) {
	key := record.CacheKey()
	existing, _ := c.lru.Get(key)
	c.lru.Add(key, append(existing, record))
}

// Get retrieves resource records from the cache if present and not expired.
// If any records are expired, they are removed from the cache.
// Returns all valid (non-expired) records for the key and a boolean indicating if any were found.
func (c *dnsCache) Get(key string) ([]domain.ResourceRecord, bool) {
	if records, found := c.lru.Get(key); found {
		var validRecords []domain.ResourceRecord

		// Filter out expired records
		for _, record := range records {
			if !record.IsExpired() {
				validRecords = append(validRecords, record)
			}
		}

		// Update cache with only valid records or remove if none remain
		if len(validRecords) > 0 {
			c.lru.Add(key, validRecords)
			return validRecords, true
		} else {
			c.lru.Remove(key)
		}
	}
	return nil, false
}

// Delete removes the entry for the given key from the cache.
func (c *dnsCache) Delete(key string) {
	c.lru.Remove(key)
}

// Len returns the number of cache entries (keys) currently stored in the cache.
// Note: Each entry may contain multiple resource records.
func (c *dnsCache) Len() int {
	return c.lru.Len()
}

// Keys returns a slice of all current cache keys.
func (c *dnsCache) Keys() []string {
	return c.lru.Keys()
}

// Sweep walks every key in the cache and removes expired records from each,
// deleting any key left with no records. Get already sweeps lazily per key
// on read; Sweep exists for callers (e.g. a periodic maintenance goroutine)
// that want to reclaim memory from keys nobody has looked up recently.
func (c *dnsCache) Sweep() {
	for _, key := range c.lru.Keys() {
		records, found := c.lru.Peek(key)
		if !found {
			continue
		}

		var live []domain.ResourceRecord
		for _, record := range records {
			if !record.IsExpired() {
				live = append(live, record)
			}
		}

		if len(live) == 0 {
			c.lru.Remove(key)
			continue
		}
		if len(live) != len(records) {
			c.lru.Add(key, live)
		}
	}
}

var _ resolver.Cache = (*dnsCache)(nil)
