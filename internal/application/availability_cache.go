package application

import (
	"strings"
	"sync"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

// availabilityCache keeps recent CheckAvailability answers for a short TTL.
// Every booking write bumps the generation, which drops all entries and stops
// in-flight lookups from storing results computed against the old calendar.
type availabilityCache struct {
	mu         sync.RWMutex
	now        func() time.Time
	ttl        time.Duration
	maxEntries int
	generation uint64
	entries    map[string]availabilityCacheEntry
}

type availabilityCacheEntry struct {
	result    AvailabilityResult
	expiresAt time.Time
}

func newAvailabilityCache(ttl time.Duration, maxEntries int, now func() time.Time) *availabilityCache {
	if ttl <= 0 {
		return nil
	}
	if maxEntries <= 0 {
		maxEntries = 128
	}
	if now == nil {
		now = time.Now
	}
	return &availabilityCache{
		now:        now,
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]availabilityCacheEntry),
	}
}

// Get returns a cached answer and the generation it was read at.
func (c *availabilityCache) Get(key string) (AvailabilityResult, uint64, bool) {
	if c == nil {
		return AvailabilityResult{}, 0, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	generation := c.generation
	c.mu.RUnlock()
	if !ok {
		return AvailabilityResult{}, generation, false
	}
	if c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return AvailabilityResult{}, generation, false
	}
	return cloneAvailability(entry.result), generation, true
}

// Store caches result unless the calendar changed since generation was read.
func (c *availabilityCache) Store(key string, generation uint64, result AvailabilityResult) {
	if c == nil {
		return
	}
	cloned := cloneAvailability(result)
	expiry := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	if generation != c.generation {
		return
	}
	c.cleanupLocked()
	if len(c.entries) >= c.maxEntries {
		c.evictOneLocked()
	}
	c.entries[key] = availabilityCacheEntry{result: cloned, expiresAt: expiry}
}

func (c *availabilityCache) Invalidate() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.generation++
	c.entries = make(map[string]availabilityCacheEntry)
	c.mu.Unlock()
}

func (c *availabilityCache) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}

func (c *availabilityCache) evictOneLocked() {
	for key := range c.entries {
		delete(c.entries, key)
		return
	}
}

func cloneAvailability(result AvailabilityResult) AvailabilityResult {
	out := AvailabilityResult{Available: result.Available}
	if len(result.Conflicts) > 0 {
		out.Conflicts = make([]persistence.Event, len(result.Conflicts))
		copy(out.Conflicts, result.Conflicts)
	}
	return out
}

func buildAvailabilityCacheKey(query AvailabilityQuery) string {
	builder := strings.Builder{}
	builder.WriteString(query.Start.UTC().Format(time.RFC3339Nano))
	builder.WriteString("|")
	builder.WriteString(query.End.UTC().Format(time.RFC3339Nano))
	builder.WriteString("|")
	builder.WriteString(query.ExcludeEventID)
	return builder.String()
}
