package application

import (
	"testing"
	"time"

	"github.com/example/event-booking/internal/persistence"
)

func TestAvailabilityCacheStoresAndReturnsCopies(t *testing.T) {
	fixed := time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC)
	current := fixed
	cache := newAvailabilityCache(time.Minute, 4, func() time.Time { return current })

	original := AvailabilityResult{Conflicts: []persistence.Event{{ID: "evt-1", Title: "Standup"}}}
	_, generation, _ := cache.Get("key")
	cache.Store("key", generation, original)

	// Mutating the original slice should not affect the cached copy.
	original.Conflicts[0].ID = "mutated"

	cached, _, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if cached.Conflicts[0].ID != "evt-1" {
		t.Fatalf("expected cached event id to remain unchanged, got %s", cached.Conflicts[0].ID)
	}

	cached.Conflicts[0].ID = "changed"
	cachedAgain, _, ok := cache.Get("key")
	if !ok {
		t.Fatalf("expected cache hit on second read")
	}
	if cachedAgain.Conflicts[0].ID != "evt-1" {
		t.Fatalf("expected cache to return independent copy, got %s", cachedAgain.Conflicts[0].ID)
	}
}

func TestAvailabilityCacheExpiresEntries(t *testing.T) {
	fixed := time.Date(2025, 1, 9, 9, 0, 0, 0, time.UTC)
	current := fixed
	cache := newAvailabilityCache(time.Second, 4, func() time.Time { return current })

	cache.Store("key", 0, AvailabilityResult{Available: true})
	if _, _, ok := cache.Get("key"); !ok {
		t.Fatalf("expected cache hit before expiry")
	}

	current = current.Add(2 * time.Second)
	if _, _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache entry to expire")
	}
}

func TestAvailabilityCacheInvalidateDropsStaleStores(t *testing.T) {
	cache := newAvailabilityCache(time.Minute, 4, time.Now)
	cache.Store("key", 0, AvailabilityResult{Available: true})

	_, staleGeneration, _ := cache.Get("other")
	cache.Invalidate()
	if _, _, ok := cache.Get("key"); ok {
		t.Fatalf("expected cache to be empty after invalidation")
	}

	cache.Store("other", staleGeneration, AvailabilityResult{Available: true})
	if _, _, ok := cache.Get("other"); ok {
		t.Fatalf("expected result computed before invalidation to be discarded")
	}
}

func TestAvailabilityCacheEvictsWhenFull(t *testing.T) {
	cache := newAvailabilityCache(time.Minute, 2, time.Now)
	cache.Store("a", 0, AvailabilityResult{Available: true})
	cache.Store("b", 0, AvailabilityResult{Available: true})
	cache.Store("c", 0, AvailabilityResult{Available: true})

	if got := len(cache.entries); got != 2 {
		t.Fatalf("expected cache to stay bounded at 2 entries, got %d", got)
	}
	if _, _, ok := cache.Get("c"); !ok {
		t.Fatalf("expected newest entry to be present")
	}
}

func TestAvailabilityCacheDisabledWithoutTTL(t *testing.T) {
	cache := newAvailabilityCache(0, 4, time.Now)
	cache.Store("key", 0, AvailabilityResult{Available: true})
	if _, _, ok := cache.Get("key"); ok {
		t.Fatalf("expected nil cache to never hit")
	}
	cache.Invalidate()
}
