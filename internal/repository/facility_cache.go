package repository

import (
	"context"
	"sync"
	"time"

	"github.com/recomplejos/court-booking/internal/model"
)

// FacilityCache is an explicit read-through cache over FacilityRepo.
// Validators and the notification consumer read facility configuration
// on every request, so lookups are served from memory and refreshed
// once the TTL passes.  Invalidate drops an entry immediately after an
// operator edit; the generation counter keeps a racing fill from
// resurrecting the stale value.
type FacilityCache struct {
	repo *FacilityRepo
	ttl  time.Duration
	now  func() time.Time

	mu      sync.RWMutex
	entries map[string]cacheEntry
	gen     map[string]uint64
}

type cacheEntry struct {
	facility  *model.Facility
	fetchedAt time.Time
	gen       uint64
}

// NewFacilityCache returns a cache with the given entry TTL.
func NewFacilityCache(repo *FacilityRepo, ttl time.Duration) *FacilityCache {
	return &FacilityCache{
		repo:    repo,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
		gen:     make(map[string]uint64),
	}
}

// Get returns the cached facility when fresh, otherwise reads through
// to MySQL.  Errors (including ErrFacilityNotFound) are never cached.
func (c *FacilityCache) Get(ctx context.Context, id string) (*model.Facility, error) {
	c.mu.RLock()
	e, ok := c.entries[id]
	curGen := c.gen[id]
	c.mu.RUnlock()
	if ok && e.gen == curGen && c.now().Sub(e.fetchedAt) < c.ttl {
		return e.facility, nil
	}

	f, err := c.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen[id] == curGen {
		c.entries[id] = cacheEntry{facility: f, fetchedAt: c.now(), gen: curGen}
	}
	c.mu.Unlock()
	return f, nil
}

// Invalidate drops the cached entry for a facility.  Called after
// configuration or credential edits so the next read hits MySQL.
func (c *FacilityCache) Invalidate(id string) {
	c.mu.Lock()
	c.gen[id]++
	delete(c.entries, id)
	c.mu.Unlock()
}
