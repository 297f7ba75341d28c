package notes

import (
	"slices"
	"sync"
	"time"

	"github.com/starford/gitnotes/internal/models"
)

// snapshot is an immutable, ordered view of every note. It is replaced
// wholesale and never modified after it is stored.
type snapshot struct {
	notes     []models.Note
	createdAt time.Time
}

// cache holds at most one snapshot. Every invalidation bumps gen; a rebuild
// may only store its result if gen has not moved since the rebuild began, so
// a scan that raced with a write can never resurrect stale content.
type cache struct {
	mu   sync.RWMutex
	snap *snapshot
	gen  uint64
	ttl  time.Duration
	now  func() time.Time
}

func newCache(ttl time.Duration, now func() time.Time) *cache {
	return &cache{ttl: ttl, now: now}
}

// get returns the current snapshot if it is still fresh, together with the
// generation a rebuild must present to store.
func (c *cache) get() (*snapshot, uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snap != nil && c.now().Sub(c.snap.createdAt) < c.ttl {
		return c.snap, c.gen
	}
	return nil, c.gen
}

func (c *cache) store(s *snapshot, gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.snap = s
	return true
}

func (c *cache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = nil
	c.gen++
}

func (s *snapshot) list() []models.Note {
	return slices.Clone(s.notes)
}
