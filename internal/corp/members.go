package corp

import (
	"context"
	"sync"
	"sync/atomic"
)

// MemberLoader reads the member list of one corporation from the shared store.
type MemberLoader func(ctx context.Context, corporationID int64) ([]Member, error)

// MemberCache holds per-corporation member snapshots. A snapshot is rebuilt
// lazily on the read after an invalidation, never eagerly. The only mutation
// is an atomic pointer swap, so a racing read yields at most a redundant
// reload, never a partial list.
type MemberCache struct {
	mu      sync.Mutex
	entries map[int64]*atomic.Pointer[[]Member]
	load    MemberLoader
}

// NewMemberCache constructs a MemberCache backed by the given loader.
func NewMemberCache(load MemberLoader) *MemberCache {
	return &MemberCache{
		entries: make(map[int64]*atomic.Pointer[[]Member]),
		load:    load,
	}
}

func (c *MemberCache) entry(corporationID int64) *atomic.Pointer[[]Member] {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.entries[corporationID]
	if !ok {
		p = &atomic.Pointer[[]Member]{}
		c.entries[corporationID] = p
	}
	return p
}

// Members returns the cached snapshot, loading it if unpopulated.
func (c *MemberCache) Members(ctx context.Context, corporationID int64) ([]Member, error) {
	p := c.entry(corporationID)
	if v := p.Load(); v != nil {
		return *v, nil
	}
	members, err := c.load(ctx, corporationID)
	if err != nil {
		return nil, err
	}
	p.Store(&members)
	return members, nil
}

// Invalidate marks the corporation's snapshot unpopulated.
func (c *MemberCache) Invalidate(corporationID int64) {
	c.entry(corporationID).Store(nil)
}

// Drop removes the corporation from the cache entirely.
func (c *MemberCache) Drop(corporationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, corporationID)
}
