package rbac

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// SnapshotCache caches role and permission snapshots for the resolver.
//
// Entries are tagged with a generation. Readers capture the generation before
// loading from storage and store under it; writers call Invalidate after commit,
// which moves every later reader to a fresh generation. A snapshot read before a
// write therefore never serves a decision made after the write returned.
type SnapshotCache interface {
	Generation(ctx context.Context) (uint64, error)
	GetRole(ctx context.Context, gen uint64, id string) (*Role, bool)
	SetRole(ctx context.Context, gen uint64, role *Role)
	GetPermission(ctx context.Context, gen uint64, slug string) (*Permission, bool)
	SetPermission(ctx context.Context, gen uint64, p *Permission)
	Invalidate(ctx context.Context) error
}

// CacheConfig configures the in-process snapshot cache
type CacheConfig struct {
	MaxEntries int
	TTL        time.Duration
}

// DefaultCacheConfig returns default cache settings
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxEntries: 1024,
		TTL:        5 * time.Minute,
	}
}

// MemoryCache is a process-local SnapshotCache backed by an expirable LRU
type MemoryCache struct {
	generation  atomic.Uint64
	roles       *lru.LRU[string, *Role]
	permissions *lru.LRU[string, *Permission]
}

// NewMemoryCache creates an in-process snapshot cache
func NewMemoryCache(cfg CacheConfig) *MemoryCache {
	if cfg.MaxEntries < 10 {
		cfg.MaxEntries = 10
	}
	return &MemoryCache{
		roles:       lru.NewLRU[string, *Role](cfg.MaxEntries, nil, cfg.TTL),
		permissions: lru.NewLRU[string, *Permission](cfg.MaxEntries, nil, cfg.TTL),
	}
}

func cacheKey(gen uint64, kind, id string) string {
	return fmt.Sprintf("v%d:%s:%s", gen, kind, id)
}

// Generation returns the current generation
func (c *MemoryCache) Generation(ctx context.Context) (uint64, error) {
	return c.generation.Load(), nil
}

// GetRole returns a cached role for the generation
func (c *MemoryCache) GetRole(ctx context.Context, gen uint64, id string) (*Role, bool) {
	return c.roles.Get(cacheKey(gen, "role", id))
}

// SetRole caches a role under the generation it was read in
func (c *MemoryCache) SetRole(ctx context.Context, gen uint64, role *Role) {
	c.roles.Add(cacheKey(gen, "role", role.ID), role)
}

// GetPermission returns a cached permission for the generation
func (c *MemoryCache) GetPermission(ctx context.Context, gen uint64, slug string) (*Permission, bool) {
	return c.permissions.Get(cacheKey(gen, "permission", slug))
}

// SetPermission caches a permission under the generation it was read in
func (c *MemoryCache) SetPermission(ctx context.Context, gen uint64, p *Permission) {
	c.permissions.Add(cacheKey(gen, "permission", p.Slug), p)
}

// Invalidate advances the generation and drops every cached entry
func (c *MemoryCache) Invalidate(ctx context.Context) error {
	c.generation.Add(1)
	c.roles.Purge()
	c.permissions.Purge()
	return nil
}

// Len returns the number of cached entries
func (c *MemoryCache) Len() int {
	return c.roles.Len() + c.permissions.Len()
}

// noCache always misses
type noCache struct{}

// NoCache returns a SnapshotCache that never stores anything
func NoCache() SnapshotCache { return noCache{} }

func (noCache) Generation(context.Context) (uint64, error)                    { return 0, nil }
func (noCache) GetRole(context.Context, uint64, string) (*Role, bool)             { return nil, false }
func (noCache) SetRole(context.Context, uint64, *Role)                            {}
func (noCache) GetPermission(context.Context, uint64, string) (*Permission, bool) { return nil, false }
func (noCache) SetPermission(context.Context, uint64, *Permission)                {}
func (noCache) Invalidate(context.Context) error                                  { return nil }
