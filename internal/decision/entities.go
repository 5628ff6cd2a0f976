package decision

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"meetsense/internal/logging"
	"meetsense/internal/store"
)

// RefreshFunc fetches the current entity list from the collaborator store.
type RefreshFunc func(ctx context.Context) ([]string, error)

// EntityCache is a short-TTL cache of known organization names. It is the
// only cross-request state in the decision layer.
//
// Concurrency contract: a refresh in flight never blocks reads of a
// still-valid value, concurrent refreshes of an expired value are coalesced,
// and a failed refresh never evicts the existing entry.
type EntityCache struct {
	refresh  RefreshFunc
	fallback []string
	ttl      time.Duration
	now      func() time.Time

	group singleflight.Group

	mu     sync.RWMutex
	names  []string
	expiry time.Time
}

// EntityCacheOption customizes cache construction.
type EntityCacheOption func(*EntityCache)

// WithTTL overrides the default 5-minute TTL.
func WithTTL(ttl time.Duration) EntityCacheOption {
	return func(c *EntityCache) { c.ttl = ttl }
}

// WithClock injects a clock, letting tests control expiry.
func WithClock(now func() time.Time) EntityCacheOption {
	return func(c *EntityCache) { c.now = now }
}

// WithFallback overrides the static degraded-mode entity list.
func WithFallback(names []string) EntityCacheOption {
	return func(c *EntityCache) { c.fallback = names }
}

// NewEntityCache builds a cache around the given refresh function.
func NewEntityCache(refresh RefreshFunc, opts ...EntityCacheOption) *EntityCache {
	c := &EntityCache{
		refresh:  refresh,
		fallback: store.FallbackCompanies(),
		ttl:      5 * time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewEntityCacheFromStore builds a cache backed by an EntityStore.
func NewEntityCacheFromStore(es store.EntityStore, productScope string, opts ...EntityCacheOption) *EntityCache {
	return NewEntityCache(func(ctx context.Context) ([]string, error) {
		companies, err := es.GetCompanies(ctx, productScope)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(companies))
		for _, company := range companies {
			if company.Name != "" {
				names = append(names, company.Name)
			}
		}
		return names, nil
	}, opts...)
}

// Names returns the known entity names, refreshing through singleflight when
// the cached value has expired. Entity-store failures never surface: the
// stale value is kept if one exists, otherwise the static fallback is used.
func (c *EntityCache) Names(ctx context.Context) []string {
	c.mu.RLock()
	names, expiry := c.names, c.expiry
	c.mu.RUnlock()

	if names != nil && c.now().Before(expiry) {
		return cloneNames(names)
	}

	fresh, err, _ := c.group.Do("entities", func() (interface{}, error) {
		timer := logging.StartTimer(logging.CategoryEntities, "EntityCache.refresh")
		defer timer.Stop()
		return c.refresh(ctx)
	})
	if err != nil {
		logging.Get(logging.CategoryEntities).Warn("entity refresh failed: %v", err)
		// Failed refresh must not evict; serve stale or fall back.
		if names != nil {
			return cloneNames(names)
		}
		logging.Entities("serving static fallback entity list (%d names)", len(c.fallback))
		return cloneNames(c.fallback)
	}

	refreshed, ok := fresh.([]string)
	if !ok || len(refreshed) == 0 {
		if names != nil {
			return cloneNames(names)
		}
		return cloneNames(c.fallback)
	}

	c.mu.Lock()
	c.names = refreshed
	c.expiry = c.now().Add(c.ttl)
	c.mu.Unlock()

	logging.EntitiesDebug("entity cache refreshed: %d names, ttl %s", len(refreshed), c.ttl)
	return cloneNames(refreshed)
}

// Invalidate drops the cached value so the next read refreshes. Wired to the
// collaborator store's explicit refresh signal.
func (c *EntityCache) Invalidate() {
	c.mu.Lock()
	c.names = nil
	c.expiry = time.Time{}
	c.mu.Unlock()
	logging.EntitiesDebug("entity cache invalidated")
}

// Snapshot returns the cached names and their expiry without refreshing.
func (c *EntityCache) Snapshot() ([]string, time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneNames(c.names), c.expiry
}

func cloneNames(names []string) []string {
	if names == nil {
		return nil
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}
