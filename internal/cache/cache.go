package cache

import (
	"context"
	"slices"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"orderdesk/backend/internal/domain"
)

// MenuCache holds sellable menu snapshots per store.
type MenuCache interface {
	Get(ctx context.Context, storeID string) ([]domain.MenuSnapshotLine, bool, error)
	Set(ctx context.Context, storeID string, menu []domain.MenuSnapshotLine, ttl time.Duration) error
}

type NoopMenuCache struct{}

func (NoopMenuCache) Get(_ context.Context, _ string) ([]domain.MenuSnapshotLine, bool, error) {
	return nil, false, nil
}

func (NoopMenuCache) Set(_ context.Context, _ string, _ []domain.MenuSnapshotLine, _ time.Duration) error {
	return nil
}

// LocalMenuCache is an in-process cache used when Redis is not configured.
type LocalMenuCache struct {
	items *gocache.Cache
}

func NewLocalMenuCache(defaultTTL time.Duration) *LocalMenuCache {
	if defaultTTL <= 0 {
		defaultTTL = time.Minute
	}
	return &LocalMenuCache{items: gocache.New(defaultTTL, 2*defaultTTL)}
}

func (c *LocalMenuCache) Get(_ context.Context, storeID string) ([]domain.MenuSnapshotLine, bool, error) {
	cached, found := c.items.Get(menuKey(storeID))
	if !found {
		return nil, false, nil
	}
	menu, ok := cached.([]domain.MenuSnapshotLine)
	if !ok {
		c.items.Delete(menuKey(storeID))
		return nil, false, nil
	}
	return slices.Clone(menu), true, nil
}

func (c *LocalMenuCache) Set(_ context.Context, storeID string, menu []domain.MenuSnapshotLine, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	c.items.Set(menuKey(storeID), slices.Clone(menu), ttl)
	return nil
}

func menuKey(storeID string) string {
	return "orderdesk:menu:" + storeID
}
