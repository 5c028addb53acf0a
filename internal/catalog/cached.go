package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/datallboy/optolib/internal/domain"
	"github.com/datallboy/optolib/internal/infra/logger"
)

// CachedGateway decorates a gateway with a snapshot per table. Fresh rows
// always win; the snapshot is only served when the backend cannot be reached.
type CachedGateway struct {
	inner Gateway
	cache SnapshotCache
	log   *logger.Logger
}

func NewCachedGateway(inner Gateway, cache SnapshotCache, log *logger.Logger) *CachedGateway {
	return &CachedGateway{inner: inner, cache: cache, log: log}
}

func (c *CachedGateway) Name() string { return c.inner.Name() }

func (c *CachedGateway) Categories(ctx context.Context) ([]domain.Category, error) {
	return cachedRows(ctx, c, TableCategories, c.inner.Categories)
}

func (c *CachedGateway) Books(ctx context.Context) ([]domain.Book, error) {
	return cachedRows(ctx, c, TableBooks, c.inner.Books)
}

func (c *CachedGateway) Featured(ctx context.Context) ([]domain.FeaturedEntry, error) {
	return cachedRows(ctx, c, TableFeatured, c.inner.Featured)
}

// Snapshots reports which tables could be served offline right now.
func (c *CachedGateway) Snapshots() map[string]bool {
	out := make(map[string]bool, 3)
	for _, table := range []string{TableCategories, TableBooks, TableFeatured} {
		out[table] = c.cache.Exists(table)
	}
	return out
}

func cachedRows[T any](ctx context.Context, c *CachedGateway, table string, fetch func(context.Context) ([]T, error)) ([]T, error) {
	rows, err := fetch(ctx)
	if err == nil {
		if data, mErr := json.Marshal(rows); mErr == nil {
			if pErr := c.cache.Put(table, data); pErr != nil {
				c.log.Warn("Could not write %s snapshot: %v", table, pErr)
			}
		}
		return rows, nil
	}

	data, cErr := c.cache.Get(table)
	if cErr != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrCatalogUnavailable, table, err)
	}

	var cached []T
	if uErr := json.Unmarshal(data, &cached); uErr != nil {
		return nil, fmt.Errorf("%w: %s snapshot unreadable: %v", domain.ErrCatalogUnavailable, table, uErr)
	}

	c.log.Warn("%s unreachable (%v), serving %d cached %s", c.inner.Name(), err, len(cached), table)
	return cached, nil
}
