package comparison

import (
	"context"

	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// CacheStats counts cached entries by kind
type CacheStats struct {
	Queries  int `json:"queries"`
	Products int `json:"products"`
	Metrics  int `json:"metrics"`
	Total    int `json:"total"`
}

// CacheAdmin invalidates and inventories cached comparisons
type CacheAdmin struct {
	store domain.KeyStore
	log   *logger.Logger
}

// NewCacheAdmin creates a cache administrator over store
func NewCacheAdmin(store domain.KeyStore) *CacheAdmin {
	return &CacheAdmin{
		store: store,
		log:   logger.Get().With("component", "cache_admin"),
	}
}

// InvalidateProduct deletes every cached research day for a product
func (a *CacheAdmin) InvalidateProduct(ctx context.Context, productID, productName string) (int, error) {
	patterns := ProductKeyPatterns(productID, productName)
	if len(patterns) == 0 {
		return 0, errors.NewValidationError("product", "product id or name is required", nil)
	}

	var keys []string
	seen := make(map[string]struct{})
	for _, pattern := range patterns {
		matched, err := a.store.Keys(ctx, pattern)
		if err != nil {
			return 0, errors.Wrapf(err, "list %s", pattern)
		}
		for _, k := range matched {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}

	deleted, err := a.store.Delete(ctx, keys...)
	if err != nil {
		return 0, err
	}
	a.log.Infow("product_cache_invalidated", "product_id", productID, "product", productName, "deleted", deleted)
	return deleted, nil
}

// InvalidateQuery deletes a cached comparison; it reports whether one existed
func (a *CacheAdmin) InvalidateQuery(ctx context.Context, category, constraints string) (bool, error) {
	if _, err := ValidateRequest(domain.CompareRequest{Category: category, Constraints: constraints}); err != nil {
		return false, err
	}

	deleted, err := a.store.Delete(ctx, ComparisonKey(category, constraints))
	if err != nil {
		return false, err
	}
	a.log.Infow("query_cache_invalidated", "category", category, "constraints", constraints, "found", deleted > 0)
	return deleted > 0, nil
}

// Stats counts cached comparisons, products and metrics
func (a *CacheAdmin) Stats(ctx context.Context) (CacheStats, error) {
	var stats CacheStats
	for _, c := range []struct {
		prefix string
		dest   *int
	}{
		{ComparisonKeyPrefix, &stats.Queries},
		{ProductKeyPrefix, &stats.Products},
		{MetricsKeyPrefix, &stats.Metrics},
	} {
		keys, err := a.store.Keys(ctx, c.prefix+"*")
		if err != nil {
			return CacheStats{}, errors.Wrapf(err, "count %s", c.prefix)
		}
		*c.dest = len(keys)
	}
	stats.Total = stats.Queries + stats.Products + stats.Metrics
	return stats, nil
}
