package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"comparoo/internal/domain/comparison"
	"comparoo/pkg/logger"
)

// cacheKinds maps the gauge label onto the key pattern it counts
var cacheKinds = map[string]string{
	"comparison": "comparison:*",
	"product":    "product:*",
	"metrics":    "metrics:*",
}

// CacheCollector reports the number of live cache entries per kind at scrape time
type CacheCollector struct {
	log     *logger.Logger
	store   comparison.KeyStore
	timeout time.Duration

	entries *prometheus.Desc
}

// NewCacheCollector creates a new cache inventory collector
func NewCacheCollector(store comparison.KeyStore) *CacheCollector {
	return &CacheCollector{
		log:     logger.Get().With("component", "cache_collector"),
		store:   store,
		timeout: 3 * time.Second,
		entries: prometheus.NewDesc(
			"comparoo_cache_entries",
			"Live cache entries by kind",
			[]string{"kind"}, nil,
		),
	}
}

// Describe implements prometheus.Collector
func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.entries
}

// Collect implements prometheus.Collector
func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	for kind, pattern := range cacheKinds {
		keys, err := c.store.Keys(ctx, pattern)
		if err != nil {
			c.log.Warnw("cache_inventory_failed", "kind", kind, "error", err)
			continue
		}
		ch <- prometheus.MustNewConstMetric(c.entries, prometheus.GaugeValue, float64(len(keys)), kind)
	}
}
