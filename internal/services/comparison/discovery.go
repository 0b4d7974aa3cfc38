package comparison

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/metrics"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const (
	discoveryTemperature = 0.1
	discoveryMaxTokens   = 2000
	discoverySuccess     = "SUCCESS"
)

// DiscoveryConfig bounds the discovery stage
type DiscoveryConfig struct {
	SearchBudget int
	MetricsTTL   time.Duration
}

// metricsCacheEntry is what the discovery stage stores per category
type metricsCacheEntry struct {
	Metrics      []string                  `json:"metrics"`
	CachedAt     time.Time                 `json:"cached_at"`
	Products     []domain.CandidateProduct `json:"products"`
	SearchesUsed int                       `json:"searches_used"`
	Status       string                    `json:"status"`
}

type discoveryPayload struct {
	Status   string            `json:"status"`
	Metrics  []interface{}     `json:"metrics"`
	Products []json.RawMessage `json:"products"`
}

type discoveredProduct struct {
	ProductID       interface{} `json:"product_id"`
	ProductName     string      `json:"product_name"`
	Name            string      `json:"name"`
	DiscoveryMethod string      `json:"discovery_method"`
	Confidence      string      `json:"confidence"`
	Source          string      `json:"source"`
	SourceURL       string      `json:"source_url"`
}

// Discoverer validates the request topic, picks comparison metrics and
// proposes candidate products.
type Discoverer struct {
	loop  LoopRunner
	cache domain.Cache
	cfg   DiscoveryConfig
	now   func() time.Time
	log   *logger.Logger
}

// NewDiscoverer creates the discovery stage
func NewDiscoverer(loop LoopRunner, cache domain.Cache, cfg DiscoveryConfig) *Discoverer {
	return &Discoverer{
		loop:  loop,
		cache: cache,
		cfg:   cfg,
		now:   time.Now,
		log:   logger.Get().With("component", "discovery"),
	}
}

// Run returns metrics and candidates for category. A metrics cache hit
// costs no provider calls.
func (d *Discoverer) Run(ctx context.Context, category, constraints string, useCache bool) (domain.StepOutcome[domain.DiscoveryResult], error) {
	log := d.log.WithRun(ctx)
	var outcome domain.StepOutcome[domain.DiscoveryResult]
	key := MetricsKey(category)

	if useCache {
		var entry metricsCacheEntry
		found, _ := d.cache.GetJSON(ctx, key, &entry)
		hit := found && entry.Metrics != nil && len(entry.Products) > 0
		metrics.RecordCacheLookup("metrics", hit)
		if hit {
			log.Infow("metrics_cache_hit", "category", category)
			cachedAt := entry.CachedAt
			outcome.Data = domain.DiscoveryResult{
				Metrics: domain.MetricsResult{
					Category: category,
					Metrics:  entry.Metrics,
					Cached:   true,
					CachedAt: &cachedAt,
				},
				Candidates: entry.Products,
			}
			outcome.UsedCache = true
			outcome.Metadata = map[string]interface{}{
				"searches_used": entry.SearchesUsed,
				"status":        entry.Status,
				"cached":        true,
			}
			return outcome, nil
		}
		log.Infow("metrics_cache_miss", "category", category)
	}

	result, err := d.loop.Run(ctx, agents.LoopRequest{
		SystemPrompt: discoverySystemPrompt,
		UserPrompt:   discoveryUserPrompt(category, constraints),
		MaxSearches:  d.cfg.SearchBudget,
		MaxTokens:    discoveryMaxTokens,
		Temperature:  discoveryTemperature,
	})
	if err != nil {
		return outcome, err
	}
	outcome.APICalls = 1

	var payload discoveryPayload
	if err := decodeLoopJSON("discovery", result, &payload); err != nil {
		return outcome, err
	}

	status := payload.Status
	if status == "" {
		status = "UNKNOWN"
	}
	if status != discoverySuccess {
		log.Warnw("discovery_not_topical", "status", status, "category", category)
		return outcome, errors.NewValidationError("category", "request is not a topical consumer product comparison", category)
	}

	metricNames, err := parseMetrics(payload.Metrics)
	if err != nil {
		return outcome, err
	}
	candidates := d.parseCandidates(ctx, payload.Products)
	if len(candidates) == 0 {
		return outcome, errors.NewValidationError("products", "discovery did not return any products", nil)
	}

	now := d.now().UTC()
	entry := metricsCacheEntry{
		Metrics:      metricNames,
		CachedAt:     now,
		Products:     candidates,
		SearchesUsed: result.SearchesUsed,
		Status:       status,
	}
	if err := d.cache.SetJSON(ctx, key, entry, d.cfg.MetricsTTL); err != nil {
		log.Warnw("metrics_cache_write_failed", "category", category, "error", err)
	}

	outcome.Data = domain.DiscoveryResult{
		Metrics:    domain.MetricsResult{Category: category, Metrics: metricNames},
		Candidates: candidates,
	}
	outcome.Metadata = map[string]interface{}{
		"searches_used": result.SearchesUsed,
		"status":        status,
		"cached":        false,
	}
	log.Infow("discovery_completed",
		"category", category,
		"metrics", len(metricNames),
		"candidates", len(candidates),
		"searches_used", result.SearchesUsed,
	)
	return outcome, nil
}

// parseMetrics requires every metric to be a string and drops repeats
func parseMetrics(raw []interface{}) ([]string, error) {
	out := make([]string, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, errors.NewValidationError("metrics", "discovery metrics must be a list of strings", item)
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out, nil
}

func (d *Discoverer) parseCandidates(ctx context.Context, raw []json.RawMessage) []domain.CandidateProduct {
	out := make([]domain.CandidateProduct, 0, len(raw))
	for idx, item := range raw {
		var p discoveredProduct
		if err := json.Unmarshal(item, &p); err != nil {
			d.log.WithRun(ctx).Warnw("discovery_product_skipped", "index", idx, "error", err)
			continue
		}

		name := strings.TrimSpace(p.ProductName)
		if name == "" {
			name = strings.TrimSpace(p.Name)
		}
		if name == "" {
			d.log.WithRun(ctx).Warnw("discovery_missing_product_name", "index", idx)
			continue
		}

		id := textValue(p.ProductID)
		if id == "" {
			id = DeriveProductID(name, idx)
		}
		method := p.DiscoveryMethod
		if method == "" {
			method = domain.DiscoveryUnknown
		}
		confidence := p.Confidence
		if confidence == "" {
			confidence = domain.ConfidenceHigh
		}

		out = append(out, domain.CandidateProduct{
			ID:              id,
			Name:            name,
			DiscoveryMethod: method,
			Confidence:      confidence,
			Source:          p.Source,
			SourceURL:       p.SourceURL,
		})
	}
	return out
}
