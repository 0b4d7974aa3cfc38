package comparison

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/internal/adapters/cache"
	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

const discoveryOK = `{
	"status": "SUCCESS",
	"metrics": ["Battery life", "Weight", "Battery life"],
	"products": [
		{"product_id": "xps13", "product_name": "Dell XPS 13", "discovery_method": "ranking_site"},
		{"name": "MacBook Air"},
		"garbage",
		{"confidence": "low"}
	]
}`

func newTestDiscoverer(loop LoopRunner, c domain.Cache) *Discoverer {
	d := NewDiscoverer(loop, c, DiscoveryConfig{SearchBudget: 6, MetricsTTL: time.Hour})
	d.now = fixedNow
	return d
}

func TestDiscoverer_ParsesAndCaches(t *testing.T) {
	mem := cache.NewMemoryCache()
	loop := &fakeLoop{discovery: func(req agents.LoopRequest) (*agents.LoopResult, error) {
		assert.Equal(t, 6, req.MaxSearches)
		assert.Contains(t, req.UserPrompt, "Requested comparison category: Laptops")
		assert.Contains(t, req.UserPrompt, "User constraints or preferences: None")
		return reply(discoveryOK, 3), nil
	}}
	d := newTestDiscoverer(loop, mem)

	out, err := d.Run(context.Background(), "Laptops", "", true)
	require.NoError(t, err)

	assert.Equal(t, 1, out.APICalls)
	assert.False(t, out.UsedCache)
	assert.Equal(t, []string{"Battery life", "Weight"}, out.Data.Metrics.Metrics)
	require.Len(t, out.Data.Candidates, 2)
	assert.Equal(t, "xps13", out.Data.Candidates[0].ID)
	assert.Equal(t, domain.DiscoveryRankingSite, out.Data.Candidates[0].DiscoveryMethod)
	assert.Equal(t, DeriveProductID("MacBook Air", 1), out.Data.Candidates[1].ID)
	assert.Equal(t, domain.DiscoveryUnknown, out.Data.Candidates[1].DiscoveryMethod)
	assert.Equal(t, 3, out.Metadata["searches_used"])

	again, err := d.Run(context.Background(), " laptops ", "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, loop.count())
	assert.Zero(t, again.APICalls)
	assert.True(t, again.UsedCache)
	assert.True(t, again.Data.Metrics.Cached)
	require.NotNil(t, again.Data.Metrics.CachedAt)
	assert.True(t, fixedNow().Equal(*again.Data.Metrics.CachedAt))
	assert.Equal(t, out.Data.Candidates, again.Data.Candidates)
}

func TestDiscoverer_UseCacheFalseBypassesLookup(t *testing.T) {
	mem := cache.NewMemoryCache()
	loop := &fakeLoop{discovery: func(req agents.LoopRequest) (*agents.LoopResult, error) {
		return reply(discoveryOK, 0), nil
	}}
	d := newTestDiscoverer(loop, mem)

	_, err := d.Run(context.Background(), "Laptops", "", false)
	require.NoError(t, err)
	_, err = d.Run(context.Background(), "Laptops", "", false)
	require.NoError(t, err)
	assert.Equal(t, 2, loop.count())
}

func TestDiscoverer_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"not topical", `{"status":"REJECTED"}`, "category"},
		{"missing status", `{"metrics":[],"products":[{"name":"x"}]}`, "category"},
		{"non string metrics", `{"status":"SUCCESS","metrics":["a",1],"products":[{"name":"x"}]}`, "metrics"},
		{"no products", `{"status":"SUCCESS","metrics":["a"],"products":[]}`, "products"},
		{"invalid json", `{"status":`, "discovery"},
		{"empty", `   `, "discovery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := &fakeLoop{discovery: func(req agents.LoopRequest) (*agents.LoopResult, error) {
				return reply(tt.content, 0), nil
			}}
			_, err := newTestDiscoverer(loop, cache.NewMemoryCache()).Run(context.Background(), "Laptops", "", true)
			require.Error(t, err)

			var ve *errors.ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}
