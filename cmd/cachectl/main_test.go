package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/internal/adapters/cache"
	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/services/comparison"
	"comparoo/pkg/errors"
)

func seeded(t *testing.T) *comparison.CacheAdmin {
	t.Helper()
	ctx := context.Background()
	mem := cache.NewMemoryCache()
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for _, key := range []string{
		comparison.ProductKey(domain.CandidateProduct{ID: "p1"}, now),
		comparison.ComparisonKey("Laptops", ""),
		comparison.MetricsKey("Laptops"),
	} {
		require.NoError(t, mem.SetJSON(ctx, key, "x", time.Hour))
	}
	return comparison.NewCacheAdmin(mem)
}

func TestRun(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want map[string]interface{}
	}{
		{"stats", []string{"stats"}, map[string]interface{}{"queries": 1.0, "products": 1.0, "metrics": 1.0, "total": 3.0}},
		{"invalidate product", []string{"invalidate-product", "-id", "p1"}, map[string]interface{}{"product_id": "p1", "product_name": "", "deleted": 1.0}},
		{"invalidate query", []string{"invalidate-query", "-category", "laptops"}, map[string]interface{}{"category": "laptops", "constraints": "", "deleted": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			require.NoError(t, run(context.Background(), tt.args, seeded(t), &out))

			var got map[string]interface{}
			require.NoError(t, json.Unmarshal(out.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunErrors(t *testing.T) {
	admin := seeded(t)
	var out bytes.Buffer

	assert.Error(t, run(context.Background(), nil, admin, &out))
	assert.Error(t, run(context.Background(), []string{"flush"}, admin, &out))
	assert.Error(t, run(context.Background(), []string{"invalidate-product", "-bogus"}, admin, &out))

	err := run(context.Background(), []string{"invalidate-query", "-category", "x"}, admin, &out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, out.String())
}
