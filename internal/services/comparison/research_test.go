package comparison

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/internal/adapters/cache"
	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

func researchReply(name string) string {
	return fmt.Sprintf(`{
		"title": "%s",
		"link": "https://shop.test/%s",
		"price": "$1,999.00",
		"image_url": "https://img.test/%s.jpg",
		"summary": "summary of %s",
		"pros": ["fast", 7],
		"cons": ["pricey"],
		"full_review": "long review",
		"rating": 4.5,
		"confidence": "high"
	}`, name, name, name, name)
}

func newTestResearcher(loop LoopRunner, c domain.Cache, concurrency int) *Researcher {
	r := NewResearcher(loop, c, NewImageResolver(&fakeScraper{}, nil, testImages, false), ResearchConfig{
		Concurrency:  concurrency,
		SearchBudget: 1,
		ProductTTL:   time.Hour,
	})
	r.now = fixedNow
	return r
}

func candidates(n int) []domain.CandidateProduct {
	out := make([]domain.CandidateProduct, n)
	for i := range out {
		out[i] = domain.CandidateProduct{ID: fmt.Sprintf("p%02d", n-i), Name: fmt.Sprintf("item%02d", n-i)}
	}
	return out
}

func TestResearcher_LiveResearchNormalizesAndCaches(t *testing.T) {
	mem := cache.NewMemoryCache()
	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		assert.Equal(t, 1, req.MaxSearches)
		assert.Equal(t, 2000, req.MaxTokens)
		assert.Equal(t, 0.1, req.Temperature)
		return reply("```json\n"+researchReply(product)+"\n```", 1), nil
	}}
	r := newTestResearcher(loop, mem, 4)

	out, err := r.Run(context.Background(), candidates(2), []string{"battery"}, true)
	require.NoError(t, err)
	require.Len(t, out.Data, 2)

	first := out.Data[0]
	assert.Equal(t, "p01", first.Candidate.ID)
	assert.Equal(t, "item01", first.Title)
	assert.Equal(t, int64(199900), first.PriceCents)
	assert.Equal(t, "https://images.weserv.nl/?url=ssl:img.test/item01.jpg", first.ImageURL)
	assert.Equal(t, []string{"fast", "7"}, first.Pros)
	assert.Equal(t, "4.5", first.Rating)
	assert.Equal(t, "high", first.ExtractionConfidence)
	assert.Equal(t, "summary of item01", first.Description)

	assert.Equal(t, 2, out.APICalls)
	assert.False(t, out.UsedCache)
	assert.Equal(t, 2, out.Metadata["searches_used"])

	var cached domain.ResearchedProduct
	found, err := mem.GetJSON(context.Background(), "product:p01:20250601", &cached)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, first, cached)
}

func TestResearcher_OptionalFieldsOfAnyType(t *testing.T) {
	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		return reply(`{
			"title": "Sony WH-1000XM5",
			"purchase_link": "https://shop.test/xm5",
			"price": 399,
			"image_url": "https://img.test/xm5.jpg",
			"summary": 42,
			"pros": "great ANC",
			"cons": null,
			"full_review": ["not", "a", "string"],
			"review_url": false,
			"extraction_confidence": 0.9,
			"is_affiliate": "false"
		}`, 1), nil
	}}
	r := newTestResearcher(loop, cache.NewMemoryCache(), 1)

	out, err := r.Run(context.Background(), candidates(1), nil, false)
	require.NoError(t, err)
	require.Len(t, out.Data, 1)
	assert.Empty(t, out.Metadata["failures"])

	p := out.Data[0]
	assert.Equal(t, "https://shop.test/xm5", p.Link)
	assert.Equal(t, int64(39900), p.PriceCents)
	assert.Equal(t, "42", p.Summary)
	assert.Equal(t, []string{"great ANC"}, p.Pros)
	assert.Empty(t, p.Cons)
	assert.Equal(t, "0.9", p.ExtractionConfidence)
	assert.False(t, p.IsAffiliate)
}

func TestBoolValue(t *testing.T) {
	tests := []struct {
		in   interface{}
		want bool
	}{
		{true, true},
		{"true", true},
		{" Yes ", true},
		{json.Number("1"), true},
		{false, false},
		{"false", false},
		{json.Number("0"), false},
		{nil, false},
		{[]interface{}{true}, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, boolValue(tt.in), "%v", tt.in)
	}
}

func TestResearcher_CacheHitSkipsProvider(t *testing.T) {
	mem := cache.NewMemoryCache()
	stored := domain.ResearchedProduct{Candidate: domain.CandidateProduct{ID: "p01"}, Title: "cached", Link: "https://x.test"}
	require.NoError(t, mem.SetJSON(context.Background(), "product:p01:20250601", stored, time.Hour))

	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		return reply(researchReply(product), 1), nil
	}}
	r := newTestResearcher(loop, mem, 1)

	out, err := r.Run(context.Background(), candidates(2), nil, true)
	require.NoError(t, err)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "cached", out.Data[0].Title)
	assert.Equal(t, 1, loop.count())
	assert.Equal(t, 1, out.APICalls)
	assert.True(t, out.UsedCache)
	assert.Equal(t, 1, out.Metadata["cache_hits"])
}

func TestResearcher_FailuresAreIsolated(t *testing.T) {
	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		switch product {
		case "item01":
			return nil, errors.NewProviderError("test", errors.ProviderTransport, 502, errors.New("bad gateway"))
		case "item02":
			return reply(`{"title":"no link"}`, 1), nil
		case "item03":
			return reply(`not json`, 0), nil
		default:
			return reply(researchReply(product), 1), nil
		}
	}}
	r := newTestResearcher(loop, cache.NewMemoryCache(), 2)

	out, err := r.Run(context.Background(), candidates(5), nil, false)
	require.NoError(t, err)
	require.Len(t, out.Data, 2)
	assert.Equal(t, "p04", out.Data[0].Candidate.ID)
	assert.Equal(t, "p05", out.Data[1].Candidate.ID)

	failures := out.Metadata["failures"].([]ResearchFailure)
	assert.Len(t, failures, 3)
	// searches: 2 successes + 1 from the missing-link reply; plus one per failure
	assert.Equal(t, 3+3, out.APICalls)
}

func TestResearcher_BoundsConcurrency(t *testing.T) {
	var inFlight, peak int32
	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		n := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&peak)
			if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		return reply(researchReply(product), 0), nil
	}}
	r := newTestResearcher(loop, cache.NewMemoryCache(), 3)

	out, err := r.Run(context.Background(), candidates(10), nil, false)
	require.NoError(t, err)
	assert.Len(t, out.Data, 10)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(3))
	assert.Equal(t, int32(3), atomic.LoadInt32(&peak))
}

func TestResearcher_CancelledWorkersAreTimedOut(t *testing.T) {
	loop := &fakeLoop{research: func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	r := newTestResearcher(loop, cache.NewMemoryCache(), 1)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out, err := r.Run(ctx, candidates(3), nil, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, out.Data)
	assert.Equal(t, 3, out.Metadata["timed_out"])
	assert.Empty(t, out.Metadata["failures"])
	assert.Zero(t, out.APICalls)
}

func TestResearcher_NoCandidates(t *testing.T) {
	r := newTestResearcher(&fakeLoop{}, cache.NewMemoryCache(), 1)
	out, err := r.Run(context.Background(), nil, nil, true)
	require.NoError(t, err)
	assert.Empty(t, out.Data)
	assert.Zero(t, out.APICalls)
}
