package comparison

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
)

func TestImageResolver_PayloadURL(t *testing.T) {
	scraper := &fakeScraper{}
	r := NewImageResolver(scraper, nil, testImages, false)

	got := r.Resolve(context.Background(), "p1", "TV", "https://shop.test/tv", "https://img.test/tv.jpg", "")
	assert.Equal(t, "https://images.weserv.nl/?url=ssl:img.test/tv.jpg", got.URL)
	assert.Equal(t, domain.ImageSourceProxied, got.Source)
	assert.Zero(t, got.Searches)
	assert.Empty(t, scraper.calls)
}

func TestImageResolver_KeepsModelSource(t *testing.T) {
	r := NewImageResolver(&fakeScraper{}, nil, testImages, false)

	got := r.Resolve(context.Background(), "p1", "TV", "", "https://img.test/tv.jpg", "manufacturer")
	assert.Equal(t, "manufacturer", got.Source)
}

func TestImageResolver_OpenGraphFallback(t *testing.T) {
	scraper := &fakeScraper{images: map[string]string{"https://shop.test/tv": "http://cdn.shop.test/og.png"}}
	r := NewImageResolver(scraper, nil, testImages, false)

	got := r.Resolve(context.Background(), "p1", "TV", "https://shop.test/tv", "not-a-url", "")
	assert.Equal(t, "https://images.weserv.nl/?url=cdn.shop.test/og.png", got.URL)
	assert.Equal(t, domain.ImageSourceOpenGraph, got.Source)
	assert.Equal(t, []string{"https://shop.test/tv"}, scraper.calls)
}

func TestImageResolver_ImageSearch(t *testing.T) {
	tests := []struct {
		name         string
		result       *agents.LoopResult
		err          error
		wantURL      string
		wantSource   string
		wantSearches int
	}{
		{
			name:         "found",
			result:       reply(`{"image_url":"https://img.test/a.jpg","image_source":"retailer"}`, 1),
			wantURL:      "https://images.weserv.nl/?url=ssl:img.test/a.jpg",
			wantSource:   "retailer",
			wantSearches: 1,
		},
		{
			name:         "invalid url",
			result:       reply(`{"image_url":"ftp://img.test/a.jpg"}`, 1),
			wantURL:      "https://cdn.comparoo.com/placeholder/p9.png",
			wantSource:   domain.ImageSourcePlaceholder,
			wantSearches: 1,
		},
		{
			name:       "answered without searching",
			result:     reply(`{}`, 0),
			wantURL:    "https://cdn.comparoo.com/placeholder/p9.png",
			wantSource: domain.ImageSourcePlaceholder,
		},
		{
			name:       "loop error",
			err:        errors.New("provider down"),
			wantURL:    "https://cdn.comparoo.com/placeholder/p9.png",
			wantSource: domain.ImageSourcePlaceholder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loop := &fakeLoop{image: func(req agents.LoopRequest) (*agents.LoopResult, error) {
				assert.Equal(t, 1, req.MaxSearches)
				return tt.result, tt.err
			}}
			r := NewImageResolver(&fakeScraper{}, loop, testImages, true)

			got := r.Resolve(context.Background(), "p9", "Camera", "https://shop.test/cam", nil, "")
			assert.Equal(t, tt.wantURL, got.URL)
			assert.Equal(t, tt.wantSource, got.Source)
			assert.Equal(t, tt.wantSearches, got.Searches)
			require.Equal(t, 1, loop.count())
		})
	}
}

func TestImageResolver_Placeholder(t *testing.T) {
	r := NewImageResolver(&fakeScraper{}, nil, testImages, true)

	got := r.Resolve(context.Background(), "p3", "TV", "https://shop.test/tv", "", "")
	assert.Equal(t, "https://cdn.comparoo.com/placeholder/p3.png", got.URL)
	assert.Equal(t, domain.ImageSourcePlaceholder, got.Source)
	assert.Zero(t, got.Searches)
}
