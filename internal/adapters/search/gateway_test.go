package search

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/internal/adapters/config"
	"comparoo/internal/tools"
	"comparoo/pkg/errors"
)

func newGateway(t *testing.T, handler http.HandlerFunc) *Gateway {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	gw, err := NewGateway(config.SearchConfig{
		GatewayURL:  server.URL + "/search",
		APIKey:      "secret",
		ResultCount: 2,
		Timeout:     time.Second,
	})
	require.NoError(t, err)
	require.NotNil(t, gw)
	return gw
}

func TestGateway_FlatResults(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "best tv 2025", r.URL.Query().Get("q"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"results":[
			{"title":"A","url":"https://a.test","snippet":"first"},
			{"title":"no url"},
			{"title":"B","url":"https://b.test","snippet":"second"},
			{"title":"C","url":"https://c.test","snippet":"third"}
		]}`))
	})

	results, err := gw.Search(context.Background(), "best tv 2025")
	require.NoError(t, err)
	assert.Equal(t, []tools.SearchResult{
		{Title: "A", URL: "https://a.test", Snippet: "first"},
		{Title: "B", URL: "https://b.test", Snippet: "second"},
	}, results)
}

func TestGateway_BraveShape(t *testing.T) {
	gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"web":{"results":[{"title":"A","url":"https://a.test","description":"desc"}]}}`))
	})

	results, err := gw.Search(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "desc", results[0].Snippet)
}

func TestGateway_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		check  func(t *testing.T, err error)
	}{
		{
			name:   "rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.True(t, errors.Is(err, errors.ErrRateLimitExceeded))
			},
		},
		{
			name:   "server error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				assert.Contains(t, err.Error(), "status 500")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := newGateway(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("boom"))
			})
			_, err := gw.Search(context.Background(), "q")
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestNewSearcher(t *testing.T) {
	s, err := NewSearcher(config.SearchConfig{})
	require.NoError(t, err)
	assert.IsType(t, tools.UnavailableSearcher{}, s)

	_, err = NewSearcher(config.SearchConfig{GatewayURL: "not a url"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
