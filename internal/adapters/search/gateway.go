package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"comparoo/internal/adapters/config"
	"comparoo/internal/tools"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const maxErrorBody = 512

// Gateway queries an HTTP search gateway that fronts the real web search
// provider. Two response shapes are accepted: a flat
// {"results":[{"title","url","snippet"}]} and the Brave-style
// {"web":{"results":[{"title","url","description"}]}}.
type Gateway struct {
	endpoint string
	apiKey   string
	count    int
	client   *http.Client
	limiter  *rate.Limiter
	log      *logger.Logger
}

type gatewayHit struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Snippet     string `json:"snippet"`
	Description string `json:"description"`
}

type gatewayResponse struct {
	Results []gatewayHit `json:"results"`
	Web     struct {
		Results []gatewayHit `json:"results"`
	} `json:"web"`
}

// NewGateway creates a gateway client. It returns nil when no gateway URL is
// configured; use NewSearcher to get a searcher that is always usable.
func NewGateway(cfg config.SearchConfig) (*Gateway, error) {
	if cfg.GatewayURL == "" {
		return nil, nil
	}
	if _, err := url.ParseRequestURI(cfg.GatewayURL); err != nil {
		return nil, errors.NewValidationError("SEARCH_GATEWAY_URL", "must be an absolute URL", cfg.GatewayURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 6 * time.Second
	}
	count := cfg.ResultCount
	if count <= 0 {
		count = 8
	}
	limit := rate.Inf
	burst := 1
	if cfg.RequestsPerMin > 0 {
		limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0)
		burst = cfg.RequestsPerMin / 10
		if burst < 1 {
			burst = 1
		}
	}

	return &Gateway{
		endpoint: cfg.GatewayURL,
		apiKey:   cfg.APIKey,
		count:    count,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(limit, burst),
		log:      logger.Get().With("component", "search_gateway"),
	}, nil
}

// NewSearcher returns the configured gateway or an UnavailableSearcher
func NewSearcher(cfg config.SearchConfig) (tools.Searcher, error) {
	gw, err := NewGateway(cfg)
	if err != nil {
		return nil, err
	}
	if gw == nil {
		logger.Get().Warnw("search_gateway_not_configured")
		return tools.UnavailableSearcher{}, nil
	}
	return gw, nil
}

// Search runs query against the gateway
func (g *Gateway) Search(ctx context.Context, query string) ([]tools.SearchResult, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "search rate limiter")
	}

	u, err := url.Parse(g.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "parse gateway url")
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("count", strconv.Itoa(g.count))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "build search request")
	}
	req.Header.Set("Accept", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "search request")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errors.Wrap(errors.ErrRateLimitExceeded, "search gateway")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("search gateway status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload gatewayResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, errors.Wrap(err, "decode search response")
	}

	hits := payload.Results
	if len(hits) == 0 {
		hits = payload.Web.Results
	}

	results := make([]tools.SearchResult, 0, len(hits))
	for _, h := range hits {
		if h.URL == "" {
			continue
		}
		snippet := h.Snippet
		if snippet == "" {
			snippet = h.Description
		}
		results = append(results, tools.SearchResult{Title: h.Title, URL: h.URL, Snippet: snippet})
		if len(results) == g.count {
			break
		}
	}

	g.log.Debugw("search_completed",
		"query", query,
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results, nil
}

var _ tools.Searcher = (*Gateway)(nil)
