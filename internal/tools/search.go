package tools

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const maxSnippetChars = 300

// SearchResult is one hit returned by a search provider
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher executes a web search. Providers live outside this module.
type Searcher interface {
	Search(ctx context.Context, query string) ([]SearchResult, error)
}

// UnavailableSearcher fails every query; used when no provider is configured
type UnavailableSearcher struct{}

// Search always returns ErrUnavailable
func (UnavailableSearcher) Search(ctx context.Context, query string) ([]SearchResult, error) {
	return nil, errors.Wrap(errors.ErrUnavailable, "search provider not configured")
}

// RankedResult is a search hit as presented to the model
type RankedResult struct {
	Position int    `json:"position"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Snippet  string `json:"snippet"`
}

// SearchResponse is the web_search tool payload
type SearchResponse struct {
	Results []RankedResult `json:"results"`
}

type searchMemoKey struct{}

// SearchMemo holds web_search results keyed by lower-cased query for one run
type SearchMemo struct {
	mu      sync.RWMutex
	results map[string][]SearchResult
}

// WithSearchMemo attaches a fresh memo to ctx. Searches issued under the
// returned context share results; searches without one always hit the provider.
func WithSearchMemo(ctx context.Context) context.Context {
	return context.WithValue(ctx, searchMemoKey{}, &SearchMemo{results: make(map[string][]SearchResult)})
}

func searchMemoFrom(ctx context.Context) *SearchMemo {
	memo, _ := ctx.Value(searchMemoKey{}).(*SearchMemo)
	return memo
}

func (m *SearchMemo) get(key string) ([]SearchResult, bool) {
	if m == nil {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	results, ok := m.results[key]
	return results, ok
}

// put skips empty result sets so a transient miss is retried
func (m *SearchMemo) put(key string, results []SearchResult) {
	if m == nil || len(results) == 0 {
		return
	}
	m.mu.Lock()
	m.results[key] = results
	m.mu.Unlock()
}

// SearchTool runs web_search, memoizing through the run's SearchMemo
type SearchTool struct {
	searcher Searcher
	log      *logger.Logger
}

// NewSearchTool creates the web_search tool
func NewSearchTool(searcher Searcher) *SearchTool {
	if searcher == nil {
		searcher = UnavailableSearcher{}
	}
	return &SearchTool{
		searcher: searcher,
		log:      logger.Get().With("component", "web_search"),
	}
}

// Name returns the tool identifier.
func (t *SearchTool) Name() string { return WebSearch }

// Description returns a human description of the tool.
func (t *SearchTool) Description() string {
	return "Search the web for up-to-date information."
}

// Parameters returns the argument schema.
func (t *SearchTool) Parameters() map[string]interface{} {
	return stringSchema("query", "The search query to issue.")
}

// Execute runs one search
func (t *SearchTool) Execute(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		Query string `json:"query"`
	}
	decodeArgs(raw, &args)

	query := strings.TrimSpace(args.Query)
	if query == "" {
		return nil, errors.NewValidationError("query", "empty search query", nil)
	}

	key := strings.ToLower(query)
	memo := searchMemoFrom(ctx)
	results, cached := memo.get(key)

	if !cached {
		var err error
		results, err = t.searcher.Search(ctx, query)
		if err != nil {
			return nil, errors.Wrap(err, "search failed")
		}
		memo.put(key, results)
	}

	t.log.Debugw("web_search_executed", "query", truncate(query, 100), "results", len(results), "memoized", cached)

	resp := SearchResponse{Results: make([]RankedResult, 0, len(results))}
	for i, r := range results {
		resp.Results = append(resp.Results, RankedResult{
			Position: i + 1,
			Title:    r.Title,
			URL:      r.URL,
			Snippet:  truncate(r.Snippet, maxSnippetChars),
		})
	}
	return resp, nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
