package tools

import (
	"context"
	"encoding/json"
	"strings"

	"comparoo/internal/adapters/web"
	"comparoo/pkg/errors"
)

// PageFetcher loads a page as a web_fetch payload
type PageFetcher interface {
	FetchPage(ctx context.Context, url string) (*web.Page, error)
}

// FetchTool runs web_fetch
type FetchTool struct {
	fetcher PageFetcher
}

// NewFetchTool creates the web_fetch tool
func NewFetchTool(fetcher PageFetcher) *FetchTool {
	return &FetchTool{fetcher: fetcher}
}

// Name returns the tool identifier.
func (t *FetchTool) Name() string { return WebFetch }

// Description returns a human description of the tool.
func (t *FetchTool) Description() string {
	return "Fetch a web page and return its title and readable text."
}

// Parameters returns the argument schema.
func (t *FetchTool) Parameters() map[string]interface{} {
	return stringSchema("url", "Absolute http(s) URL of the page to fetch.")
}

// Execute fetches one page. Transport failures are reported in the payload.
func (t *FetchTool) Execute(ctx context.Context, raw json.RawMessage) (interface{}, error) {
	var args struct {
		URL       string `json:"url"`
		SourceURL string `json:"source_url"`
	}
	decodeArgs(raw, &args)

	url := strings.TrimSpace(args.URL)
	if url == "" {
		url = strings.TrimSpace(args.SourceURL)
	}
	if url == "" {
		return nil, errors.NewValidationError("url", "empty fetch url", nil)
	}
	if !web.IsHTTPURL(url) {
		return nil, errors.NewValidationError("url", "invalid URL", url)
	}

	page, err := t.fetcher.FetchPage(ctx, url)
	if err != nil {
		return map[string]interface{}{
			"status": "error",
			"url":    url,
			"error":  err.Error(),
		}, nil
	}
	return page, nil
}
