package comparison

import (
	"context"

	"comparoo/internal/adapters/config"
	"comparoo/internal/adapters/web"
	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/logger"
)

const (
	imageSearchMaxTokens = 200
	imageSearchBudget    = 1
)

// OpenGraphScraper reads the og:image of a page, returning "" on any failure
type OpenGraphScraper interface {
	OpenGraphImage(ctx context.Context, link string) string
}

// ResolvedImage is the outcome of the image fallback chain
type ResolvedImage struct {
	URL      string
	Source   string
	Searches int
}

// ImageResolver picks a product image: payload URL, then Open Graph scrape,
// then an optional image-search round, then a placeholder.
type ImageResolver struct {
	scraper     OpenGraphScraper
	loop        LoopRunner
	cfg         config.ImageConfig
	imageSearch bool
	log         *logger.Logger
}

// NewImageResolver creates a resolver. loop is only used when imageSearch is on.
func NewImageResolver(scraper OpenGraphScraper, loop LoopRunner, cfg config.ImageConfig, imageSearch bool) *ImageResolver {
	return &ImageResolver{
		scraper:     scraper,
		loop:        loop,
		cfg:         cfg,
		imageSearch: imageSearch && loop != nil,
		log:         logger.Get().With("component", "image_resolver"),
	}
}

// Resolve runs the fallback chain. External URLs come back proxied.
func (r *ImageResolver) Resolve(ctx context.Context, productID, productName, link string, payloadURL interface{}, payloadSource string) ResolvedImage {
	log := r.log.WithRun(ctx)
	res := ResolvedImage{Source: payloadSource}

	if u, ok := stringValue(payloadURL); ok && web.IsHTTPURL(u) {
		res.URL = u
	} else {
		log.Debugw("image_url_missing_or_invalid", "product", productName)
		switch og := r.scrape(ctx, link); {
		case og != "":
			res.URL, res.Source = og, domain.ImageSourceOpenGraph
		case r.imageSearch:
			res.URL, res.Source, res.Searches = r.search(ctx, productName)
		default:
			log.Debugw("image_search_skipped", "product", productName, "reason", "disabled")
		}
	}

	if !web.IsHTTPURL(res.URL) {
		return ResolvedImage{
			URL:      PlaceholderImageURL(r.cfg.PlaceholderBase, productID),
			Source:   domain.ImageSourcePlaceholder,
			Searches: res.Searches,
		}
	}

	if proxied := ProxyImageURL(res.URL, r.cfg.OwnDomain, r.cfg.ProxyBase); proxied != res.URL {
		res.URL = proxied
		if res.Source == "" {
			res.Source = domain.ImageSourceProxied
		}
	}
	return res
}

func (r *ImageResolver) scrape(ctx context.Context, link string) string {
	if r.scraper == nil || !web.IsHTTPURL(link) {
		return ""
	}
	return r.scraper.OpenGraphImage(ctx, link)
}

// search runs one dedicated image-search conversation and reports the
// searches it actually spent. Every failure yields an empty URL so the caller
// falls through to the placeholder.
func (r *ImageResolver) search(ctx context.Context, productName string) (string, string, int) {
	system, user := imageSearchPrompts(productName)
	result, err := r.loop.Run(ctx, agents.LoopRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxSearches:  imageSearchBudget,
		MaxTokens:    imageSearchMaxTokens,
		Temperature:  0,
	})
	if err != nil {
		r.log.WithRun(ctx).Warnw("image_search_failed", "product", productName, "error", err)
		return "", "", 0
	}
	searches := result.SearchesUsed

	var payload struct {
		ImageURL    interface{} `json:"image_url"`
		ImageSource interface{} `json:"image_source"`
	}
	if err := decodeLoopJSON("image_search", result, &payload); err != nil {
		r.log.WithRun(ctx).Warnw("image_search_parse_failed", "product", productName, "error", err)
		return "", "", searches
	}

	u, ok := stringValue(payload.ImageURL)
	if !ok || !web.IsHTTPURL(u) {
		r.log.WithRun(ctx).Warnw("image_search_invalid_url", "product", productName, "url", payload.ImageURL)
		return "", "", searches
	}
	source := textValue(payload.ImageSource)
	if source == "" {
		source = domain.ImageSourceSearch
	}
	return u, source, searches
}
