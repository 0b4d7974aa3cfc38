package comparison

import (
	"context"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/metrics"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const (
	researchTemperature = 0.1
	researchMaxTokens   = 2000
)

// Research worker statuses
const (
	workerCacheHit = "cache_hit"
	workerSuccess  = "success"
	workerFailure  = "failure"
	workerTimeout  = "timeout"
)

// ResearchConfig bounds the research fan-out
type ResearchConfig struct {
	Concurrency  int
	SearchBudget int
	ProductTTL   time.Duration
}

// ResearchFailure records a product whose research failed
type ResearchFailure struct {
	Product string `json:"product"`
	Error   string `json:"error"`
}

// WorkerTiming records how long one worker waited and ran
type WorkerTiming struct {
	Product    string  `json:"product"`
	WaitMs     float64 `json:"wait_ms"`
	DurationMs float64 `json:"duration_ms"`
	Searches   int     `json:"searches"`
	FromCache  bool    `json:"from_cache"`
	Error      string  `json:"error,omitempty"`
}

// researchPayload is the research agent's JSON reply. Everything except the
// list fields stays untyped: models mix strings, numbers and booleans, and a
// stray type on an optional field must not discard the product.
type researchPayload struct {
	Title                interface{} `json:"title"`
	Link                 interface{} `json:"link"`
	PurchaseLink         interface{} `json:"purchase_link"`
	Price                interface{} `json:"price"`
	PriceDisplay         interface{} `json:"price_display"`
	PriceFormatted       interface{} `json:"price_formatted"`
	PriceText            interface{} `json:"price_text"`
	PriceString          interface{} `json:"price_string"`
	PriceStr             interface{} `json:"price_str"`
	ImageURL             interface{} `json:"image_url"`
	ImageSource          interface{} `json:"image_source"`
	Summary              interface{} `json:"summary"`
	Description          interface{} `json:"description"`
	Pros                 interface{} `json:"pros"`
	Cons                 interface{} `json:"cons"`
	FullReview           interface{} `json:"full_review"`
	ReviewURL            interface{} `json:"review_url"`
	Rating               interface{} `json:"rating"`
	ExtractionConfidence interface{} `json:"extraction_confidence"`
	Confidence           interface{} `json:"confidence"`
	IsAffiliate          interface{} `json:"is_affiliate"`
}

func (p researchPayload) priceSources() []PriceSource {
	byKey := map[string]interface{}{
		"price_display":   p.PriceDisplay,
		"price_formatted": p.PriceFormatted,
		"price_text":      p.PriceText,
		"price_string":    p.PriceString,
		"price_str":       p.PriceStr,
	}

	sources := []PriceSource{{Key: "price", Value: p.Price}}
	for _, key := range PriceStringKeys {
		if v := byKey[key]; v != nil && v != "" {
			sources = append(sources, PriceSource{Key: key, Value: v})
		}
	}
	return sources
}

// workerResult is produced by exactly one worker and read after Wait
type workerResult struct {
	product  *domain.ResearchedProduct
	searches int
	cacheHit bool
	timedOut bool
	err      error
	timing   WorkerTiming
}

// Researcher fans research out over candidates with bounded concurrency
type Researcher struct {
	loop   LoopRunner
	cache  domain.Cache
	images *ImageResolver
	cfg    ResearchConfig
	now    func() time.Time
	log    *logger.Logger
}

// NewResearcher creates the research stage
func NewResearcher(loop LoopRunner, cache domain.Cache, images *ImageResolver, cfg ResearchConfig) *Researcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Researcher{
		loop:   loop,
		cache:  cache,
		images: images,
		cfg:    cfg,
		now:    time.Now,
		log:    logger.Get().With("component", "research"),
	}
}

// Run researches every candidate. Failures are isolated per candidate; the
// returned error is non-nil only when ctx ended.
func (r *Researcher) Run(ctx context.Context, candidates []domain.CandidateProduct, metricNames []string, useCache bool) (domain.StepOutcome[[]domain.ResearchedProduct], error) {
	outcome := domain.StepOutcome[[]domain.ResearchedProduct]{
		Data:     []domain.ResearchedProduct{},
		Metadata: map[string]interface{}{"searches_used": 0, "cache_hits": 0, "failures": []ResearchFailure{}, "timed_out": 0},
	}
	if len(candidates) == 0 {
		return outcome, nil
	}

	sem := semaphore.NewWeighted(int64(r.cfg.Concurrency))
	results := make([]workerResult, len(candidates))

	var g errgroup.Group
	for i, candidate := range candidates {
		i, candidate := i, candidate
		g.Go(func() error {
			results[i] = r.work(ctx, sem, candidate, metricNames, useCache)
			return nil
		})
	}
	_ = g.Wait()

	var (
		searches int
		hits     int
		timedOut int
		failures = []ResearchFailure{}
		timings  = make([]WorkerTiming, 0, len(results))
	)
	for _, res := range results {
		timings = append(timings, res.timing)
		searches += res.searches
		switch {
		case res.timedOut:
			timedOut++
			metrics.RecordResearchWorker(workerTimeout)
		case res.err != nil:
			failures = append(failures, ResearchFailure{Product: res.timing.Product, Error: res.err.Error()})
			metrics.RecordResearchWorker(workerFailure)
		case res.cacheHit:
			hits++
			outcome.Data = append(outcome.Data, *res.product)
			metrics.RecordResearchWorker(workerCacheHit)
		default:
			outcome.Data = append(outcome.Data, *res.product)
			metrics.RecordResearchWorker(workerSuccess)
		}
	}

	sort.SliceStable(outcome.Data, func(a, b int) bool {
		return outcome.Data[a].Candidate.ID < outcome.Data[b].Candidate.ID
	})

	outcome.APICalls = searches + len(failures)
	outcome.UsedCache = hits > 0
	outcome.Metadata = map[string]interface{}{
		"searches_used":  searches,
		"cache_hits":     hits,
		"failures":       failures,
		"timed_out":      timedOut,
		"worker_timings": timings,
	}

	r.log.WithRun(ctx).Infow("product_research_summary",
		"candidates", len(candidates),
		"researched", len(outcome.Data),
		"cache_hits", hits,
		"failures", len(failures),
		"timed_out", timedOut,
		"searches_used", searches,
	)

	if err := ctx.Err(); err != nil {
		return outcome, errors.Wrap(err, "research")
	}
	return outcome, nil
}

func (r *Researcher) work(ctx context.Context, sem *semaphore.Weighted, candidate domain.CandidateProduct, metricNames []string, useCache bool) (res workerResult) {
	log := r.log.WithRun(ctx)
	start := time.Now()
	res.timing.Product = candidate.Name

	defer func() {
		if p := recover(); p != nil {
			log.Errorw("research_worker_panic", "product", candidate.Name, "panic", p)
			res.product = nil
			res.err = errors.Newf("research worker panic: %v", p)
			res.timing.Error = res.err.Error()
		}
	}()

	if useCache {
		var cached domain.ResearchedProduct
		found, _ := r.cache.GetJSON(ctx, ProductKey(candidate, r.now()), &cached)
		metrics.RecordCacheLookup("product", found)
		if found {
			res.product = &cached
			res.cacheHit = true
			res.timing.FromCache = true
			res.timing.WaitMs = msSince(start)
			log.Debugw("research_worker_cache_hit", "product", candidate.Name)
			return res
		}
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		res.timedOut = true
		res.timing.WaitMs = msSince(start)
		res.timing.Error = err.Error()
		log.Warnw("research_worker_timed_out", "product", candidate.Name, "stage", "queued")
		return res
	}
	defer sem.Release(1)

	acquired := time.Now()
	res.timing.WaitMs = float64(acquired.Sub(start).Microseconds()) / 1000

	product, searches, err := r.research(ctx, candidate, metricNames)
	res.searches = searches
	res.timing.Searches = searches
	res.timing.DurationMs = msSince(acquired)

	if err != nil {
		res.timing.Error = err.Error()
		if ctx.Err() != nil {
			res.timedOut = true
			log.Warnw("research_worker_timed_out", "product", candidate.Name, "stage", "running")
			return res
		}
		res.err = err
		log.Warnw("product_research_failed", "product", candidate.Name, "error", err, "duration_ms", res.timing.DurationMs)
		return res
	}

	if err := r.cache.SetJSON(ctx, ProductKey(candidate, r.now()), product, r.cfg.ProductTTL); err != nil {
		log.Warnw("product_cache_write_failed", "product", candidate.Name, "error", err)
	}

	res.product = product
	log.Infow("research_worker_completed",
		"product", candidate.Name,
		"searches", searches,
		"wait_ms", res.timing.WaitMs,
		"duration_ms", res.timing.DurationMs,
	)
	return res
}

// research runs one research conversation and normalizes its payload
func (r *Researcher) research(ctx context.Context, candidate domain.CandidateProduct, metricNames []string) (*domain.ResearchedProduct, int, error) {
	productID := candidate.ID
	if productID == "" {
		productID = DeriveProductID(candidate.Name, 0)
	}

	system, user := researchPrompts(candidate.Name, productID, metricNames, r.cfg.SearchBudget)
	result, err := r.loop.Run(ctx, agents.LoopRequest{
		SystemPrompt: system,
		UserPrompt:   user,
		MaxSearches:  r.cfg.SearchBudget,
		MaxTokens:    researchMaxTokens,
		Temperature:  researchTemperature,
	})
	if err != nil {
		return nil, 0, err
	}
	searches := result.SearchesUsed

	var payload researchPayload
	if err := decodeLoopJSON("research", result, &payload); err != nil {
		return nil, searches, err
	}

	title := textValue(payload.Title)
	if title == "" {
		title = candidate.Name
	}
	link, ok := stringValue(payload.Link)
	if !ok {
		link, ok = stringValue(payload.PurchaseLink)
	}
	if !ok {
		return nil, searches, errors.NewValidationError("link", "research did not return a purchase link", nil)
	}

	log := r.log.WithRun(ctx)
	priceCents, priceSource := ExtractPriceCents(payload.priceSources())
	if priceSource == PriceUnparsed {
		log.Warnw("price_unparsed", "product", candidate.Name, "price", payload.Price, "price_display", payload.PriceDisplay)
	} else {
		log.Debugw("price_parsed", "product", candidate.Name, "price_cents", priceCents, "price_source", priceSource)
	}

	image := r.images.Resolve(ctx, productID, candidate.Name, link, payload.ImageURL, textValue(payload.ImageSource))
	searches += image.Searches

	summary := textValue(payload.Summary)
	description := summary
	if description == "" {
		description = textValue(payload.Description)
	}
	confidence := textValue(payload.ExtractionConfidence)
	if confidence == "" {
		confidence = textValue(payload.Confidence)
	}
	if confidence == "" {
		confidence = domain.ConfidenceMedium
	}

	return &domain.ResearchedProduct{
		Candidate: domain.CandidateProduct{
			ID:              productID,
			Name:            title,
			DiscoveryMethod: candidate.DiscoveryMethod,
			Confidence:      candidate.Confidence,
			Source:          candidate.Source,
			SourceURL:       candidate.SourceURL,
		},
		Title:                title,
		Link:                 link,
		PriceCents:           priceCents,
		ImageURL:             image.URL,
		ImageSource:          image.Source,
		Summary:              summary,
		Description:          description,
		Pros:                 stringItems(payload.Pros),
		Cons:                 stringItems(payload.Cons),
		FullReview:           textValue(payload.FullReview),
		Rating:               textValue(payload.Rating),
		ReviewURL:            textValue(payload.ReviewURL),
		IsAffiliate:          boolValue(payload.IsAffiliate),
		ExtractionConfidence: confidence,
	}, searches, nil
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}
