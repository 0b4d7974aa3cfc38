package comparison

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"comparoo/internal/adapters/config"
	domain "comparoo/internal/domain/comparison"
	"comparoo/internal/metrics"
	"comparoo/internal/tools"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// Request limits
const (
	MinCategoryLength   = 2
	MaxCategoryLength   = 120
	MaxConstraintLength = 512
)

// Progress checkpoints
const (
	ProgressDiscovery  = 33
	ProgressResearch   = 66
	ProgressComparison = 100
)

// Dependencies are created once at process start and shared by every run
type Dependencies struct {
	Loop     LoopRunner
	Cache    domain.Cache
	Scraper  OpenGraphScraper
	Workflow config.WorkflowConfig
	CacheCfg config.CacheConfig
	Images   config.ImageConfig
	Now      func() time.Time
}

// budgetState tracks provider calls for one run
type budgetState struct {
	used    int
	ceiling int
}

// add records calls and fails once the ceiling is crossed
func (b *budgetState) add(stage string, calls int) error {
	b.used += calls
	if b.used > b.ceiling {
		return errors.Wrapf(errors.ErrBudgetExceeded, "%s: %d calls used, limit %d", stage, b.used, b.ceiling)
	}
	return nil
}

// Orchestrator sequences discovery, research and synthesis under a call
// budget and a wall-clock timeout.
type Orchestrator struct {
	discovery *Discoverer
	research  *Researcher
	synthesis *Synthesizer
	cache     domain.Cache
	workflow  config.WorkflowConfig
	cacheCfg  config.CacheConfig
	now       func() time.Time
	log       *logger.Logger
}

// NewOrchestrator wires the workflow stages from deps
func NewOrchestrator(deps Dependencies) *Orchestrator {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cache := deps.Cache
	if cache == nil || !deps.CacheCfg.Enabled {
		cache = nopCache{}
	}

	images := NewImageResolver(deps.Scraper, deps.Loop, deps.Images, deps.Workflow.ImageSearchEnabled)
	discovery := NewDiscoverer(deps.Loop, cache, DiscoveryConfig{
		SearchBudget: deps.Workflow.DiscoverySearches,
		MetricsTTL:   deps.CacheCfg.MetricsTTL,
	})
	discovery.now = now
	research := NewResearcher(deps.Loop, cache, images, ResearchConfig{
		Concurrency:  deps.Workflow.ResearchConcurrency,
		SearchBudget: deps.Workflow.ResearchSearches,
		ProductTTL:   deps.CacheCfg.ProductTTL,
	})
	research.now = now

	return &Orchestrator{
		discovery: discovery,
		research:  research,
		synthesis: NewSynthesizer(deps.Loop, NewRankSynthesizer()),
		cache:     cache,
		workflow:  deps.Workflow,
		cacheCfg:  deps.CacheCfg,
		now:       now,
		log:       logger.Get().With("component", "orchestrator"),
	}
}

// ValidateRequest normalizes and checks a compare request
func ValidateRequest(req domain.CompareRequest) (domain.CompareRequest, error) {
	req.Category = strings.TrimSpace(req.Category)
	n := utf8.RuneCountInString(req.Category)
	if n < MinCategoryLength || n > MaxCategoryLength {
		return req, errors.NewValidationError("category", "must be between 2 and 120 characters", req.Category)
	}
	if utf8.RuneCountInString(req.Constraints) > MaxConstraintLength {
		return req, errors.NewValidationError("constraints", "must be at most 512 characters", nil)
	}
	return req, nil
}

// CompareProducts runs the workflow for req. Errors carry ErrValidation,
// ErrBudgetExceeded, ErrProvider or ErrTimeout.
func (o *Orchestrator) CompareProducts(ctx context.Context, req domain.CompareRequest, progress domain.ProgressFunc) (result *domain.ComparisonResult, err error) {
	start := time.Now()
	runID := uuid.New()
	if id, ok := errors.RunIDFrom(ctx); ok {
		if parsed, perr := uuid.Parse(id); perr == nil {
			runID = parsed
		}
	}
	ctx = errors.WithRunID(ctx, runID.String())
	log := o.log.WithRun(ctx)

	defer func() {
		apiCalls := 0
		cached := false
		if result != nil {
			apiCalls = result.Stats.APICalls
			cached = result.CachedResult
		}
		outcome := "success"
		if err != nil {
			outcome = strings.ToLower(errors.Code(err))
			log.Warnw("comparison_failed", "error", err, "error_code", errors.Code(err))
		}
		metrics.RecordComparison(outcome, cached, time.Since(start), apiCalls)
	}()

	req, err = ValidateRequest(req)
	if err != nil {
		return nil, err
	}

	key := ComparisonKey(req.Category, req.Constraints)
	if req.UseCache {
		var cached domain.ComparisonResult
		found, _ := o.cache.GetJSON(ctx, key, &cached)
		metrics.RecordCacheLookup("comparison", found)
		if found {
			log.Infow("comparison_cache_hit", "category", req.Category, "constraints", req.Constraints)
			cached.CachedResult = true
			cached.RunID = runID
			o.emit(ctx, progress, runID, domain.StepDiscovery, ProgressDiscovery)
			o.emit(ctx, progress, runID, domain.StepResearch, ProgressResearch)
			o.emit(ctx, progress, runID, domain.StepComparison, ProgressComparison)
			return &cached, nil
		}
	}

	result, err = o.run(tools.WithSearchMemo(ctx), req, runID, progress, start)
	if err != nil {
		return nil, err
	}

	if req.UseCache {
		if err := o.cache.SetJSON(ctx, key, result, o.cacheCfg.ComparisonTTL); err != nil {
			log.Warnw("comparison_cache_write_failed", "error", err)
		}
	}

	log.Infow("comparison_completed",
		"category", req.Category,
		"products", result.ProductCount(),
		"api_calls", result.Stats.APICalls,
		"duration_seconds", result.Stats.DurationSeconds,
	)
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req domain.CompareRequest, runID uuid.UUID, progress domain.ProgressFunc, start time.Time) (res *domain.ComparisonResult, err error) {
	log := o.log.WithRun(ctx)
	wctx, cancel := context.WithTimeout(ctx, o.workflow.Timeout)
	defer cancel()
	defer func() {
		if err != nil {
			err = o.classify(ctx, wctx, err)
		}
	}()

	budget := &budgetState{ceiling: o.workflow.MaxCallsPerComparison}
	durations := make(map[string]float64, 3)

	stageStart := time.Now()
	discovery, err := o.discovery.Run(wctx, req.Category, req.Constraints, req.UseCache)
	if err != nil {
		return nil, err
	}
	o.finishStage(durations, domain.StepDiscovery, stageStart)
	if err := budget.add(domain.StepDiscovery, discovery.APICalls); err != nil {
		return nil, err
	}
	o.emit(ctx, progress, runID, domain.StepDiscovery, ProgressDiscovery)

	candidates := discovery.Data.Candidates
	if len(candidates) == 0 {
		return nil, errors.NewValidationError("products", "discovery did not return any products", nil)
	}
	log.Infow("workflow_step_completed",
		"step", domain.StepDiscovery,
		"duration_seconds", durations[domain.StepDiscovery],
		"candidate_count", len(candidates),
	)

	stageStart = time.Now()
	research, err := o.research.Run(wctx, candidates, discovery.Data.Metrics.Metrics, req.UseCache)
	if err != nil {
		return nil, err
	}
	o.finishStage(durations, domain.StepResearch, stageStart)
	if err := budget.add(domain.StepResearch, research.APICalls); err != nil {
		return nil, err
	}
	o.emit(ctx, progress, runID, domain.StepResearch, ProgressResearch)

	if len(research.Data) < 2 {
		return nil, errors.NewValidationError("products", "insufficient product data extracted", len(research.Data))
	}
	log.Infow("workflow_step_completed",
		"step", domain.StepResearch,
		"duration_seconds", durations[domain.StepResearch],
		"product_count", len(research.Data),
		"cache_hits", research.Metadata["cache_hits"],
	)

	stageStart = time.Now()
	synthesis, err := o.synthesis.Run(wctx, discovery.Data.Metrics.Metrics, research.Data)
	if err != nil {
		return nil, err
	}
	o.finishStage(durations, domain.StepComparison, stageStart)
	if err := budget.add(domain.StepComparison, synthesis.APICalls); err != nil {
		return nil, err
	}
	o.emit(ctx, progress, runID, domain.StepComparison, ProgressComparison)

	payload := synthesis.Data
	return &domain.ComparisonResult{
		RunID:      runID,
		Request:    req,
		Metrics:    discovery.Data.Metrics,
		Products:   payload.Products,
		Comparison: payload,
		Stats: domain.WorkflowStats{
			APICalls:        budget.used,
			DurationSeconds: time.Since(start).Seconds(),
			SourceSummary:   summarizeSources(candidates),
			ExtractionMetrics: map[string]interface{}{
				"discovery":  discovery.Metadata,
				"research":   research.Metadata,
				"comparison": synthesis.Metadata,
			},
			StepDurations: durations,
		},
		GeneratedAt: o.now().UTC(),
	}, nil
}

// classify turns any stage failure that happened after the workflow deadline
// into ErrTimeout. Budget errors and caller cancellation pass through.
func (o *Orchestrator) classify(parent, workflow context.Context, err error) error {
	if errors.Is(err, errors.ErrBudgetExceeded) || parent.Err() != nil {
		return err
	}
	if errors.Is(workflow.Err(), context.DeadlineExceeded) {
		return errors.Wrapf(errors.ErrTimeout, "workflow exceeded %s: %v", o.workflow.Timeout, err)
	}
	return err
}

func (o *Orchestrator) finishStage(durations map[string]float64, stage string, start time.Time) {
	elapsed := time.Since(start)
	durations[stage] = elapsed.Seconds()
	metrics.RecordStage(stage, elapsed)
}

// emit delivers a progress event. Callback errors and panics are logged only.
func (o *Orchestrator) emit(ctx context.Context, progress domain.ProgressFunc, runID uuid.UUID, step string, pct int) {
	if progress == nil {
		return
	}
	log := o.log.WithRun(ctx)
	defer func() {
		if r := recover(); r != nil {
			log.Warnw("progress_callback_panic", "step", step, "panic", r)
		}
	}()

	event := domain.ProgressEvent{RunID: runID.String(), Step: step, Status: domain.StatusComplete, Progress: pct}
	if err := progress(ctx, event); err != nil {
		log.Warnw("progress_callback_failed", "step", step, "error", err)
	}
}

func summarizeSources(candidates []domain.CandidateProduct) map[string]int {
	summary := make(map[string]int)
	for _, c := range candidates {
		method := c.DiscoveryMethod
		if method == "" {
			method = domain.DiscoveryUnknown
		}
		summary[method]++
	}
	return summary
}

// nopCache is used when caching is disabled
type nopCache struct{}

func (nopCache) GetJSON(ctx context.Context, key string, dest interface{}) (bool, error) {
	return false, nil
}

func (nopCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	return nil
}
