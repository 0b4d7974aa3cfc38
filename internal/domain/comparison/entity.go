package comparison

import (
	"time"

	"github.com/google/uuid"
)

// Discovery methods reported by the discovery agent
const (
	DiscoveryRankingSite    = "ranking_site"
	DiscoveryBestSellers    = "best_sellers"
	DiscoveryAmazonTopRated = "amazon_top_rated"
	DiscoveryReddit         = "reddit_recommendations"
	DiscoveryForum          = "forum_recommendations"
	DiscoveryUnknown        = "unknown"
	ConfidenceHigh          = "high"
	ConfidenceMedium        = "medium"
	ConfidenceLow           = "low"
)

// Image sources recorded on researched products
const (
	ImageSourceOpenGraph   = "open_graph"
	ImageSourceProxied     = "proxied"
	ImageSourcePlaceholder = "placeholder"
	ImageSourceSearch      = "image_search"
)

// Workflow steps reported through progress events
const (
	StepDiscovery  = "discovery"
	StepResearch   = "research"
	StepComparison = "comparison"
)

// StatusComplete is the only status progress events carry
const StatusComplete = "complete"

// CompareRequest is the public input of a comparison run
type CompareRequest struct {
	Category    string `json:"category"`
	Constraints string `json:"constraints,omitempty"`
	UseCache    bool   `json:"use_cache"`
}

// CandidateProduct is a product proposed by discovery.
// ID stays stable through research and synthesis.
type CandidateProduct struct {
	ID              string `json:"product_id"`
	Name            string `json:"name"`
	DiscoveryMethod string `json:"discovery_method,omitempty"`
	Confidence      string `json:"confidence,omitempty"`
	Source          string `json:"source,omitempty"`
	SourceURL       string `json:"source_url,omitempty"`
}

// ResearchedProduct is the normalized output of one research worker.
// It is cached per product and day and never mutated afterwards.
type ResearchedProduct struct {
	Candidate            CandidateProduct `json:"candidate"`
	Title                string           `json:"title"`
	Link                 string           `json:"link"`
	PriceCents           int64            `json:"price_cents"`
	ImageURL             string           `json:"image_url"`
	ImageSource          string           `json:"image_source,omitempty"`
	Summary              string           `json:"summary"`
	Description          string           `json:"description"`
	Pros                 []string         `json:"pros"`
	Cons                 []string         `json:"cons"`
	FullReview           string           `json:"full_review"`
	Rating               string           `json:"rating,omitempty"`
	ReviewURL            string           `json:"review_url,omitempty"`
	IsAffiliate          bool             `json:"is_affiliate"`
	ExtractionConfidence string           `json:"extraction_confidence"`
}

// RankingEntry is one ranking row produced by the synthesis agent
type RankingEntry struct {
	ProductID    string      `json:"product_id,omitempty"`
	ProductTitle string      `json:"product_title,omitempty"`
	Rank         int         `json:"rank"`
	Rating       interface{} `json:"rating,omitempty"`
	Rationale    string      `json:"rationale,omitempty"`
	BestFor      string      `json:"best_for,omitempty"`
}

// DisplayProduct is a researched product reconciled with its ranking
type DisplayProduct struct {
	ProductID            string   `json:"product_id"`
	Name                 string   `json:"name"`
	Rank                 int      `json:"rank"`
	ImageURL             string   `json:"image_url"`
	Link                 string   `json:"link"`
	IsAffiliate          bool     `json:"is_affiliate"`
	Description          string   `json:"description"`
	Rating               string   `json:"rating,omitempty"`
	ReviewURL            string   `json:"review_url,omitempty"`
	ExtractionConfidence string   `json:"extraction_confidence"`
	PriceCents           int64    `json:"price_cents,omitempty"`
	PriceDisplay         string   `json:"price_display,omitempty"`
	Strengths            []string `json:"strengths"`
	Weaknesses           []string `json:"weaknesses"`
	Summary              string   `json:"summary,omitempty"`
	FullReview           string   `json:"full_review,omitempty"`
}

// MetricComparison is the tabular comparison shown next to the ranking
type MetricComparison struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// ComparisonPayload is the synthesized comparison
type ComparisonPayload struct {
	ComparisonSummary string           `json:"comparison_summary"`
	FullComparison    string           `json:"full_comparison"`
	Products          []DisplayProduct `json:"products"`
	MetricsTable      MetricComparison `json:"metrics_table"`
}

// MetricsResult holds the comparison dimensions for a category
type MetricsResult struct {
	Category string     `json:"category"`
	Metrics  []string   `json:"metrics"`
	Cached   bool       `json:"cached"`
	CachedAt *time.Time `json:"cached_at,omitempty"`
}

// WorkflowStats carries diagnostics for one run
type WorkflowStats struct {
	APICalls          int                    `json:"api_calls"`
	DurationSeconds   float64                `json:"duration_seconds"`
	SourceSummary     map[string]int         `json:"source_summary"`
	ExtractionMetrics map[string]interface{} `json:"extraction_metrics"`
	StepDurations     map[string]float64     `json:"step_durations"`
}

// ComparisonResult is the output of CompareProducts
type ComparisonResult struct {
	RunID        uuid.UUID         `json:"run_id"`
	Request      CompareRequest    `json:"request"`
	Metrics      MetricsResult     `json:"metrics"`
	Products     []DisplayProduct  `json:"products"`
	Comparison   ComparisonPayload `json:"comparison"`
	Stats        WorkflowStats     `json:"stats"`
	CachedResult bool              `json:"cached_result"`
	GeneratedAt  time.Time         `json:"generated_at"`
}

// ProductCount mirrors the number of ranked products
func (r *ComparisonResult) ProductCount() int {
	return len(r.Products)
}

// DiscoveryResult is the output of the discovery stage
type DiscoveryResult struct {
	Metrics    MetricsResult      `json:"metrics"`
	Candidates []CandidateProduct `json:"candidates"`
}

// StepOutcome wraps a stage result with its budget accounting
type StepOutcome[T any] struct {
	Data      T
	APICalls  int
	UsedCache bool
	Metadata  map[string]interface{}
}

// ProgressEvent is emitted at stage boundaries
type ProgressEvent struct {
	RunID    string `json:"run_id,omitempty"`
	Step     string `json:"step"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
}
