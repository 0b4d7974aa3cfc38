package comparison

import (
	"context"
	"strings"

	"comparoo/internal/agents"
	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const (
	synthesisTemperature = 0.4
	synthesisMaxTokens   = 2000

	// DefaultComparisonSummary is used when the model omits a summary
	DefaultComparisonSummary = "Top picks ranked by Comparoo."
)

type synthesisPayload struct {
	Summary         string `json:"summary"`
	ComparisonTable struct {
		Headers []interface{}   `json:"headers"`
		Rows    [][]interface{} `json:"rows"`
	} `json:"comparison_table"`
	Rankings []struct {
		ProductID    interface{} `json:"product_id"`
		ProductTitle interface{} `json:"product_title"`
		Rank         interface{} `json:"rank"`
		Rating       interface{} `json:"rating"`
		Rationale    string      `json:"rationale"`
		BestFor      string      `json:"best_for"`
	} `json:"rankings"`
}

func (p synthesisPayload) table() domain.MetricComparison {
	t := domain.MetricComparison{
		Headers: stringList(p.ComparisonTable.Headers),
		Rows:    make([][]string, 0, len(p.ComparisonTable.Rows)),
	}
	for _, row := range p.ComparisonTable.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = textValue(cell)
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func (p synthesisPayload) entries() []domain.RankingEntry {
	out := make([]domain.RankingEntry, 0, len(p.Rankings))
	for _, r := range p.Rankings {
		rank, _ := intValue(r.Rank)
		out = append(out, domain.RankingEntry{
			ProductID:    textValue(r.ProductID),
			ProductTitle: textValue(r.ProductTitle),
			Rank:         rank,
			Rating:       r.Rating,
			Rationale:    strings.TrimSpace(r.Rationale),
			BestFor:      strings.TrimSpace(r.BestFor),
		})
	}
	return out
}

// Synthesizer ranks researched products in one search-free conversation
type Synthesizer struct {
	loop   LoopRunner
	ranker *RankSynthesizer
	log    *logger.Logger
}

// NewSynthesizer creates the synthesis stage
func NewSynthesizer(loop LoopRunner, ranker *RankSynthesizer) *Synthesizer {
	if ranker == nil {
		ranker = NewRankSynthesizer()
	}
	return &Synthesizer{
		loop:   loop,
		ranker: ranker,
		log:    logger.Get().With("component", "synthesis"),
	}
}

// Run builds the comparison payload for researched products
func (s *Synthesizer) Run(ctx context.Context, metricNames []string, products []domain.ResearchedProduct) (domain.StepOutcome[domain.ComparisonPayload], error) {
	var outcome domain.StepOutcome[domain.ComparisonPayload]
	if len(products) == 0 {
		return outcome, errors.NewValidationError("products", "no product research available for comparison", nil)
	}

	result, err := s.loop.Run(ctx, agents.LoopRequest{
		SystemPrompt: synthesisSystemPrompt,
		UserPrompt:   synthesisUserPrompt(metricNames, products),
		MaxSearches:  0,
		MaxTokens:    synthesisMaxTokens,
		Temperature:  synthesisTemperature,
	})
	if err != nil {
		return outcome, err
	}
	outcome.APICalls = 1

	var payload synthesisPayload
	if err := decodeLoopJSON("comparison", result, &payload); err != nil {
		return outcome, err
	}

	entries := payload.entries()
	ranked, err := s.ranker.Build(products, entries, payload.table())
	if err != nil {
		return outcome, err
	}

	summary := strings.TrimSpace(payload.Summary)
	full := strings.Join(ranked.Narratives, "\n\n")
	if full == "" {
		full = summary
	}
	if summary == "" {
		summary = DefaultComparisonSummary
	}

	outcome.Data = domain.ComparisonPayload{
		ComparisonSummary: summary,
		FullComparison:    full,
		Products:          ranked.Products,
		MetricsTable:      ranked.Table,
	}
	outcome.Metadata = map[string]interface{}{
		"rankings":   entries,
		"ranked":     len(ranked.Products),
		"degraded":   result.Degraded,
		"iterations": result.Iterations,
	}

	s.log.WithRun(ctx).Debugw("comparison_synthesized", "rankings", len(entries), "ranked", len(ranked.Products))
	return outcome, nil
}
