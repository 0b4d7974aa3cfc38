package comparison

import (
	"fmt"
	"sort"
	"strings"

	domain "comparoo/internal/domain/comparison"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// RankedComparison is the reconciled ranking
type RankedComparison struct {
	Products   []domain.DisplayProduct
	Narratives []string
	Table      domain.MetricComparison
}

// RankSynthesizer reconciles synthesis rankings with researched products
type RankSynthesizer struct {
	log *logger.Logger
}

// NewRankSynthesizer creates a rank synthesizer
func NewRankSynthesizer() *RankSynthesizer {
	return &RankSynthesizer{log: logger.Get().With("component", "rank_synthesizer")}
}

// Match finds the researched product an entry refers to: by id first, then
// by case-insensitive trimmed title.
func Match(entry domain.RankingEntry, products []domain.ResearchedProduct) (int, bool) {
	if id := strings.TrimSpace(entry.ProductID); id != "" {
		for i, p := range products {
			if p.Candidate.ID == id {
				return i, true
			}
		}
	}
	if title := strings.ToLower(strings.TrimSpace(entry.ProductTitle)); title != "" {
		for i, p := range products {
			if strings.ToLower(strings.TrimSpace(p.Title)) == title {
				return i, true
			}
		}
	}
	return -1, false
}

// FormatRating renders a numeric rating as "4.5/5.0"; ok is false for non-numbers
func FormatRating(v interface{}) (string, bool) {
	f, ok := floatValue(v)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%.1f/5.0", f), true
}

// Build matches entries to products, drops unmatched and duplicate entries,
// and orders the result by ascending rank. Entries without a rank follow
// the ranked ones in their original order.
func (s *RankSynthesizer) Build(products []domain.ResearchedProduct, entries []domain.RankingEntry, table domain.MetricComparison) (*RankedComparison, error) {
	out := &RankedComparison{Table: relabelTable(table, products)}
	used := make(map[int]struct{}, len(entries))

	for _, entry := range entries {
		idx, ok := Match(entry, products)
		if !ok {
			s.log.Warnw("ranking_product_unmatched", "product_id", entry.ProductID, "product_title", entry.ProductTitle)
			continue
		}
		if _, dup := used[idx]; dup {
			s.log.Warnw("ranking_product_duplicate", "product_id", products[idx].Candidate.ID, "rank", entry.Rank)
			continue
		}
		used[idx] = struct{}{}

		p := products[idx]
		rating, ok := FormatRating(entry.Rating)
		if !ok {
			rating = p.Rating
		}
		if entry.Rationale != "" {
			out.Narratives = append(out.Narratives, fmt.Sprintf("Rank %d: %s - %s", entry.Rank, p.Title, entry.Rationale))
		}
		if entry.BestFor != "" {
			out.Narratives = append(out.Narratives, fmt.Sprintf("Best for %s: %s", entry.BestFor, p.Title))
		}

		description := p.Description
		if description == "" {
			description = p.Summary
		}
		out.Products = append(out.Products, domain.DisplayProduct{
			ProductID:            p.Candidate.ID,
			Name:                 p.Title,
			Rank:                 entry.Rank,
			ImageURL:             p.ImageURL,
			Link:                 p.Link,
			IsAffiliate:          p.IsAffiliate,
			Description:          description,
			Rating:               rating,
			ReviewURL:            p.ReviewURL,
			ExtractionConfidence: p.ExtractionConfidence,
			PriceCents:           p.PriceCents,
			PriceDisplay:         FormatPriceCents(p.PriceCents),
			Strengths:            nonNil(p.Pros),
			Weaknesses:           nonNil(p.Cons),
			Summary:              p.Summary,
			FullReview:           p.FullReview,
		})
	}

	if len(out.Products) == 0 {
		return nil, errors.NewValidationError("rankings", "comparison did not rank any known product", len(entries))
	}

	sort.SliceStable(out.Products, func(i, j int) bool {
		ri, rj := out.Products[i].Rank, out.Products[j].Rank
		switch {
		case ri <= 0:
			return false
		case rj <= 0:
			return true
		default:
			return ri < rj
		}
	})
	return out, nil
}

// relabelTable copies the table, replacing product ids in the first column with titles
func relabelTable(table domain.MetricComparison, products []domain.ResearchedProduct) domain.MetricComparison {
	titles := make(map[string]string, len(products))
	for _, p := range products {
		titles[p.Candidate.ID] = p.Title
	}

	out := domain.MetricComparison{
		Headers: append([]string{}, table.Headers...),
		Rows:    make([][]string, 0, len(table.Rows)),
	}
	for _, row := range table.Rows {
		cp := append([]string{}, row...)
		if len(cp) > 0 {
			if title, ok := titles[cp[0]]; ok {
				cp[0] = title
			}
		}
		out.Rows = append(out.Rows, cp)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
