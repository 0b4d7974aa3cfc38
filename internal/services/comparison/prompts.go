package comparison

import (
	"fmt"
	"strings"

	domain "comparoo/internal/domain/comparison"
)

const discoverySystemPrompt = `You plan consumer product comparisons.
Decide whether the requested category is a real consumer product category. If it is not, reply with {"status":"REJECTED"}.
Otherwise use web_search to find which products reviewers and buyers currently recommend, pick 4 to 6 of them, and choose the metrics that matter most when comparing them.
Reply with JSON only:
{"status":"SUCCESS","metrics":["..."],"products":[{"product_id":"optional stable id","product_name":"...","discovery_method":"ranking_site|best_sellers|amazon_top_rated|reddit_recommendations|forum_recommendations","confidence":"high|medium|low","source_url":"optional"}]}`

const researchSystemPrompt = `You research a single product: %s.
Use the tools to confirm current price, a purchase link and what reviews say, focusing on %s.
Reply with JSON only:
{"title":"...","link":"purchase url","price":"$199.99","image_url":"optional","summary":"...","pros":["..."],"cons":["..."],"full_review":"...","review_url":"optional","rating":"optional","extraction_confidence":"high|medium|low","is_affiliate":false}`

const imageSearchSystemPrompt = `Find one direct, publicly reachable product photo URL for %s.
Reply with JSON only: {"image_url":"https://...","image_source":"where it was found"}`

const synthesisSystemPrompt = `You rank researched products for a buyer.
Use only the research provided. Rank every product (1 is best), rate each from 1.0 to 5.0, and explain the ranking briefly.
Reply with JSON only:
{"summary":"...","comparison_table":{"headers":["Product","metric", "..."],"rows":[["product_id","value","..."]]},"rankings":[{"product_id":"...","product_title":"...","rank":1,"rating":4.5,"rationale":"...","best_for":"..."}]}`

func discoveryUserPrompt(category, constraints string) string {
	if strings.TrimSpace(constraints) == "" {
		constraints = "None"
	}
	return fmt.Sprintf(
		"Requested comparison category: %s\nUser constraints or preferences: %s\nReply using the JSON schema from the system prompt.",
		category, constraints,
	)
}

func researchPrompts(name, productID string, metrics []string, maxSearches int) (string, string) {
	primary := "overall performance"
	if len(metrics) > 0 {
		primary = metrics[0]
	}
	system := fmt.Sprintf(researchSystemPrompt, name, primary)
	user := fmt.Sprintf(
		"Product to research: %s\nProduct ID: %s\nComparison metrics: %s\nYou have at most %d searches.\nReply using the JSON schema from the system prompt.",
		name, productID, strings.Join(metrics, ", "), maxSearches,
	)
	return system, user
}

func imageSearchPrompts(name string) (string, string) {
	return fmt.Sprintf(imageSearchSystemPrompt, name),
		fmt.Sprintf("Product: %s\nFind a high-quality product image URL.", name)
}

func synthesisUserPrompt(metrics []string, products []domain.ResearchedProduct) string {
	var sb strings.Builder
	sb.WriteString("Products to compare:\n")
	for _, p := range products {
		fmt.Fprintf(&sb, "Product ID: %s\n", p.Candidate.ID)
		fmt.Fprintf(&sb, "Product Title: %s\n", p.Title)
		fmt.Fprintf(&sb, "Price (USD cents): %d\n", p.PriceCents)
		fmt.Fprintf(&sb, "Summary: %s\n", p.Summary)
		fmt.Fprintf(&sb, "Pros: %s\n", strings.Join(p.Pros, ", "))
		fmt.Fprintf(&sb, "Cons: %s\n", strings.Join(p.Cons, ", "))
		fmt.Fprintf(&sb, "Full Review: %s\n---\n", p.FullReview)
	}
	fmt.Fprintf(&sb, "\nComparison metrics: %s\nReply using the JSON structure from the system prompt.", strings.Join(metrics, ", "))
	return sb.String()
}
