package agents

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	evidenceCapacity    = 24
	evidenceSummaryMax  = 8
	evidenceSnippetMax  = 240
	fetchSnippetDefault = 400
)

// Evidence is one title/url/snippet triple pulled out of a tool result
type Evidence struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// EvidenceBuffer keeps the most recent evidence items, oldest evicted first
type EvidenceBuffer struct {
	items    []Evidence
	capacity int
}

// NewEvidenceBuffer creates a buffer holding up to capacity items
func NewEvidenceBuffer(capacity int) *EvidenceBuffer {
	if capacity <= 0 {
		capacity = evidenceCapacity
	}
	return &EvidenceBuffer{capacity: capacity}
}

// Add appends items, evicting the oldest beyond capacity
func (b *EvidenceBuffer) Add(items ...Evidence) {
	for _, item := range items {
		if item.URL == "" && item.Title == "" {
			continue
		}
		b.items = append(b.items, item)
	}
	if over := len(b.items) - b.capacity; over > 0 {
		b.items = append([]Evidence(nil), b.items[over:]...)
	}
}

// Items returns a copy of the buffered evidence, oldest first
func (b *EvidenceBuffer) Items() []Evidence {
	return append([]Evidence(nil), b.items...)
}

// Len returns the number of buffered items
func (b *EvidenceBuffer) Len() int {
	return len(b.items)
}

// Summary renders up to max of the latest items as a bullet list
func (b *EvidenceBuffer) Summary(max int) string {
	items := b.items
	if max > 0 && len(items) > max {
		items = items[len(items)-max:]
	}

	var sb strings.Builder
	for _, item := range items {
		title := item.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&sb, "- %s - %s\n", title, item.URL)
		if snippet := strings.TrimSpace(item.Snippet); snippet != "" {
			fmt.Fprintf(&sb, "  Snippet: %s\n", clip(snippet, evidenceSnippetMax))
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

// extractEvidence pulls evidence out of a web_search or web_fetch payload.
// Unknown or error payloads yield nothing.
func extractEvidence(payload string) []Evidence {
	var parsed struct {
		Results []struct {
			Title   string `json:"title"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"results"`
		Status  string `json:"status"`
		URL     string `json:"url"`
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil
	}

	if len(parsed.Results) > 0 {
		out := make([]Evidence, 0, len(parsed.Results))
		for _, r := range parsed.Results {
			out = append(out, Evidence{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
		}
		return out
	}

	if parsed.Status == "ok" && parsed.URL != "" {
		return []Evidence{{Title: parsed.Title, URL: parsed.URL, Snippet: clip(parsed.Content, fetchSnippetDefault)}}
	}
	return nil
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
