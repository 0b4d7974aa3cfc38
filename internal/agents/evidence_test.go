package agents

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvidenceBuffer_EvictsOldest(t *testing.T) {
	b := NewEvidenceBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Add(Evidence{Title: fmt.Sprintf("t%d", i), URL: fmt.Sprintf("https://e.test/%d", i)})
	}
	b.Add(Evidence{})

	items := b.Items()
	assert.Len(t, items, 3)
	assert.Equal(t, "t3", items[0].Title)
	assert.Equal(t, "t5", items[2].Title)
}

func TestEvidenceBuffer_Summary(t *testing.T) {
	b := NewEvidenceBuffer(24)
	for i := 1; i <= 10; i++ {
		b.Add(Evidence{Title: fmt.Sprintf("t%d", i), URL: fmt.Sprintf("https://e.test/%d", i), Snippet: strings.Repeat("x", 300)})
	}
	b.Add(Evidence{URL: "https://e.test/untitled"})

	summary := b.Summary(evidenceSummaryMax)
	assert.NotContains(t, summary, "- t3 ")
	assert.Contains(t, summary, "- t4 - https://e.test/4")
	assert.Contains(t, summary, "- Untitled - https://e.test/untitled")
	assert.Contains(t, summary, "Snippet: "+strings.Repeat("x", evidenceSnippetMax)+"\n")
	assert.NotContains(t, summary, strings.Repeat("x", evidenceSnippetMax+1))
}

func TestExtractEvidence(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Evidence
	}{
		{
			name:    "search results",
			payload: `{"results":[{"position":1,"title":"A","url":"https://a.test","snippet":"s"}]}`,
			want:    []Evidence{{Title: "A", URL: "https://a.test", Snippet: "s"}},
		},
		{
			name:    "fetched page",
			payload: `{"status":"ok","url":"https://b.test","title":"B","content":"body"}`,
			want:    []Evidence{{Title: "B", URL: "https://b.test", Snippet: "body"}},
		},
		{name: "failed fetch", payload: `{"status":"error","url":"https://c.test"}`},
		{name: "error payload", payload: `{"error":"Search budget exhausted"}`},
		{name: "not json", payload: `nope`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractEvidence(tt.payload))
		})
	}
}
