package comparison

import (
	"context"
	"strings"
	"sync"
	"time"

	"comparoo/internal/adapters/ai"
	"comparoo/internal/adapters/config"
	"comparoo/internal/agents"
)

var testImages = config.ImageConfig{
	OwnDomain:       "comparoo.com",
	ProxyBase:       "https://images.weserv.nl/",
	PlaceholderBase: "https://cdn.comparoo.com/placeholder/",
}

// fakeLoop routes each conversation to a handler chosen by its system prompt
type fakeLoop struct {
	mu        sync.Mutex
	requests  []agents.LoopRequest
	discovery func(req agents.LoopRequest) (*agents.LoopResult, error)
	research  func(ctx context.Context, product string, req agents.LoopRequest) (*agents.LoopResult, error)
	image     func(req agents.LoopRequest) (*agents.LoopResult, error)
	synthesis func(req agents.LoopRequest) (*agents.LoopResult, error)
}

func (f *fakeLoop) Run(ctx context.Context, req agents.LoopRequest) (*agents.LoopResult, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	switch {
	case req.SystemPrompt == discoverySystemPrompt:
		return f.discovery(req)
	case req.SystemPrompt == synthesisSystemPrompt:
		return f.synthesis(req)
	case strings.HasPrefix(req.SystemPrompt, "Find one direct"):
		return f.image(req)
	default:
		return f.research(ctx, productFromPrompt(req.UserPrompt), req)
	}
}

func (f *fakeLoop) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func productFromPrompt(user string) string {
	first := strings.SplitN(user, "\n", 2)[0]
	return strings.TrimPrefix(first, "Product to research: ")
}

func reply(content string, searches int) *agents.LoopResult {
	return &agents.LoopResult{
		Message:      ai.Message{Role: ai.RoleAssistant, Content: content},
		SearchesUsed: searches,
		Iterations:   1,
	}
}

// fakeScraper returns fixed og:image values per link
type fakeScraper struct {
	mu     sync.Mutex
	images map[string]string
	calls  []string
}

func (s *fakeScraper) OpenGraphImage(ctx context.Context, link string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, link)
	return s.images[link]
}

func fixedNow() time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
}
