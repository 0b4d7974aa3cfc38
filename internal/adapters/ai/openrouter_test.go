package ai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"comparoo/pkg/errors"
)

const toolCallCompletion = `{
  "id": "gen-1",
  "object": "chat.completion",
  "created": 1760000000,
  "model": "z-ai/glm-4.6",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "message": {
      "role": "assistant",
      "content": "",
      "tool_calls": [{
        "id": "call_1",
        "type": "function",
        "function": {"name": "web_search", "arguments": "{\"query\":\"best tv\"}"}
      }]
    }
  }],
  "usage": {"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19}
}`

const textCompletion = `{
  "id": "gen-2",
  "object": "chat.completion",
  "created": 1760000000,
  "model": "z-ai/glm-4.6",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "{\"status\":\"SUCCESS\"}"}
  }],
  "usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
}`

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenRouterProvider {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	retry := DefaultRetryPolicy(3)
	retry.Backoff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }

	p, err := NewOpenRouterProvider(OpenRouterConfig{
		APIKey:          "sk-test",
		BaseURL:         server.URL + "/api/v1/",
		Model:           "z-ai/glm-4.6",
		ProviderOrder:   []string{"z-ai"},
		AllowFallbacks:  false,
		ReasoningEffort: "low",
		Referer:         "https://comparoo.com",
		Title:           "Comparoo",
		Timeout:         2 * time.Second,
		Retry:           retry,
	})
	require.NoError(t, err)
	return p
}

func TestOpenRouterProvider_ToolCallResponse(t *testing.T) {
	var body map[string]interface{}
	var headers http.Header

	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"))
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(toolCallCompletion))
	})

	resp, err := p.Chat(context.Background(), ChatRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: "system"},
			{Role: RoleUser, Content: "compare tvs"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "call_0", Type: "function", Function: FunctionCall{Name: "web_fetch", Arguments: `{"url":"https://x.test"}`}}}},
			{Role: RoleTool, ToolCallID: "call_0", Content: `{"status":"ok"}`},
		},
		Tools: []ToolDefinition{{
			Type: "function",
			Function: FunctionDefinition{
				Name:        "web_search",
				Description: "search",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
		Temperature: 0.1,
		MaxTokens:   2000,
	})
	require.NoError(t, err)

	msg, ok := resp.FirstMessage()
	require.True(t, ok)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "web_search", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"query":"best tv"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, FinishReasonToolCalls, resp.Choices[0].FinishReason)
	assert.Equal(t, 19, resp.Usage.TotalTokens)

	assert.Equal(t, "z-ai/glm-4.6", body["model"])
	assert.Equal(t, "Bearer sk-test", headers.Get("Authorization"))
	assert.Equal(t, "https://comparoo.com", headers.Get("HTTP-Referer"))
	assert.Equal(t, "Comparoo", headers.Get("X-Title"))

	routing, ok := body["provider"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, false, routing["allow_fallbacks"])
	assert.Equal(t, []interface{}{"z-ai"}, routing["order"])

	messages, ok := body["messages"].([]interface{})
	require.True(t, ok)
	require.Len(t, messages, 4)
	assistant := messages[2].(map[string]interface{})
	assert.Equal(t, "assistant", assistant["role"])
	assert.Len(t, assistant["tool_calls"], 1)
	tool := messages[3].(map[string]interface{})
	assert.Equal(t, "call_0", tool["tool_call_id"])

	tools, ok := body["tools"].([]interface{})
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestOpenRouterProvider_SendsZeroTemperature(t *testing.T) {
	var body map[string]interface{}
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(textCompletion))
	})

	_, err := p.Chat(context.Background(), ChatRequest{
		Messages:    []Message{{Role: RoleUser, Content: "find an image"}},
		Temperature: 0,
	})
	require.NoError(t, err)

	temperature, ok := body["temperature"]
	require.True(t, ok, "temperature must be sent even when zero")
	assert.Equal(t, float64(0), temperature)
}

func TestOpenRouterProvider_RetriesRateLimit(t *testing.T) {
	var calls int32
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
			return
		}
		_, _ = w.Write([]byte(textCompletion))
	})

	resp, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	msg, _ := resp.FirstMessage()
	assert.Equal(t, `{"status":"SUCCESS"}`, msg.Content)
}

func TestOpenRouterProvider_ErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		kind      errors.ProviderErrorKind
		wantCalls int32
	}{
		{"unauthorized", http.StatusUnauthorized, errors.ProviderAuth, 1},
		{"forbidden", http.StatusForbidden, errors.ProviderAuth, 1},
		{"bad request", http.StatusBadRequest, errors.ProviderBadRequest, 1},
		{"rate limited", http.StatusTooManyRequests, errors.ProviderRateLimit, 3},
		{"server error", http.StatusBadGateway, errors.ProviderTransport, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
			})

			_, err := p.Chat(context.Background(), ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
			require.Error(t, err)

			var pe *errors.ProviderError
			require.True(t, errors.As(err, &pe))
			assert.Equal(t, tt.kind, pe.Kind)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, errors.CodeProvider, errors.Code(err))
			assert.Equal(t, tt.wantCalls, atomic.LoadInt32(&calls))
		})
	}
}

func TestOpenRouterProvider_CallerCancellation(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Chat(ctx, ChatRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	var pe *errors.ProviderError
	assert.False(t, errors.As(err, &pe))
}

func TestNewOpenRouterProvider_Validation(t *testing.T) {
	_, err := NewOpenRouterProvider(OpenRouterConfig{BaseURL: "https://openrouter.ai/api/v1"})
	assert.True(t, errors.Is(err, errors.ErrValidation))

	_, err = NewOpenRouterProvider(OpenRouterConfig{APIKey: "k"})
	assert.True(t, errors.Is(err, errors.ErrValidation))
}
