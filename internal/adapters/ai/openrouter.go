package ai

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"comparoo/internal/metrics"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// ProviderOpenRouter names the OpenRouter adapter in errors and logs
const ProviderOpenRouter = "openrouter"

// OpenRouterConfig configures the OpenRouter chat adapter
type OpenRouterConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	ProviderOrder   []string
	AllowFallbacks  bool
	ReasoningEffort string
	Referer         string
	Title           string
	Timeout         time.Duration
	Retry           RetryPolicy
	Limiter         RateLimiter
	HTTPClient      *http.Client
}

// OpenRouterProvider talks to OpenRouter through the OpenAI-compatible SDK.
// SDK retries are disabled; RetryPolicy owns retries.
type OpenRouterProvider struct {
	client  openai.Client
	model   string
	timeout time.Duration
	retry   RetryPolicy
	limiter RateLimiter
	log     *logger.Logger
}

// NewOpenRouterProvider creates a new OpenRouter chat provider
func NewOpenRouterProvider(cfg OpenRouterConfig) (*OpenRouterProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewValidationError("api_key", "OpenRouter API key is required", nil)
	}
	if cfg.BaseURL == "" {
		return nil, errors.NewValidationError("base_url", "OpenRouter base URL is required", nil)
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.Referer != "" {
		opts = append(opts, option.WithHeader("HTTP-Referer", cfg.Referer))
	}
	if cfg.Title != "" {
		opts = append(opts, option.WithHeader("X-Title", cfg.Title))
	}

	routing := map[string]interface{}{"allow_fallbacks": cfg.AllowFallbacks}
	if len(cfg.ProviderOrder) > 0 {
		routing["order"] = cfg.ProviderOrder
	}
	opts = append(opts, option.WithJSONSet("provider", routing))

	if cfg.ReasoningEffort != "" {
		opts = append(opts, option.WithJSONSet("reasoning", map[string]interface{}{"effort": cfg.ReasoningEffort}))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = DefaultRetryPolicy(3)
	}
	var limiter RateLimiter = NewNoOpLimiter()
	if cfg.Limiter != nil {
		limiter = cfg.Limiter
	}

	return &OpenRouterProvider{
		client:  openai.NewClient(opts...),
		model:   cfg.Model,
		timeout: timeout,
		retry:   retry,
		limiter: limiter,
		log:     logger.Get().With("component", "openrouter"),
	}, nil
}

// Name returns the provider name
func (p *OpenRouterProvider) Name() string {
	return ProviderOpenRouter
}

// Chat sends a chat completion request, retrying per the configured policy
func (p *OpenRouterProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	params := p.buildParams(req)
	model := string(params.Model)

	var resp *ChatResponse
	err := p.retry.Do(ctx, func(ctx context.Context) error {
		if err := p.limiter.Wait(ctx); err != nil {
			return err
		}

		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		start := time.Now()
		completion, err := p.client.Chat.Completions.New(callCtx, params)
		if err != nil {
			classified := p.classify(ctx, callCtx, err)
			metrics.RecordLLMCall(model, time.Since(start), 0, 0, classified)
			return classified
		}

		resp = convertCompletion(completion)
		metrics.RecordLLMCall(model, time.Since(start), resp.Usage.PromptTokens, resp.Usage.CompletionTokens, nil)
		return nil
	}, func(attempt int, err error) {
		metrics.RecordLLMRetry(model)
		p.log.Warnw("llm_retry", "model", model, "attempt", attempt+1, "error", err)
	})
	if err != nil {
		return nil, err
	}

	p.log.Debugw("llm_call_completed",
		"model", resp.Model,
		"choices", len(resp.Choices),
		"total_tokens", resp.Usage.TotalTokens,
	)
	return resp, nil
}

func (p *OpenRouterProvider) buildParams(req ChatRequest) openai.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = p.model
	}

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages)),
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	for _, m := range req.Messages {
		params.Messages = append(params.Messages, convertMessage(m))
	}

	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionFunctionTool(shared.FunctionDefinitionParam{
			Name:        tool.Function.Name,
			Description: openai.String(tool.Function.Description),
			Parameters:  shared.FunctionParameters(tool.Function.Parameters),
		}))
	}

	return params
}

func convertMessage(m Message) openai.ChatCompletionMessageParamUnion {
	switch m.Role {
	case RoleSystem:
		return openai.SystemMessage(m.Content)
	case RoleTool:
		return openai.ToolMessage(m.Content, m.ToolCallID)
	case RoleAssistant:
		if len(m.ToolCalls) == 0 {
			return openai.AssistantMessage(m.Content)
		}
		assistant := openai.ChatCompletionAssistantMessageParam{}
		if m.Content != "" {
			assistant.Content.OfString = openai.String(m.Content)
		}
		for _, tc := range m.ToolCalls {
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
				OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
	default:
		return openai.UserMessage(m.Content)
	}
}

func convertCompletion(c *openai.ChatCompletion) *ChatResponse {
	resp := &ChatResponse{
		ID:    c.ID,
		Model: c.Model,
		Usage: Usage{
			PromptTokens:     int(c.Usage.PromptTokens),
			CompletionTokens: int(c.Usage.CompletionTokens),
			TotalTokens:      int(c.Usage.TotalTokens),
		},
		Choices: make([]Choice, 0, len(c.Choices)),
	}

	for _, choice := range c.Choices {
		msg := Message{
			Role:    RoleAssistant,
			Content: choice.Message.Content,
		}
		for _, tc := range choice.Message.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: FunctionCall{
					Name:      tc.Function.Name,
					Arguments: tc.Function.Arguments,
				},
			})
		}
		resp.Choices = append(resp.Choices, Choice{
			Index:        int(choice.Index),
			Message:      msg,
			FinishReason: FinishReason(choice.FinishReason),
		})
	}
	return resp
}

// classify maps SDK errors onto ProviderError kinds. Cancellation of the
// caller's context is returned as-is so the workflow can report its own timeout.
func (p *OpenRouterProvider) classify(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return errors.Wrap(parent.Err(), "chat completion")
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		switch {
		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			return errors.NewProviderError(ProviderOpenRouter, errors.ProviderAuth, status, err)
		case status == http.StatusTooManyRequests:
			return errors.NewProviderError(ProviderOpenRouter, errors.ProviderRateLimit, status, err)
		case status >= http.StatusInternalServerError:
			return errors.NewProviderError(ProviderOpenRouter, errors.ProviderTransport, status, err)
		default:
			return errors.NewProviderError(ProviderOpenRouter, errors.ProviderBadRequest, status, err)
		}
	}

	if errors.Is(call.Err(), context.DeadlineExceeded) {
		return errors.NewProviderError(ProviderOpenRouter, errors.ProviderTimeout, 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.NewProviderError(ProviderOpenRouter, errors.ProviderTimeout, 0, err)
	}

	return errors.NewProviderError(ProviderOpenRouter, errors.ProviderTransport, 0, err)
}

var _ ChatProvider = (*OpenRouterProvider)(nil)
