package agents

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"comparoo/internal/adapters/ai"
	"comparoo/internal/metrics"
	"comparoo/internal/tools"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

const (
	// MinIterations is the iteration ceiling when searches are disabled
	MinIterations = 6

	budgetExhaustedPayload = `{"error":"Search budget exhausted"}`
)

// ToolExecutor runs tool calls requested by the model
type ToolExecutor interface {
	Execute(ctx context.Context, call ai.ToolCall) (string, error)
	Definitions() []ai.ToolDefinition
}

// LoopRequest parameterizes one conversation
type LoopRequest struct {
	SystemPrompt string
	UserPrompt   string
	MaxSearches  int
	MaxTokens    int
	Temperature  float64
}

// LoopResult is the final model turn plus accounting
type LoopResult struct {
	Response     *ai.ChatResponse
	Message      ai.Message
	SearchesUsed int
	Iterations   int
	Degraded     bool
	Usage        ai.Usage
}

// ToolCallLoop drives a chat conversation through tool-call rounds under a
// search budget until the model answers without tool calls.
type ToolCallLoop struct {
	provider ai.ChatProvider
	executor ToolExecutor
	model    string
	log      *logger.Logger
}

// NewToolCallLoop creates a loop over provider and executor. model may be
// empty to use the provider default.
func NewToolCallLoop(provider ai.ChatProvider, executor ToolExecutor, model string) *ToolCallLoop {
	return &ToolCallLoop{
		provider: provider,
		executor: executor,
		model:    model,
		log:      logger.Get().With("component", "tool_call_loop"),
	}
}

// IterationCeiling bounds the number of provider round trips
func IterationCeiling(maxSearches int) int {
	if maxSearches <= 0 {
		return MinIterations
	}
	if n := maxSearches * 3; n > MinIterations {
		return n
	}
	return MinIterations
}

// Run executes the conversation. Provider errors are fatal; tool errors are
// returned to the model as error payloads.
func (l *ToolCallLoop) Run(ctx context.Context, req LoopRequest) (*LoopResult, error) {
	log := l.log.WithRun(ctx)

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: req.SystemPrompt},
		{Role: ai.RoleUser, Content: req.UserPrompt},
	}

	var defs []ai.ToolDefinition
	if req.MaxSearches > 0 && l.executor != nil {
		defs = l.executor.Definitions()
	}

	ceiling := IterationCeiling(req.MaxSearches)
	remaining := req.MaxSearches
	if remaining < 0 {
		remaining = 0
	}
	evidence := NewEvidenceBuffer(evidenceCapacity)
	result := &LoopResult{}

	for iteration := 1; iteration <= ceiling; iteration++ {
		if err := ctx.Err(); err != nil {
			return nil, errors.Wrap(err, "tool call loop")
		}

		resp, err := l.provider.Chat(ctx, ai.ChatRequest{
			Model:       l.model,
			Messages:    messages,
			Tools:       defs,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		if err != nil {
			return nil, err
		}

		msg, ok := resp.FirstMessage()
		if !ok {
			return nil, errors.NewValidationError("choices", "provider returned no choices", nil)
		}

		result.Response = resp
		result.Message = msg
		result.Iterations = iteration
		result.Usage.Add(resp.Usage)

		if len(msg.ToolCalls) == 0 {
			log.Debugw("tool_loop_completed",
				"iterations", iteration,
				"searches_used", result.SearchesUsed,
				"total_tokens", result.Usage.TotalTokens,
			)
			return result, nil
		}

		messages = append(messages, ai.Message{
			Role:      ai.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		plan := make([]bool, len(msg.ToolCalls))
		for i, call := range msg.ToolCalls {
			if call.Function.Name != tools.WebSearch {
				plan[i] = true
				continue
			}
			if remaining <= 0 {
				metrics.RecordToolBudgetExhausted(tools.WebSearch)
				continue
			}
			remaining--
			result.SearchesUsed++
			plan[i] = true
		}

		outputs := l.dispatch(ctx, msg.ToolCalls, plan)
		for i, call := range msg.ToolCalls {
			messages = append(messages, ai.Message{
				Role:       ai.RoleTool,
				ToolCallID: call.ID,
				Name:       call.Function.Name,
				Content:    outputs[i],
			})
			if plan[i] {
				evidence.Add(extractEvidence(outputs[i])...)
			}
		}

		messages = append(messages, ai.Message{
			Role:    ai.RoleAssistant,
			Content: budgetReminder(remaining, req.MaxSearches, evidence),
		})
	}

	log.Warnw("tool_loop_ceiling_reached",
		"iterations", ceiling,
		"searches_used", result.SearchesUsed,
		"max_searches", req.MaxSearches,
	)
	result.Degraded = true
	return result, nil
}

// dispatch runs the planned calls concurrently. Each output lands in the slot
// matching its call index; skipped calls get the budget-exhausted payload.
func (l *ToolCallLoop) dispatch(ctx context.Context, calls []ai.ToolCall, plan []bool) []string {
	outputs := make([]string, len(calls))
	var g errgroup.Group

	for i, call := range calls {
		if !plan[i] {
			outputs[i] = budgetExhaustedPayload
			continue
		}
		i, call := i, call
		g.Go(func() error {
			outputs[i] = l.execute(ctx, call)
			return nil
		})
	}
	_ = g.Wait()

	return outputs
}

func (l *ToolCallLoop) execute(ctx context.Context, call ai.ToolCall) (out string) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Errorw("tool_call_panic", "tool", call.Function.Name, "tool_id", call.ID, "panic", r)
			out = tools.ErrorResult(fmt.Sprintf("tool %s failed: %v", call.Function.Name, r))
		}
	}()

	if l.executor == nil {
		return tools.ErrorResult("Unsupported tool: " + call.Function.Name)
	}

	start := time.Now()
	res, err := l.executor.Execute(ctx, call)
	if err != nil {
		l.log.Warnw("tool_call_error",
			"tool", call.Function.Name,
			"tool_id", call.ID,
			"duration_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		return tools.ErrorResult(err.Error())
	}
	return res
}

func budgetReminder(remaining, max int, evidence *EvidenceBuffer) string {
	if remaining > 0 {
		return fmt.Sprintf(
			"You have %d of %d web searches remaining. Search only if essential, otherwise return the final JSON answer.",
			remaining, max,
		)
	}

	msg := "Search budget exhausted. Do not call any more tools. Return the final JSON answer now using the evidence gathered so far."
	if evidence.Len() > 0 {
		msg += "\n\nEvidence:\n" + evidence.Summary(evidenceSummaryMax)
	}
	return msg
}
