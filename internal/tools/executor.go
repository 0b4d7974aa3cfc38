package tools

import (
	"context"
	"encoding/json"
	"time"

	"comparoo/internal/adapters/ai"
	"comparoo/internal/metrics"
	"comparoo/pkg/errors"
	"comparoo/pkg/logger"
)

// Executor dispatches model tool calls to registered tools
type Executor struct {
	registry *Registry
	log      *logger.Logger
}

// NewExecutor creates an executor over the registry
func NewExecutor(registry *Registry) *Executor {
	return &Executor{
		registry: registry,
		log:      logger.Get().With("component", "tool_executor"),
	}
}

// NewDefaultExecutor registers web_search and web_fetch
func NewDefaultExecutor(searcher Searcher, fetcher PageFetcher) *Executor {
	registry := NewRegistry()
	registry.Register(NewSearchTool(searcher))
	registry.Register(NewFetchTool(fetcher))
	return NewExecutor(registry)
}

// Definitions returns the tools advertised to the model
func (e *Executor) Definitions() []ai.ToolDefinition {
	return e.registry.Definitions()
}

// Execute runs one tool call and returns its JSON-encoded result.
// Unknown tools yield an error payload rather than a Go error.
func (e *Executor) Execute(ctx context.Context, call ai.ToolCall) (string, error) {
	name := call.Function.Name
	if name == "" {
		name = call.Type
	}

	tool, ok := e.registry.Get(name)
	if !ok {
		e.log.Warnw("tool_call_unsupported", "tool_id", call.ID, "function_name", name)
		return ErrorResult("Unsupported tool: " + name), nil
	}

	start := time.Now()
	result, err := tool.Execute(ctx, json.RawMessage(call.Function.Arguments))
	metrics.RecordToolExecution(name, time.Since(start), err)
	if err != nil {
		e.log.Warnw("tool_call_failed", "tool_id", call.ID, "function_name", name, "error", err)
		return "", errors.Wrapf(err, "%s", name)
	}

	data, err := json.Marshal(result)
	if err != nil {
		return "", errors.Wrapf(err, "encode %s result", name)
	}
	return string(data), nil
}

// ErrorResult encodes a tool error payload
func ErrorResult(message string) string {
	data, _ := json.Marshal(map[string]string{"error": message})
	return string(data)
}
