package tools

import (
	"context"
	"encoding/json"

	"comparoo/pkg/errors"
)

// Tool names advertised to the model
const (
	WebSearch = "web_search"
	WebFetch  = "web_fetch"
)

// Tool represents a callable capability exposed to agents.
type Tool interface {
	// Name returns the unique tool identifier.
	Name() string
	// Description returns a short human-readable summary.
	Description() string
	// Parameters returns the JSON schema of the arguments.
	Parameters() map[string]interface{}
	// Execute performs the tool's action using the raw JSON arguments.
	Execute(ctx context.Context, args json.RawMessage) (interface{}, error)
}

// HandlerFunc is the function signature for tool handlers.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (interface{}, error)

// FunctionTool is a simple Tool implementation backed by a handler function.
type FunctionTool struct {
	name        string
	description string
	parameters  map[string]interface{}
	handler     HandlerFunc
}

// New creates a new function-backed Tool.
func New(name, description string, parameters map[string]interface{}, handler HandlerFunc) Tool {
	return &FunctionTool{
		name:        name,
		description: description,
		parameters:  parameters,
		handler:     handler,
	}
}

// Name returns the tool identifier.
func (t *FunctionTool) Name() string { return t.name }

// Description returns a human description of the tool.
func (t *FunctionTool) Description() string { return t.description }

// Parameters returns the argument schema.
func (t *FunctionTool) Parameters() map[string]interface{} { return t.parameters }

// Execute runs the underlying handler.
func (t *FunctionTool) Execute(ctx context.Context, args json.RawMessage) (interface{}, error) {
	if t.handler == nil {
		return nil, errors.New("tool handler is not defined")
	}

	return t.handler(ctx, args)
}

// decodeArgs parses model-supplied arguments. Invalid JSON decodes as empty.
func decodeArgs(raw json.RawMessage, dest interface{}) {
	if len(raw) == 0 {
		return
	}
	_ = json.Unmarshal(raw, dest)
}

func stringSchema(name, description string) map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			name: map[string]interface{}{
				"type":        "string",
				"description": description,
			},
		},
		"required": []string{name},
	}
}
