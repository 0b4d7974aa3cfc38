package comparison

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"comparoo/internal/agents"
	"comparoo/pkg/errors"
)

// LoopRunner runs one tool-calling conversation
type LoopRunner interface {
	Run(ctx context.Context, req agents.LoopRequest) (*agents.LoopResult, error)
}

// decodeLoopJSON decodes the final model message into dest. Numbers are kept
// as json.Number so integer and float prices stay distinguishable.
func decodeLoopJSON(stage string, result *agents.LoopResult, dest interface{}) error {
	if result == nil {
		return errors.NewValidationError(stage, "no response", nil)
	}
	content := strings.TrimSpace(result.Message.Content)
	if content == "" || content == "{}" {
		return errors.NewValidationError(stage, "empty response", nil)
	}

	dec := json.NewDecoder(bytes.NewReader([]byte(StripJSONFences(content))))
	dec.UseNumber()
	if err := dec.Decode(dest); err != nil {
		return errors.NewValidationError(stage, "output is not valid JSON: "+err.Error(), nil)
	}
	return nil
}

// stringValue returns v when it is a non-blank string
func stringValue(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// textValue renders a scalar JSON value as text
func textValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// intValue reads an integer out of a number or numeric string; ok is false otherwise
func intValue(v interface{}) (int, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return int(n), true
		}
		if f, err := t.Float64(); err == nil {
			return int(f), true
		}
	case float64:
		return int(t), true
	case int:
		return t, true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n, true
		}
	}
	return 0, false
}

// floatValue reads a JSON number; strings are not numbers here
func floatValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case float64:
		return t, true
	case int:
		return float64(t), true
	}
	return 0, false
}

// boolValue reads a JSON boolean, a numeric flag or a "true"/"yes" string
func boolValue(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err == nil && f != 0
	case float64:
		return t != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	}
	return false
}

// stringItems accepts a JSON array or a single scalar
func stringItems(v interface{}) []string {
	switch t := v.(type) {
	case []interface{}:
		return stringList(t)
	case nil:
		return []string{}
	default:
		if s := textValue(t); s != "" {
			return []string{s}
		}
		return []string{}
	}
}

// stringList keeps the non-blank string items of a JSON array
func stringList(v []interface{}) []string {
	out := make([]string, 0, len(v))
	for _, item := range v {
		if s := textValue(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
