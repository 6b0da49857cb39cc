package common

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// String extracts a string argument, returning "" when absent or of the
// wrong type.
func String(args map[string]interface{}, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// StringOr extracts a string argument with a fallback default.
func StringOr(args map[string]interface{}, key, fallback string) string {
	if v, ok := args[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// Bool extracts a boolean argument. The second return reports presence.
func Bool(args map[string]interface{}, key string) (bool, bool) {
	v, ok := args[key].(bool)
	return v, ok
}

// BoolOr extracts a boolean argument with a fallback default.
func BoolOr(args map[string]interface{}, key string, fallback bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return fallback
}

// Float extracts a numeric argument. JSON numbers arrive as float64; an
// integer literal is accepted too. The second return reports presence.
func Float(args map[string]interface{}, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Int extracts an integer argument. The second return reports presence.
func Int(args map[string]interface{}, key string) (int, bool) {
	if v, ok := Float(args, key); ok {
		return int(v), true
	}
	return 0, false
}

// StringSlice extracts a list-of-strings argument. Accepts both a JSON
// array and a comma-free single string for convenience.
func StringSlice(args map[string]interface{}, key string) []string {
	switch v := args[key].(type) {
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}

// JSONResult marshals v as indented JSON and wraps it in a text result.
// Norman responses are passed through to the caller rather than
// reformatted, so nothing is lost in translation.
func JSONResult(v interface{}) (*mcp.CallToolResult, error) {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode response: %v", err)), nil
	}
	return mcp.NewToolResultText(string(encoded)), nil
}
