package observability

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

const (
	// truncateMaxChars is the per-field character budget for payloads logged
	// to the trace sink.
	truncateMaxChars = 2000
	// truncateMaxItems caps sequence length in trace payloads.
	truncateMaxItems = 10
)

// TruncateForTrace bounds a decoded JSON value for span attributes: strings
// are cut at the character budget with an explicit suffix, lists are capped
// at truncateMaxItems, and maps are truncated recursively. Non-container
// values pass through unchanged.
func TruncateForTrace(v any) any {
	return truncateValue(v, truncateMaxChars)
}

func truncateValue(v any, maxChars int) any {
	switch t := v.(type) {
	case string:
		if len(t) > maxChars {
			// Back off to a rune boundary so the cut never splits a
			// multi-byte character.
			cut := maxChars
			for cut > 0 && !utf8.RuneStart(t[cut]) {
				cut--
			}
			return t[:cut] + fmt.Sprintf("… [truncated, total %d chars]", len(t))
		}
		return t
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = truncateValue(val, maxChars)
		}
		return out
	case []any:
		n := len(t)
		if n > truncateMaxItems {
			n = truncateMaxItems
		}
		out := make([]any, 0, n)
		for _, item := range t[:n] {
			out = append(out, truncateValue(item, maxChars))
		}
		return out
	default:
		return v
	}
}

// TruncateJSONForTrace renders a raw JSON payload as a truncated string
// suitable for a span attribute. Undecodable payloads fall back to plain
// string truncation of the raw bytes.
func TruncateJSONForTrace(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return truncateValue(string(raw), truncateMaxChars).(string)
	}
	b, err := json.Marshal(TruncateForTrace(v))
	if err != nil {
		return truncateValue(string(raw), truncateMaxChars).(string)
	}
	return truncateValue(string(b), truncateMaxChars).(string)
}
