package hook

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
)

// Canonical renders a decoded JSON value deterministically: object keys are
// emitted in sorted order at every nesting level, so two logically identical
// tool inputs always serialize to the same string regardless of construction
// order. Used only for correlation key derivation, never on the wire.
func Canonical(v any) string {
	var b strings.Builder
	writeCanonical(&b, v)
	return b.String()
}

// Equal reports structural equality of two decoded JSON values.
func Equal(a, b any) bool {
	return Canonical(a) == Canonical(b)
}

// CorrelationKey derives the grouping key used to FIFO-match tool use ids
// to permission requests that arrive without one.
func (e Event) CorrelationKey() string {
	var b strings.Builder
	b.WriteString(e.SessionID)
	b.WriteByte('|')
	b.WriteString(e.ToolName())
	b.WriteByte('|')
	if e.ToolInput != nil {
		writeCanonical(&b, map[string]any(e.ToolInput))
	}
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("null")
	case bool:
		b.WriteString(strconv.FormatBool(val))
	case float64:
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case json.Number:
		b.WriteString(val.String())
	case string:
		writeJSONString(b, val)
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			writeJSONString(b, k)
			b.WriteByte(':')
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	default:
		// Values produced by encoding/json never reach here; anything else
		// is rendered through the standard marshaller as a fallback.
		if data, err := json.Marshal(val); err == nil {
			b.Write(data)
		} else {
			b.WriteString("null")
		}
	}
}

func writeJSONString(b *strings.Builder, s string) {
	data, _ := json.Marshal(s)
	b.Write(data)
}
