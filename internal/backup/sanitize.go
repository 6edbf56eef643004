package backup

import (
	"strings"
	"unicode"
)

// SanitizePayload cleans a decoded JSON object supplied by a client. Keys
// are lower-cased and reduced to [a-z0-9_-]; strings lose control
// characters and surrounding space; numbers and bools are kept; nested
// objects and arrays are cleaned recursively. Values of any other type are
// dropped, as are keys that sanitize to nothing.
func SanitizePayload(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		key := sanitizeKey(k)
		if key == "" {
			continue
		}
		if clean, ok := sanitizeValue(v); ok {
			out[key] = clean
		}
	}
	return out
}

func sanitizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case string:
		return sanitizeText(val), true
	case bool, float64, float32, int, int64, int32, uint, uint64, uint32:
		return val, true
	case map[string]any:
		return SanitizePayload(val), true
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			if clean, ok := sanitizeValue(item); ok {
				out = append(out, clean)
			}
		}
		return out, true
	case []string:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, sanitizeText(item))
		}
		return out, true
	default:
		return nil, false
	}
}

func sanitizeKey(k string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(k) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func sanitizeText(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, s)
	return strings.TrimSpace(s)
}
