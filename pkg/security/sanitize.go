package security

import (
	"regexp"
	"strings"
)

// Patterns stripped from string input. Tag pairs are removed with their
// content; self-closing and unclosed variants are removed as bare tags.
var (
	scriptPairPattern  = regexp.MustCompile(`(?is)<(script|iframe|object|embed)\b[^>]*>.*?</\s*(?:script|iframe|object|embed)\s*>`)
	dangerTagPattern   = regexp.MustCompile(`(?is)</?\s*(script|iframe|object|embed)\b[^>]*>`)
	eventAttrPattern   = regexp.MustCompile(`(?is)\s+on[a-z]+\s*=\s*(?:"[^"]*"|'[^']*'|[^\s>]+)`)
	uriSchemePattern   = regexp.MustCompile(`(?i)(javascript|vbscript|data)\s*:`)
)

// SanitizeString strips dangerous markup from a single string. Applying it
// twice yields the same result as applying it once.
func SanitizeString(s string) string {
	for {
		cleaned := scriptPairPattern.ReplaceAllString(s, "")
		cleaned = dangerTagPattern.ReplaceAllString(cleaned, "")
		cleaned = eventAttrPattern.ReplaceAllString(cleaned, "")
		cleaned = uriSchemePattern.ReplaceAllString(cleaned, "")
		if cleaned == s {
			return strings.TrimSpace(cleaned)
		}
		s = cleaned
	}
}

// Sanitize recursively sanitizes every string leaf of a value. Maps and slices
// are rebuilt; non-string scalars pass through unchanged.
func Sanitize(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return SanitizeString(v)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, val := range v {
			out[key] = Sanitize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = Sanitize(val)
		}
		return out
	case []string:
		out := make([]string, len(v))
		for i, s := range v {
			out[i] = SanitizeString(s)
		}
		return out
	default:
		return value
	}
}

// SanitizeMap sanitizes every string leaf of a request payload in place-shape
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	sanitized, _ := Sanitize(m).(map[string]interface{})
	return sanitized
}
