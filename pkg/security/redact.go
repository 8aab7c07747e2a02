package security

import "strings"

// RedactedValue replaces sensitive values in audit snapshots
const RedactedValue = "[REDACTED]"

// sensitiveKeySubstrings are matched against lower-cased field names
var sensitiveKeySubstrings = []string{
	"password",
	"token",
	"secret",
	"api_key",
	"private_key",
}

// IsSensitiveKey reports whether a field name looks like it holds a credential
func IsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, sub := range sensitiveKeySubstrings {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}

// Redact returns a copy of the map with sensitive values masked. Nested maps
// are redacted recursively. The input map is not modified.
func Redact(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	out := make(map[string]interface{}, len(m))
	for key, value := range m {
		if IsSensitiveKey(key) {
			out[key] = RedactedValue
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = Redact(nested)
			continue
		}
		out[key] = value
	}
	return out
}
