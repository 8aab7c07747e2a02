package security

import "regexp"

// SQL-injection heuristics. All queries in the system are parameterized; this
// screen is defense in depth that rejects obviously hostile payloads before
// any business logic runs.
var sqlInjectionPatterns = []*regexp.Regexp{
	// Statement keywords only count when paired with a companion keyword, so
	// prose like "Update on the Johnson account" passes.
	regexp.MustCompile(`(?is)\b(SELECT|INSERT|UPDATE|DELETE|DROP|UNION)\b.*\b(FROM|INTO|SET|TABLE|DATABASE|WHERE|SELECT)\b`),
	regexp.MustCompile(`--`),
	regexp.MustCompile(`/\*`),
	regexp.MustCompile(`\*/`),
	regexp.MustCompile(`;`),
	regexp.MustCompile(`(?i)['"]\s*(OR|AND)\s*['"]?\s*\d+\s*['"]?\s*=`),
	regexp.MustCompile(`(?i)['"]\s*(OR|AND)\s*['"][^'"]*['"]\s*=\s*['"]`),
}

// containsSQLPattern reports whether a single string matches any heuristic
func containsSQLPattern(s string) bool {
	for _, pattern := range sqlInjectionPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// ValidateSQLParams recursively checks every string leaf of a value and
// returns false the moment any leaf matches a dangerous pattern.
func ValidateSQLParams(value interface{}) bool {
	switch v := value.(type) {
	case string:
		return !containsSQLPattern(v)
	case map[string]interface{}:
		for _, val := range v {
			if !ValidateSQLParams(val) {
				return false
			}
		}
		return true
	case []interface{}:
		for _, val := range v {
			if !ValidateSQLParams(val) {
				return false
			}
		}
		return true
	case []string:
		for _, s := range v {
			if containsSQLPattern(s) {
				return false
			}
		}
		return true
	default:
		return true
	}
}
