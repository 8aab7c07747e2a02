package action

// Payload accessors. Validation has already enforced the declared types, so
// these return zero values rather than errors for absent fields.

// Has reports whether the validated payload contains the field
func (r *Request) Has(key string) bool {
	_, ok := r.Payload[key]
	return ok
}

// String returns a string payload field, or "" when absent
func (r *Request) String(key string) string {
	v, _ := r.Payload[key].(string)
	return v
}

// Int64 returns an integer payload field, or 0 when absent
func (r *Request) Int64(key string) int64 {
	switch v := r.Payload[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case int:
		return int64(v)
	}
	return 0
}

// Float64 returns a numeric payload field, or 0 when absent
func (r *Request) Float64(key string) float64 {
	switch v := r.Payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Bool returns a boolean payload field, or false when absent
func (r *Request) Bool(key string) bool {
	v, _ := r.Payload[key].(bool)
	return v
}

// Array returns an array payload field, or nil when absent
func (r *Request) Array(key string) []interface{} {
	v, _ := r.Payload[key].([]interface{})
	return v
}
