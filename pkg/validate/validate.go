package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// FieldType identifies the expected JSON type of a field
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
	// TypeDate expects a string in YYYY-MM-DD form
	TypeDate FieldType = "date"
	// TypeEmail expects a string containing a plausible address
	TypeEmail FieldType = "email"
)

// Rule constrains a single payload field
type Rule struct {
	Type     FieldType
	Required bool
	// MinLen and MaxLen bound string length in runes; zero means unbounded
	MinLen int
	MaxLen int
	// Min and Max bound numeric values; nil means unbounded
	Min *float64
	Max *float64
	// Enum restricts a string field to a fixed set of values
	Enum []string
	// Pattern is an anchored regular expression a string field must match
	Pattern *regexp.Regexp
}

// Schema maps field names to their rules
type Schema map[string]Rule

// FieldError describes one validation failure
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error codes attached to field errors
const (
	CodeRequired    = "required"
	CodeInvalidType = "invalid_type"
	CodeTooShort    = "too_short"
	CodeTooLong     = "too_long"
	CodeOutOfRange  = "out_of_range"
	CodeNotInEnum   = "not_in_enum"
	CodeBadFormat   = "bad_format"
	CodeUnknown     = "unknown_field"
)

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Min returns a pointer suitable for Rule.Min
func Min(v float64) *float64 { return &v }

// Max returns a pointer suitable for Rule.Max
func Max(v float64) *float64 { return &v }

// Validate checks raw against the schema. It returns the payload restricted
// to schema fields plus every field error found. Unknown fields are rejected.
func (s Schema) Validate(raw map[string]interface{}) (map[string]interface{}, []FieldError) {
	errs := make([]FieldError, 0)
	clean := make(map[string]interface{}, len(raw))

	for name := range raw {
		if _, ok := s[name]; !ok {
			errs = append(errs, FieldError{
				Field:   name,
				Message: fmt.Sprintf("unknown field %q", name),
				Code:    CodeUnknown,
			})
		}
	}

	for name, rule := range s {
		value, present := raw[name]
		if !present || value == nil {
			if rule.Required {
				errs = append(errs, FieldError{
					Field:   name,
					Message: fmt.Sprintf("%s is required", name),
					Code:    CodeRequired,
				})
			}
			continue
		}

		typed, fieldErrs := rule.check(name, value)
		if len(fieldErrs) > 0 {
			errs = append(errs, fieldErrs...)
			continue
		}
		clean[name] = typed
	}

	return clean, errs
}

func (r Rule) check(name string, value interface{}) (interface{}, []FieldError) {
	switch r.Type {
	case TypeString, TypeDate, TypeEmail, "":
		return r.checkString(name, value)
	case TypeNumber, TypeInteger:
		return r.checkNumber(name, value)
	case TypeBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, []FieldError{typeError(name, "boolean")}
		}
		return b, nil
	case TypeObject:
		m, ok := value.(map[string]interface{})
		if !ok {
			return nil, []FieldError{typeError(name, "object")}
		}
		return m, nil
	case TypeArray:
		a, ok := value.([]interface{})
		if !ok {
			return nil, []FieldError{typeError(name, "array")}
		}
		return a, nil
	default:
		return nil, []FieldError{{
			Field:   name,
			Message: fmt.Sprintf("unsupported field type %q", r.Type),
			Code:    CodeInvalidType,
		}}
	}
}

func (r Rule) checkString(name string, value interface{}) (interface{}, []FieldError) {
	str, ok := value.(string)
	if !ok {
		return nil, []FieldError{typeError(name, "string")}
	}

	errs := make([]FieldError, 0)
	length := len([]rune(str))

	if r.MinLen > 0 && length < r.MinLen {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be at least %d characters", name, r.MinLen),
			Code:    CodeTooShort,
		})
	}
	if r.MaxLen > 0 && length > r.MaxLen {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be at most %d characters", name, r.MaxLen),
			Code:    CodeTooLong,
		})
	}

	switch r.Type {
	case TypeDate:
		if _, err := time.Parse("2006-01-02", str); err != nil {
			errs = append(errs, FieldError{
				Field:   name,
				Message: fmt.Sprintf("%s must be a date in YYYY-MM-DD form", name),
				Code:    CodeBadFormat,
			})
		}
	case TypeEmail:
		if !emailPattern.MatchString(str) {
			errs = append(errs, FieldError{
				Field:   name,
				Message: fmt.Sprintf("%s must be a valid email address", name),
				Code:    CodeBadFormat,
			})
		}
	}

	if len(r.Enum) > 0 && !contains(r.Enum, str) {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be one of: %s", name, strings.Join(r.Enum, ", ")),
			Code:    CodeNotInEnum,
		})
	}

	if r.Pattern != nil && !r.Pattern.MatchString(str) {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s has an invalid format", name),
			Code:    CodeBadFormat,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	return str, nil
}

func (r Rule) checkNumber(name string, value interface{}) (interface{}, []FieldError) {
	var num float64
	switch v := value.(type) {
	case float64:
		num = v
	case int:
		num = float64(v)
	case int64:
		num = float64(v)
	default:
		return nil, []FieldError{typeError(name, "number")}
	}

	errs := make([]FieldError, 0)

	if r.Type == TypeInteger && num != float64(int64(num)) {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be an integer", name),
			Code:    CodeInvalidType,
		})
	}

	if r.Min != nil && num < *r.Min {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be at least %v", name, *r.Min),
			Code:    CodeOutOfRange,
		})
	}
	if r.Max != nil && num > *r.Max {
		errs = append(errs, FieldError{
			Field:   name,
			Message: fmt.Sprintf("%s must be at most %v", name, *r.Max),
			Code:    CodeOutOfRange,
		})
	}

	if len(errs) > 0 {
		return nil, errs
	}
	if r.Type == TypeInteger {
		return int64(num), nil
	}
	return num, nil
}

func typeError(name, want string) FieldError {
	return FieldError{
		Field:   name,
		Message: fmt.Sprintf("%s must be a %s", name, want),
		Code:    CodeInvalidType,
	}
}

func contains(set []string, value string) bool {
	for _, s := range set {
		if s == value {
			return true
		}
	}
	return false
}
