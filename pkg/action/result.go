package action

import (
	"fmt"

	"github.com/tallyspace/tallyspace/pkg/validate"
)

// Error codes surfaced in failure results. Authorization denial codes come
// from pkg/authz and pass through verbatim.
const (
	CodeAuthRequired      = "auth_required"
	CodeRateLimitExceeded = "rate_limit_exceeded"
	CodeSecurityViolation = "security_violation"
	CodeWorkspaceNotFound = "workspace_not_found"
	CodeResourceNotFound  = "resource_not_found"
	CodeServerError       = "server_error"
)

// Result is the uniform outcome of every action invocation
type Result struct {
	Success bool                   `json:"success"`
	Data    map[string]interface{} `json:"data,omitempty"`
	Message string                 `json:"message,omitempty"`
	Errors  []validate.FieldError  `json:"errors,omitempty"`
}

// OK builds a success result
func OK(data map[string]interface{}) *Result {
	return &Result{Success: true, Data: data}
}

// OKMessage builds a success result with a message
func OKMessage(message string, data map[string]interface{}) *Result {
	return &Result{Success: true, Message: message, Data: data}
}

// Fail builds a failure result with a single coded error
func Fail(code, message string) *Result {
	return &Result{
		Success: false,
		Message: message,
		Errors:  []validate.FieldError{{Message: message, Code: code}},
	}
}

// FailField builds a failure result tied to a specific payload field
func FailField(field, code, message string) *Result {
	return &Result{
		Success: false,
		Message: message,
		Errors:  []validate.FieldError{{Field: field, Message: message, Code: code}},
	}
}

// FirstCode returns the code of the first error, or "" for success results
func (r *Result) FirstCode() string {
	if len(r.Errors) == 0 {
		return ""
	}
	return r.Errors[0].Code
}

// DomainError is a business-rule failure a handler returns as an ordinary
// error. The executor converts it into a failure result instead of a
// server_error.
type DomainError struct {
	Code    string
	Message string
	Field   string
}

func (e *DomainError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewDomainError builds a domain error with a code and message
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NotFound builds the domain error for a missing workspace-scoped resource
func NotFound(resource string) *DomainError {
	return &DomainError{
		Code:    CodeResourceNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}
