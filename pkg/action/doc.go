// Package action is the invocation spine every business operation passes
// through.
//
// A Definition declares an action's payload schema, authentication and
// authorization requirements, rate limit, and audit settings alongside its
// handler. The Executor runs each invocation through ordered stages:
//
//	validate -> screen input -> authenticate -> rate limit ->
//	resolve workspace -> authorize -> suspicious-activity check ->
//	handler -> audit
//
// Failure at any stage short-circuits and returns a structured Result; later
// stages and the handler never run. Nothing is retried. The outermost
// boundary recovers panics into a server_error result so callers always
// receive a Result, never a raw error or stack trace.
package action
