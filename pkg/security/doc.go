// Package security provides input screening applied before any business logic
// sees request data.
//
// Sanitize recursively strips dangerous markup from every string leaf of a
// value; it is idempotent, so sanitizing already-clean input changes nothing.
// ValidateSQLParams recursively rejects values matching SQL-injection
// heuristics. Redact masks sensitive fields by key-substring match before
// data reaches the audit trail.
//
// The suspicious-activity Detector flags unusual (user, workspace) behavior
// from recent audit data. Detection never blocks a request: the DegradeOpen
// policy means detector failures are logged and ignored, a deliberate
// availability-over-strictness tradeoff.
package security
