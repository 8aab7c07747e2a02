// Package audit records the append-only trail of who did what, when, with
// before/after values.
//
// Entries are written once per authorized action attempt and never updated or
// deleted by the application; no mutation API exists. Updates carry a
// field-level diff computed by comparing old and new value maps key by key.
//
// The Trail wrapper provides fire-and-forget helpers: recording failures are
// logged and swallowed so they never mask or fail the primary operation.
// Queries are workspace-scoped and ordered by time descending.
package audit
