// Package validate checks action payloads against declarative per-field
// schemas.
//
// A Schema maps field names to rules (type, required, bounds, enum, pattern).
// Validate returns the typed payload alongside a list of field errors; all
// fields are checked so callers see every problem at once rather than the
// first one.
package validate
