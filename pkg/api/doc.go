// Package api exposes the action registry over HTTP. Every business
// operation is a named action invoked by POST, either standalone or
// scoped to a workspace slug; the executor applies the full pipeline
// before the handler runs.
package api
