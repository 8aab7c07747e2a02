package audit

import (
	"context"
	"fmt"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/observability"
	"github.com/tallyspace/tallyspace/pkg/security"
)

// Recorder persists and queries audit entries
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
	List(ctx context.Context, workspaceID int64, filter Filter) ([]*Entry, error)
	GetStats(ctx context.Context, workspaceID int64, filter Filter) (*Stats, error)
}

// RequestMeta carries the client details attached to every entry
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

// Trail wraps a Recorder with fire-and-forget helpers. Recording failures
// are logged and swallowed so the operation being audited still succeeds.
type Trail struct {
	recorder Recorder
	logger   *observability.Logger
}

// NewTrail creates an audit trail over the given recorder
func NewTrail(recorder Recorder, logger *observability.Logger) *Trail {
	if logger == nil {
		logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Trail{recorder: recorder, logger: logger}
}

// Record persists an entry, redacting sensitive fields first. The error is
// logged and swallowed.
func (t *Trail) Record(ctx context.Context, entry *Entry) {
	entry.Action = NormalizeAction(entry.Action)
	if entry.Outcome == "" {
		entry.Outcome = OutcomeSuccess
	}
	entry.OldValues = security.Redact(entry.OldValues)
	entry.NewValues = security.Redact(entry.NewValues)
	entry.Changes = redactChanges(entry.Changes)

	if err := t.recorder.Record(ctx, entry); err != nil {
		t.logger.WithError(err).WithFields(map[string]interface{}{
			"workspace_id":  entry.WorkspaceID,
			"action":        entry.Action,
			"resource_type": entry.ResourceType,
			"resource_id":   entry.ResourceID,
		}).Error("failed to record audit entry")
	}
}

// RecordEvent implements action.AuditSink. Old and new values present
// together produce a field-level diff.
func (t *Trail) RecordEvent(ctx context.Context, ev *action.AuditEvent) {
	entry := &Entry{
		WorkspaceID:  ev.WorkspaceID,
		UserID:       ev.UserID,
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Outcome:      ev.Outcome,
		OldValues:    ev.OldValues,
		NewValues:    ev.NewValues,
		IPAddress:    ev.IPAddress,
		UserAgent:    ev.UserAgent,
	}
	if ev.OldValues != nil && ev.NewValues != nil {
		entry.Changes = Diff(ev.OldValues, ev.NewValues)
	}
	t.Record(ctx, entry)
}

// LogCreate records a resource creation with its initial values
func (t *Trail) LogCreate(ctx context.Context, workspaceID int64, userID *int64, resourceType, resourceID string, values map[string]interface{}, meta RequestMeta) {
	t.Record(ctx, &Entry{
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Action:       ActionCreate,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    values,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// LogUpdate records a resource update with old and new values plus the
// field-level diff between them
func (t *Trail) LogUpdate(ctx context.Context, workspaceID int64, userID *int64, resourceType, resourceID string, oldValues, newValues map[string]interface{}, meta RequestMeta) {
	t.Record(ctx, &Entry{
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Action:       ActionUpdate,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    oldValues,
		NewValues:    newValues,
		Changes:      Diff(oldValues, newValues),
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// LogDelete records a resource deletion with its final values
func (t *Trail) LogDelete(ctx context.Context, workspaceID int64, userID *int64, resourceType, resourceID string, values map[string]interface{}, meta RequestMeta) {
	t.Record(ctx, &Entry{
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Action:       ActionDelete,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		OldValues:    values,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// LogAction records an arbitrary action verb against a resource
func (t *Trail) LogAction(ctx context.Context, workspaceID int64, userID *int64, action, resourceType, resourceID string, values map[string]interface{}, meta RequestMeta) {
	t.Record(ctx, &Entry{
		WorkspaceID:  workspaceID,
		UserID:       userID,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		NewValues:    values,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

// List returns workspace-scoped entries, newest first
func (t *Trail) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Entry, error) {
	return t.recorder.List(ctx, workspaceID, filter)
}

// GetStats returns aggregated activity for a workspace
func (t *Trail) GetStats(ctx context.Context, workspaceID int64, filter Filter) (*Stats, error) {
	return t.recorder.GetStats(ctx, workspaceID, filter)
}

func redactChanges(changes map[string]Change) map[string]Change {
	if changes == nil {
		return nil
	}
	out := make(map[string]Change, len(changes))
	for key, change := range changes {
		if security.IsSensitiveKey(key) {
			out[key] = Change{Old: security.RedactedValue, New: security.RedactedValue}
		} else {
			out[key] = change
		}
	}
	return out
}

// NopRecorder discards all entries. Used in tests and when auditing is
// disabled by configuration.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, entry *Entry) error { return nil }

func (NopRecorder) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Entry, error) {
	return []*Entry{}, nil
}

func (NopRecorder) GetStats(ctx context.Context, workspaceID int64, filter Filter) (*Stats, error) {
	return nil, fmt.Errorf("audit stats unavailable: recording disabled")
}
