package security

import (
	"context"
	"fmt"
	"time"
)

// ActivitySource supplies recent-activity aggregates for a (user, workspace)
// pair, typically backed by the audit trail.
type ActivitySource interface {
	ActionCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error)
	DistinctIPCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error)
	DeleteCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error)
	OffHoursCountSince(ctx context.Context, workspaceID, userID int64, since time.Time, startHour, endHour int) (int, error)
}

// DetectorConfig holds the detection thresholds. The defaults mirror
// long-standing operational values; they are configuration rather than
// constants so large tenants can loosen them.
type DetectorConfig struct {
	// MaxActionsPerHour flags unusually high action volume
	MaxActionsPerHour int
	// MaxDistinctIPsPerHour flags IP-address churn
	MaxDistinctIPsPerHour int
	// MaxDeletesPerDay flags delete-heavy sessions
	MaxDeletesPerDay int
	// MaxOffHoursPerDay flags activity outside OffHoursStart..OffHoursEnd UTC
	MaxOffHoursPerDay int
	// OffHoursStart/OffHoursEnd bound the "normal hours" window (UTC hours)
	OffHoursStart int
	OffHoursEnd   int
	// DegradeOpen: when true (always, in practice) detector failures are
	// reported to the caller as a nil flag with an error, never as a block.
	DegradeOpen bool
}

// DefaultDetectorConfig returns the default thresholds
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{
		MaxActionsPerHour:     50,
		MaxDistinctIPsPerHour: 3,
		MaxDeletesPerDay:      10,
		MaxOffHoursPerDay:     5,
		OffHoursStart:         6,
		OffHoursEnd:           22,
		DegradeOpen:           true,
	}
}

// Flag describes why activity was considered suspicious
type Flag struct {
	WorkspaceID int64    `json:"workspace_id"`
	UserID      int64    `json:"user_id"`
	Reasons     []string `json:"reasons"`
}

// Detector applies the heuristics against an ActivitySource. Detection is
// best-effort and advisory only; it never causes a request to be rejected.
type Detector struct {
	source ActivitySource
	config DetectorConfig
	now    func() time.Time
}

// NewDetector creates a detector over the given activity source
func NewDetector(source ActivitySource, config DetectorConfig) *Detector {
	return &Detector{source: source, config: config, now: time.Now}
}

// Check evaluates the heuristics for a (user, workspace) pair. A nil Flag
// means nothing was flagged. Errors from the source are returned for logging
// but must not block the caller's request.
func (d *Detector) Check(ctx context.Context, workspaceID, userID int64) (*Flag, error) {
	now := d.now().UTC()
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	var reasons []string

	actions, err := d.source.ActionCountSince(ctx, workspaceID, userID, hourAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent actions: %w", err)
	}
	if actions > d.config.MaxActionsPerHour {
		reasons = append(reasons, fmt.Sprintf("high action volume: %d actions in the last hour", actions))
	}

	ips, err := d.source.DistinctIPCountSince(ctx, workspaceID, userID, hourAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to count distinct IPs: %w", err)
	}
	if ips >= d.config.MaxDistinctIPsPerHour {
		reasons = append(reasons, fmt.Sprintf("IP churn: %d distinct addresses in the last hour", ips))
	}

	deletes, err := d.source.DeleteCountSince(ctx, workspaceID, userID, dayAgo)
	if err != nil {
		return nil, fmt.Errorf("failed to count deletes: %w", err)
	}
	if deletes >= d.config.MaxDeletesPerDay {
		reasons = append(reasons, fmt.Sprintf("delete-heavy activity: %d deletes in the last day", deletes))
	}

	offHours, err := d.source.OffHoursCountSince(ctx, workspaceID, userID, dayAgo,
		d.config.OffHoursStart, d.config.OffHoursEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to count off-hours activity: %w", err)
	}
	if offHours >= d.config.MaxOffHoursPerDay {
		reasons = append(reasons, fmt.Sprintf("off-hours activity: %d events outside %02d:00-%02d:00 UTC",
			offHours, d.config.OffHoursStart, d.config.OffHoursEnd))
	}

	if len(reasons) == 0 {
		return nil, nil
	}

	return &Flag{WorkspaceID: workspaceID, UserID: userID, Reasons: reasons}, nil
}
