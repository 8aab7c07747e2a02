package audit

import (
	"strings"
	"time"
)

// Common action verbs. Actions are stored upper-cased; custom verbs pass
// through NormalizeAction.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionDelete = "DELETE"

	// Security-event actions recorded through the same trail
	ActionSecurityViolation  = "SECURITY_VIOLATION"
	ActionSuspiciousActivity = "SUSPICIOUS_ACTIVITY"
)

// Outcome values an entry records for the operation it describes
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// NormalizeAction upper-cases an action verb for storage
func NormalizeAction(action string) string {
	return strings.ToUpper(strings.TrimSpace(action))
}

// Change tracks a single field's before/after values
type Change struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// Entry is one immutable audit record
type Entry struct {
	ID           int64                  `json:"id"`
	WorkspaceID  int64                  `json:"workspace_id"`
	UserID       *int64                 `json:"user_id,omitempty"` // nil for system actions
	Action       string                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Outcome      string                 `json:"outcome"`
	OldValues    map[string]interface{} `json:"old_values,omitempty"`
	NewValues    map[string]interface{} `json:"new_values,omitempty"`
	Changes      map[string]Change      `json:"changes,omitempty"`
	IPAddress    string                 `json:"ip_address,omitempty"`
	UserAgent    string                 `json:"user_agent,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Filter narrows List queries. All fields are optional.
type Filter struct {
	Action       string
	ResourceType string
	ResourceID   string
	UserID       *int64
	StartTime    *time.Time
	EndTime      *time.Time
	Limit        int
	Offset       int
}

// Stats aggregates a workspace's recent audit activity
type Stats struct {
	TotalActions      int64            `json:"total_actions"`
	ActionsByType     map[string]int64 `json:"actions_by_type"`
	ActionsByResource map[string]int64 `json:"actions_by_resource"`
	DailyActivity     []DayCount       `json:"daily_activity"`
}

// DayCount is one day's action count
type DayCount struct {
	Date  string `json:"date"` // YYYY-MM-DD
	Count int64  `json:"count"`
}

// Diff computes the field-level difference between old and new value maps.
// A key appears in the result only when its value actually changed; keys
// present on one side only are reported with a nil counterpart.
func Diff(oldValues, newValues map[string]interface{}) map[string]Change {
	changes := make(map[string]Change)

	for key, oldVal := range oldValues {
		newVal, ok := newValues[key]
		if !ok {
			changes[key] = Change{Old: oldVal, New: nil}
			continue
		}
		if !equalValue(oldVal, newVal) {
			changes[key] = Change{Old: oldVal, New: newVal}
		}
	}

	for key, newVal := range newValues {
		if _, ok := oldValues[key]; !ok {
			changes[key] = Change{Old: nil, New: newVal}
		}
	}

	if len(changes) == 0 {
		return nil
	}
	return changes
}

func equalValue(a, b interface{}) bool {
	if a == nil && b == nil {
		return true
	}
	// Comparable scalars cover the snapshot maps produced by the services;
	// anything non-comparable is treated as changed.
	defer func() { recover() }()
	return a == b
}
