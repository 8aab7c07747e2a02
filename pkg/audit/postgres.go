package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

const defaultListLimit = 50

// PostgresRecorder persists audit entries to the audit_logs table.
// It also implements the activity counting used by suspicious-activity
// detection.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder creates a database-backed audit recorder
func NewPostgresRecorder(db *sql.DB) (*PostgresRecorder, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &PostgresRecorder{db: db}, nil
}

// Record inserts a new entry. Entries are never updated or deleted.
func (r *PostgresRecorder) Record(ctx context.Context, entry *Entry) error {
	var oldJSON, newJSON, changesJSON []byte
	var err error

	if entry.OldValues != nil {
		oldJSON, err = json.Marshal(entry.OldValues)
		if err != nil {
			return fmt.Errorf("failed to marshal old values: %w", err)
		}
	}
	if entry.NewValues != nil {
		newJSON, err = json.Marshal(entry.NewValues)
		if err != nil {
			return fmt.Errorf("failed to marshal new values: %w", err)
		}
	}
	if entry.Changes != nil {
		changesJSON, err = json.Marshal(entry.Changes)
		if err != nil {
			return fmt.Errorf("failed to marshal changes: %w", err)
		}
	}

	outcome := entry.Outcome
	if outcome == "" {
		outcome = OutcomeSuccess
	}

	query := `
		INSERT INTO audit_logs (
			workspace_id, user_id, action, resource_type, resource_id, outcome,
			old_values, new_values, changes, ip_address, user_agent
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at
	`

	err = r.db.QueryRowContext(ctx, query,
		entry.WorkspaceID, entry.UserID, entry.Action,
		entry.ResourceType, nullString(entry.ResourceID), outcome,
		oldJSON, newJSON, changesJSON,
		nullString(entry.IPAddress), nullString(entry.UserAgent),
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}

	return nil
}

// List returns a workspace's entries, newest first
func (r *PostgresRecorder) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Entry, error) {
	query := `
		SELECT
			id, workspace_id, user_id, action, resource_type, resource_id, outcome,
			old_values, new_values, changes, ip_address, user_agent, created_at
		FROM audit_logs
		WHERE workspace_id = $1
	`

	args := []interface{}{workspaceID}
	argCount := 2

	if filter.Action != "" {
		query += fmt.Sprintf(" AND action = $%d", argCount)
		args = append(args, NormalizeAction(filter.Action))
		argCount++
	}

	if filter.ResourceType != "" {
		query += fmt.Sprintf(" AND resource_type = $%d", argCount)
		args = append(args, filter.ResourceType)
		argCount++
	}

	if filter.ResourceID != "" {
		query += fmt.Sprintf(" AND resource_id = $%d", argCount)
		args = append(args, filter.ResourceID)
		argCount++
	}

	if filter.UserID != nil {
		query += fmt.Sprintf(" AND user_id = $%d", argCount)
		args = append(args, *filter.UserID)
		argCount++
	}

	if filter.StartTime != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
		argCount++
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)
	argCount++

	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	defer rows.Close()

	entries := make([]*Entry, 0)
	for rows.Next() {
		entry := &Entry{}
		var oldJSON, newJSON, changesJSON []byte
		var resourceID, ipAddress, userAgent sql.NullString

		err := rows.Scan(
			&entry.ID, &entry.WorkspaceID, &entry.UserID, &entry.Action,
			&entry.ResourceType, &resourceID, &entry.Outcome,
			&oldJSON, &newJSON, &changesJSON,
			&ipAddress, &userAgent, &entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit log: %w", err)
		}

		entry.ResourceID = resourceID.String
		entry.IPAddress = ipAddress.String
		entry.UserAgent = userAgent.String

		if len(oldJSON) > 0 {
			if err := json.Unmarshal(oldJSON, &entry.OldValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal old values: %w", err)
			}
		}
		if len(newJSON) > 0 {
			if err := json.Unmarshal(newJSON, &entry.NewValues); err != nil {
				return nil, fmt.Errorf("failed to unmarshal new values: %w", err)
			}
		}
		if len(changesJSON) > 0 {
			if err := json.Unmarshal(changesJSON, &entry.Changes); err != nil {
				return nil, fmt.Errorf("failed to unmarshal changes: %w", err)
			}
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit logs: %w", err)
	}

	return entries, nil
}

// GetStats aggregates a workspace's audit activity within the filter's
// time range
func (r *PostgresRecorder) GetStats(ctx context.Context, workspaceID int64, filter Filter) (*Stats, error) {
	stats := &Stats{
		ActionsByType:     make(map[string]int64),
		ActionsByResource: make(map[string]int64),
		DailyActivity:     make([]DayCount, 0),
	}

	whereClause := "WHERE workspace_id = $1"
	args := []interface{}{workspaceID}
	argCount := 2

	if filter.StartTime != nil {
		whereClause += fmt.Sprintf(" AND created_at >= $%d", argCount)
		args = append(args, *filter.StartTime)
		argCount++
	}

	if filter.EndTime != nil {
		whereClause += fmt.Sprintf(" AND created_at <= $%d", argCount)
		args = append(args, *filter.EndTime)
	}

	err := r.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", whereClause), args...,
	).Scan(&stats.TotalActions)
	if err != nil {
		return nil, fmt.Errorf("failed to get total actions: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT action, COUNT(*) FROM audit_logs %s GROUP BY action", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions by type: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var action string
		var count int64
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		stats.ActionsByType[action] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx,
		fmt.Sprintf("SELECT resource_type, COUNT(*) FROM audit_logs %s GROUP BY resource_type", whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get actions by resource: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var resourceType string
		var count int64
		if err := rows.Scan(&resourceType, &count); err != nil {
			return nil, err
		}
		stats.ActionsByResource[resourceType] = count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT TO_CHAR(created_at, 'YYYY-MM-DD') AS day, COUNT(*)
		FROM audit_logs %s
		GROUP BY day
		ORDER BY day DESC
		LIMIT 30`, whereClause), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get daily activity: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day DayCount
		if err := rows.Scan(&day.Date, &day.Count); err != nil {
			return nil, err
		}
		stats.DailyActivity = append(stats.DailyActivity, day)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}

// ActionCountSince counts a user's actions in a workspace since the given time
func (r *PostgresRecorder) ActionCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE workspace_id = $1 AND user_id = $2 AND created_at >= $3`,
		workspaceID, userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count actions: %w", err)
	}
	return count, nil
}

// DistinctIPCountSince counts the distinct source IPs a user acted from
func (r *PostgresRecorder) DistinctIPCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT ip_address) FROM audit_logs
		WHERE workspace_id = $1 AND user_id = $2 AND created_at >= $3 AND ip_address IS NOT NULL`,
		workspaceID, userID, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct IPs: %w", err)
	}
	return count, nil
}

// DeleteCountSince counts a user's delete actions
func (r *PostgresRecorder) DeleteCountSince(ctx context.Context, workspaceID, userID int64, since time.Time) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE workspace_id = $1 AND user_id = $2 AND created_at >= $3 AND action = $4`,
		workspaceID, userID, since, ActionDelete,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count deletes: %w", err)
	}
	return count, nil
}

// OffHoursCountSince counts a user's actions outside the startHour..endHour
// working window (server time)
func (r *PostgresRecorder) OffHoursCountSince(ctx context.Context, workspaceID, userID int64, since time.Time, startHour, endHour int) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM audit_logs
		WHERE workspace_id = $1 AND user_id = $2 AND created_at >= $3
		AND (EXTRACT(HOUR FROM created_at) < $4 OR EXTRACT(HOUR FROM created_at) >= $5)`,
		workspaceID, userID, since, startHour, endHour,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count off-hours actions: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
