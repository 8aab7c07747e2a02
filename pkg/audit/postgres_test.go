package audit

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRecorder(t *testing.T) (*PostgresRecorder, sqlmock.Sqlmock, *sql.DB) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	recorder, err := NewPostgresRecorder(db)
	require.NoError(t, err)
	return recorder, mock, db
}

func TestNewPostgresRecorderRequiresDB(t *testing.T) {
	_, err := NewPostgresRecorder(nil)
	assert.Error(t, err)
}

func TestRecordInsertsEntry(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()

	userID := int64(7)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO audit_logs`).
		WithArgs(int64(3), &userID, "CREATE", "customer", sqlmock.AnyArg(), OutcomeSuccess,
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(101, now))

	// Outcome left empty defaults to success on insert
	entry := &Entry{
		WorkspaceID:  3,
		UserID:       &userID,
		Action:       "CREATE",
		ResourceType: "customer",
		ResourceID:   "42",
		NewValues:    map[string]interface{}{"name": "Acme"},
		IPAddress:    "203.0.113.9",
	}

	require.NoError(t, recorder.Record(context.Background(), entry))
	assert.Equal(t, int64(101), entry.ID)
	assert.Equal(t, now, entry.CreatedAt)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListScopesByWorkspace(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()

	now := time.Now()
	userID := int64(7)
	rows := sqlmock.NewRows([]string{
		"id", "workspace_id", "user_id", "action", "resource_type", "resource_id", "outcome",
		"old_values", "new_values", "changes", "ip_address", "user_agent", "created_at",
	}).AddRow(
		101, 3, userID, "UPDATE", "invoice", "9", OutcomeSuccess,
		[]byte(`{"status":"draft"}`), []byte(`{"status":"sent"}`),
		[]byte(`{"status":{"old":"draft","new":"sent"}}`),
		"203.0.113.9", "tally-cli/1.0", now,
	)

	mock.ExpectQuery(`FROM audit_logs\s+WHERE workspace_id = \$1`).
		WithArgs(int64(3), int64(50)).
		WillReturnRows(rows)

	entries, err := recorder.List(context.Background(), 3, Filter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, int64(3), entry.WorkspaceID)
	assert.Equal(t, "UPDATE", entry.Action)
	assert.Equal(t, OutcomeSuccess, entry.Outcome)
	assert.Equal(t, "sent", entry.NewValues["status"])
	require.Contains(t, entry.Changes, "status")
	assert.Equal(t, "draft", entry.Changes["status"].Old)
	assert.Equal(t, "sent", entry.Changes["status"].New)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAppliesFilters(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()

	userID := int64(7)
	start := time.Now().Add(-24 * time.Hour)

	mock.ExpectQuery(`AND action = \$2 AND resource_type = \$3 AND user_id = \$4 AND created_at >= \$5`).
		WithArgs(int64(3), "DELETE", "customer", userID, start, int64(10), int64(20)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "workspace_id", "user_id", "action", "resource_type", "resource_id", "outcome",
			"old_values", "new_values", "changes", "ip_address", "user_agent", "created_at",
		}))

	entries, err := recorder.List(context.Background(), 3, Filter{
		Action:       "delete",
		ResourceType: "customer",
		UserID:       &userID,
		StartTime:    &start,
		Limit:        10,
		Offset:       20,
	})
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetStats(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs WHERE workspace_id = \$1`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	mock.ExpectQuery(`SELECT action, COUNT\(\*\)`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).
			AddRow("CREATE", 7).AddRow("DELETE", 5))

	mock.ExpectQuery(`SELECT resource_type, COUNT\(\*\)`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "count"}).
			AddRow("customer", 12))

	mock.ExpectQuery(`GROUP BY day`).
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"day", "count"}).
			AddRow("2026-08-31", 12))

	stats, err := recorder.GetStats(context.Background(), 3, Filter{})
	require.NoError(t, err)
	assert.Equal(t, int64(12), stats.TotalActions)
	assert.Equal(t, int64(7), stats.ActionsByType["CREATE"])
	assert.Equal(t, int64(12), stats.ActionsByResource["customer"])
	require.Len(t, stats.DailyActivity, 1)
	assert.Equal(t, "2026-08-31", stats.DailyActivity[0].Date)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestActivityCounts(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()

	since := time.Now().Add(-time.Hour)

	t.Run("actions", func(t *testing.T) {
		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
			WithArgs(int64(3), int64(7), since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

		count, err := recorder.ActionCountSince(context.Background(), 3, 7, since)
		require.NoError(t, err)
		assert.Equal(t, 42, count)
	})

	t.Run("distinct ips", func(t *testing.T) {
		mock.ExpectQuery(`COUNT\(DISTINCT ip_address\)`).
			WithArgs(int64(3), int64(7), since).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

		count, err := recorder.DistinctIPCountSince(context.Background(), 3, 7, since)
		require.NoError(t, err)
		assert.Equal(t, 2, count)
	})

	t.Run("deletes", func(t *testing.T) {
		mock.ExpectQuery(`AND action = \$4`).
			WithArgs(int64(3), int64(7), since, "DELETE").
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		count, err := recorder.DeleteCountSince(context.Background(), 3, 7, since)
		require.NoError(t, err)
		assert.Equal(t, 3, count)
	})

	t.Run("off hours", func(t *testing.T) {
		mock.ExpectQuery(`EXTRACT\(HOUR FROM created_at\)`).
			WithArgs(int64(3), int64(7), since, 6, 22).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))

		count, err := recorder.OffHoursCountSince(context.Background(), 3, 7, since, 6, 22)
		require.NoError(t, err)
		assert.Equal(t, 5, count)
	})

	require.NoError(t, mock.ExpectationsWereMet())
}
