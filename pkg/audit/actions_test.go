package audit

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
)

func auditRequest(payload map[string]interface{}) *action.Request {
	return &action.Request{
		Payload:  payload,
		Identity: &auth.Identity{ID: 10, Email: "admin@acme.test"},
		Subject: &authz.Subject{
			UserID:       10,
			WorkspaceID:  3,
			Role:         auth.RoleAdmin,
			HasWorkspace: true,
		},
		Workspace: &action.Workspace{ID: 3, Slug: "acme"},
	}
}

func findAuditAction(t *testing.T, defs []*action.Definition, name string) *action.Definition {
	t.Helper()
	for _, def := range defs {
		if def.Name == name {
			return def
		}
	}
	t.Fatalf("action %s not defined", name)
	return nil
}

func TestAuditActionsAreAdminOnly(t *testing.T) {
	recorder, _, db := newMockRecorder(t)
	defer db.Close()
	defs := Actions(recorder)

	require.Len(t, defs, 2)
	for _, def := range defs {
		require.NotNil(t, def.Authz, "%s must declare authz", def.Name)
		require.Len(t, def.Authz.RequiredPermissions, 1)
		assert.Equal(t, auth.PermAuditRead, def.Authz.RequiredPermissions[0])
	}

	// audit:read is granted to admins only
	assert.False(t, auth.HasPermission(auth.RoleMember, auth.PermAuditRead))
	assert.True(t, auth.HasPermission(auth.RoleAdmin, auth.PermAuditRead))
}

func TestListAuditLogsAction(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()
	def := findAuditAction(t, Actions(recorder), "list_audit_logs")

	cols := []string{
		"id", "workspace_id", "user_id", "action", "resource_type", "resource_id", "outcome",
		"old_values", "new_values", "changes", "ip_address", "user_agent", "created_at",
	}
	mock.ExpectQuery(`FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(1, 3, 10, "CREATE", "customer", "11", OutcomeSuccess, nil, []byte(`{"name":"Acme"}`), nil, "1.2.3.4", "ua", time.Now()))

	result, _, err := def.Handler(context.Background(), auditRequest(map[string]interface{}{
		"resource_type": "customer",
	}))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.Data["count"])
}

func TestAuditStatsActionDefaultWindow(t *testing.T) {
	recorder, mock, db := newMockRecorder(t)
	defer db.Close()
	def := findAuditAction(t, Actions(recorder), "audit_stats")

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM audit_logs`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(42)))
	mock.ExpectQuery(`GROUP BY action`).
		WillReturnRows(sqlmock.NewRows([]string{"action", "count"}).AddRow("CREATE", int64(30)))
	mock.ExpectQuery(`GROUP BY resource_type`).
		WillReturnRows(sqlmock.NewRows([]string{"resource_type", "count"}).AddRow("customer", int64(25)))
	mock.ExpectQuery(`GROUP BY`).
		WillReturnRows(sqlmock.NewRows([]string{"date", "count"}))

	result, _, err := def.Handler(context.Background(), auditRequest(map[string]interface{}{}))
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, defaultStatsWindowDays, result.Data["window_days"])

	stats, ok := result.Data["stats"].(*Stats)
	require.True(t, ok)
	assert.Equal(t, int64(42), stats.TotalActions)
}
