package customers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
)

func testRequest(payload map[string]interface{}) *action.Request {
	return &action.Request{
		Payload:  payload,
		Identity: &auth.Identity{ID: 9, Email: "user@acme.test"},
		Subject: &authz.Subject{
			UserID:       9,
			WorkspaceID:  3,
			Role:         auth.RoleMember,
			HasWorkspace: true,
		},
		Workspace: &action.Workspace{ID: 3, Slug: "acme"},
	}
}

func findAction(t *testing.T, defs []*action.Definition, name string) *action.Definition {
	t.Helper()
	for _, def := range defs {
		if def.Name == name {
			return def
		}
	}
	t.Fatalf("action %s not defined", name)
	return nil
}

func TestActionsDeclareAuthz(t *testing.T) {
	store, _ := newMockStore(t)
	defs := Actions(store)

	require.Len(t, defs, 5)
	for _, def := range defs {
		assert.True(t, def.RequireAuth, "%s must require auth", def.Name)
		assert.True(t, def.RequireWorkspace, "%s must require workspace", def.Name)
		assert.NotNil(t, def.Authz, "%s must declare authz", def.Name)
	}

	del := findAction(t, defs, "delete_customer")
	require.Len(t, del.Authz.RequiredPermissions, 1)
	assert.Equal(t, auth.PermCustomersDelete, del.Authz.RequiredPermissions[0])
	// customers:delete is granted to admins only
	assert.False(t, auth.HasPermission(auth.RoleMember, auth.PermCustomersDelete))
}

func TestCreateCustomerAction(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "create_customer")

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(existsRows(false))
	mock.ExpectQuery(`INSERT INTO customers`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(11), now(), now()))

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"name": "Acme Corp",
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, auditInfo)
	assert.Equal(t, "11", auditInfo.ResourceID)
	assert.Equal(t, "Acme Corp", auditInfo.NewValues["name"])
}

func TestCreateCustomerActionDuplicate(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "create_customer")

	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(existsRows(true))

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"name": "Acme Corp",
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, "duplicate_name", domain.Code)
}

func TestUpdateCustomerActionMergesFields(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "update_customer")

	mock.ExpectQuery(`FROM customers`).
		WillReturnRows(customerRows().AddRow(
			int64(11), int64(3), "Old Name", "billing@acme.test", nil, nil, nil, nil, now(), now()))
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnRows(existsRows(false))
	mock.ExpectExec(`UPDATE customers`).
		WithArgs("New Name", "billing@acme.test", "", "", "", int64(3), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"id":   int64(11),
		"name": "New Name",
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, auditInfo)
	assert.Equal(t, "Old Name", auditInfo.OldValues["name"])
	assert.Equal(t, "New Name", auditInfo.NewValues["name"])
	// untouched fields carry through
	assert.Equal(t, "billing@acme.test", auditInfo.NewValues["email"])
}

func TestDeleteCustomerActionMissing(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "delete_customer")

	mock.ExpectQuery(`FROM customers`).WillReturnError(sql.ErrNoRows)

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"id": int64(404),
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, action.CodeResourceNotFound, domain.Code)
}
