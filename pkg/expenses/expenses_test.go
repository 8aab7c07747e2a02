package expenses

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func expenseCols() []string {
	return []string{
		"id", "workspace_id", "category", "description", "amount_cents",
		"incurred_on", "created_by", "created_at", "updated_at",
	}
}

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

func TestCreateExpense(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO expenses`).
		WithArgs(int64(3), "travel", "client visit", int64(12500), day("2025-06-01"), nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(41), day("2025-06-01"), day("2025-06-01")))

	e := &Expense{
		WorkspaceID: 3,
		Category:    "travel",
		Description: "client visit",
		AmountCents: 12500,
		IncurredOn:  day("2025-06-01"),
	}
	require.NoError(t, store.Create(context.Background(), e))
	assert.Equal(t, int64(41), e.ID)
}

func TestGetExpenseNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM expenses`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListExpensesAppliesFilters(t *testing.T) {
	store, mock := newMockStore(t)

	from := day("2025-06-01")
	mock.ExpectQuery(`FROM expenses\s+WHERE workspace_id = \$1 AND category = \$2 AND incurred_on >= \$3 ORDER BY incurred_on DESC LIMIT \$4`).
		WithArgs(int64(3), "travel", from, 50).
		WillReturnRows(sqlmock.NewRows(expenseCols()).
			AddRow(int64(41), int64(3), "travel", nil, int64(12500), from, nil, from, from))

	expenses, err := store.List(context.Background(), 3, Filter{Category: "travel", From: &from})
	require.NoError(t, err)
	require.Len(t, expenses, 1)
	assert.Equal(t, int64(12500), expenses[0].AmountCents)
}

func TestDeleteExpenseNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM expenses`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Delete(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExpenseActionsDeclareCategoryEnum(t *testing.T) {
	store, _ := newMockStore(t)
	defs := Actions(store)
	require.Len(t, defs, 5)

	create := findAction(t, defs, "create_expense")
	rule := create.Schema["category"]
	assert.True(t, rule.Required)
	assert.Equal(t, Categories, rule.Enum)

	_, errs := create.Schema.Validate(map[string]interface{}{
		"category":     "gambling",
		"amount_cents": float64(100),
		"incurred_on":  "2025-06-01",
	})
	require.Len(t, errs, 1)
	assert.Equal(t, "category", errs[0].Field)
}

func TestCreateExpenseAction(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "create_expense")

	mock.ExpectQuery(`INSERT INTO expenses`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(41), day("2025-06-01"), day("2025-06-01")))

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"category":     "software",
		"amount_cents": int64(4900),
		"incurred_on":  "2025-06-01",
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)
	require.NotNil(t, auditInfo)
	assert.Equal(t, "41", auditInfo.ResourceID)
	assert.Equal(t, int64(4900), auditInfo.NewValues["amount_cents"])
}

func TestUpdateExpenseActionMissing(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "update_expense")

	mock.ExpectQuery(`FROM expenses`).WillReturnError(sql.ErrNoRows)

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"id": int64(404),
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, action.CodeResourceNotFound, domain.Code)
}
