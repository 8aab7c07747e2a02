package customers

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func existsRows(taken bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"exists"}).AddRow(taken)
}

func TestCreateCustomer(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(3), "Acme Corp", int64(0)).
		WillReturnRows(existsRows(false))
	mock.ExpectQuery(`INSERT INTO customers`).
		WithArgs(int64(3), "Acme Corp", "billing@acme.test", "", "", "", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).
			AddRow(int64(11), now(), now()))

	c := &Customer{WorkspaceID: 3, Name: "Acme Corp", Email: "billing@acme.test"}
	require.NoError(t, store.Create(context.Background(), c))
	assert.Equal(t, int64(11), c.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateCustomerDuplicateName(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(3), "Acme Corp", int64(0)).
		WillReturnRows(existsRows(true))

	err := store.Create(context.Background(), &Customer{WorkspaceID: 3, Name: "Acme Corp"})
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestGetCustomerScopedToWorkspace(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM customers\s+WHERE workspace_id = \$1 AND id = \$2`).
		WithArgs(int64(3), int64(11)).
		WillReturnRows(customerRows().AddRow(
			int64(11), int64(3), "Acme Corp", "billing@acme.test", nil, nil, nil, nil, now(), now()))

	c, err := store.Get(context.Background(), 3, 11)
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", c.Name)
	assert.Equal(t, "billing@acme.test", c.Email)
}

func TestGetCustomerNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM customers`).
		WithArgs(int64(3), int64(404)).
		WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListCustomersAppliesFilter(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM customers\s+WHERE workspace_id = \$1 AND name ILIKE \$2 ORDER BY name ASC LIMIT \$3`).
		WithArgs(int64(3), "%acme%", 25).
		WillReturnRows(customerRows().AddRow(
			int64(11), int64(3), "Acme Corp", nil, nil, nil, nil, nil, now(), now()))

	customers, err := store.List(context.Background(), 3, Filter{Search: "acme", Limit: 25})
	require.NoError(t, err)
	require.Len(t, customers, 1)
	assert.Equal(t, "Acme Corp", customers[0].Name)
}

func TestListCustomersDefaultLimit(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`LIMIT \$2`).
		WithArgs(int64(3), 50).
		WillReturnRows(customerRows())

	_, err := store.List(context.Background(), 3, Filter{})
	require.NoError(t, err)
}

func TestUpdateCustomerNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs(int64(3), "Acme Corp", int64(11)).
		WillReturnRows(existsRows(false))
	mock.ExpectExec(`UPDATE customers`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Update(context.Background(), &Customer{ID: 11, WorkspaceID: 3, Name: "Acme Corp"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteCustomer(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM customers WHERE workspace_id = \$1 AND id = \$2`).
		WithArgs(int64(3), int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.Delete(context.Background(), 3, 11))
}
