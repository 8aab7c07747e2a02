package invoices

import (
	"context"
	"database/sql"
	"testing"
	"time"

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

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func headerCols() []string {
	return []string{
		"id", "workspace_id", "customer_id", "number", "status", "issue_date",
		"due_date", "notes", "total_cents", "paid_cents", "version",
		"created_by", "created_at", "updated_at",
	}
}

func itemCols() []string {
	return []string{"id", "invoice_id", "position", "description", "quantity", "unit_price_cents", "amount_cents"}
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusDraft, StatusSent))
	assert.True(t, CanTransition(StatusDraft, StatusVoid))
	assert.True(t, CanTransition(StatusSent, StatusPaid))
	assert.True(t, CanTransition(StatusSent, StatusVoid))

	assert.False(t, CanTransition(StatusDraft, StatusPaid))
	assert.False(t, CanTransition(StatusPaid, StatusDraft))
	assert.False(t, CanTransition(StatusVoid, StatusSent))
}

func TestCreateInvoiceWritesHeaderAndItemsInOneTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoices`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(int64(21), 1, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`INSERT INTO invoice_line_items`).
		WithArgs(int64(21), 0, "Consulting", 2, int64(15000), int64(30000)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(31)))
	mock.ExpectQuery(`INSERT INTO invoice_line_items`).
		WithArgs(int64(21), 1, "Hosting", 1, int64(5000), int64(5000)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(32)))
	mock.ExpectCommit()

	inv := &Invoice{
		WorkspaceID: 3,
		CustomerID:  11,
		IssueDate:   day("2025-06-01"),
		LineItems: []*LineItem{
			{Description: "Consulting", Quantity: 2, UnitPriceCents: 15000},
			{Description: "Hosting", Quantity: 1, UnitPriceCents: 5000},
		},
	}
	require.NoError(t, store.Create(context.Background(), inv))

	assert.Equal(t, int64(21), inv.ID)
	assert.Equal(t, StatusDraft, inv.Status)
	assert.Equal(t, int64(35000), inv.TotalCents)
	assert.NotEmpty(t, inv.Number)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateInvoiceRollsBackOnItemFailure(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO invoices`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "version", "created_at", "updated_at"}).
			AddRow(int64(21), 1, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`INSERT INTO invoice_line_items`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	inv := &Invoice{
		WorkspaceID: 3,
		CustomerID:  11,
		IssueDate:   day("2025-06-01"),
		LineItems:   []*LineItem{{Description: "Consulting", Quantity: 1, UnitPriceCents: 100}},
	}
	err := store.Create(context.Background(), inv)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetInvoiceLoadsItems(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM invoices\s+WHERE workspace_id = \$1 AND id = \$2`).
		WithArgs(int64(3), int64(21)).
		WillReturnRows(sqlmock.NewRows(headerCols()).AddRow(
			int64(21), int64(3), int64(11), "INV-AB12CD34", "sent", day("2025-06-01"),
			nil, nil, int64(35000), int64(0), 2, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WithArgs(int64(21)).
		WillReturnRows(sqlmock.NewRows(itemCols()).
			AddRow(int64(31), int64(21), 0, "Consulting", 2, int64(15000), int64(30000)))

	inv, err := store.Get(context.Background(), 3, 21)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, inv.Status)
	assert.Equal(t, int64(35000), inv.BalanceCents())
	require.Len(t, inv.LineItems, 1)
	assert.Equal(t, "Consulting", inv.LineItems[0].Description)
}

func TestGetInvoiceNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM invoices`).WillReturnError(sql.ErrNoRows)

	_, err := store.Get(context.Background(), 3, 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateInvoiceRejectsPaid(t *testing.T) {
	store, _ := newMockStore(t)

	err := store.Update(context.Background(), &Invoice{ID: 21, WorkspaceID: 3, Status: StatusPaid})
	assert.ErrorIs(t, err, ErrImmutable)
}

func TestUpdateInvoiceVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.Update(context.Background(), &Invoice{
		ID: 21, WorkspaceID: 3, Status: StatusDraft, Version: 1,
		IssueDate: day("2025-06-01"),
	})
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestTransitionInvoice(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM invoices`).
		WillReturnRows(sqlmock.NewRows(headerCols()).AddRow(
			int64(21), int64(3), int64(11), "INV-AB12CD34", "draft", day("2025-06-01"),
			nil, nil, int64(35000), int64(0), 1, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WillReturnRows(sqlmock.NewRows(itemCols()))
	mock.ExpectExec(`UPDATE invoices\s+SET status = \$1`).
		WithArgs("sent", int64(3), int64(21), 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	inv, err := store.Transition(context.Background(), 3, 21, StatusSent)
	require.NoError(t, err)
	assert.Equal(t, StatusSent, inv.Status)
	assert.Equal(t, 2, inv.Version)
}

func TestTransitionInvoiceInvalid(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM invoices`).
		WillReturnRows(sqlmock.NewRows(headerCols()).AddRow(
			int64(21), int64(3), int64(11), "INV-AB12CD34", "paid", day("2025-06-01"),
			nil, nil, int64(35000), int64(35000), 3, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WillReturnRows(sqlmock.NewRows(itemCols()))

	_, err := store.Transition(context.Background(), 3, 21, StatusSent)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteInvoiceRejectsPaid(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM invoices`).
		WillReturnRows(sqlmock.NewRows(headerCols()).AddRow(
			int64(21), int64(3), int64(11), "INV-AB12CD34", "paid", day("2025-06-01"),
			nil, nil, int64(35000), int64(35000), 3, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WillReturnRows(sqlmock.NewRows(itemCols()))

	err := store.Delete(context.Background(), 3, 21)
	assert.ErrorIs(t, err, ErrImmutable)
}
