package payments

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
	"github.com/tallyspace/tallyspace/pkg/invoices"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db, invoices.NewPostgresStore(db)), mock
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func invoiceCols() []string {
	return []string{
		"id", "workspace_id", "customer_id", "number", "status", "issue_date",
		"due_date", "notes", "total_cents", "paid_cents", "version",
		"created_by", "created_at", "updated_at",
	}
}

func itemCols() []string {
	return []string{"id", "invoice_id", "position", "description", "quantity", "unit_price_cents", "amount_cents"}
}

// expectInvoiceLoad queues the header and line item queries Record issues
// before writing anything.
func expectInvoiceLoad(mock sqlmock.Sqlmock, status string, totalCents, paidCents int64, version int) {
	mock.ExpectQuery(`FROM invoices`).
		WillReturnRows(sqlmock.NewRows(invoiceCols()).AddRow(
			int64(21), int64(3), int64(11), "INV-AB12CD34", status, day("2025-06-01"),
			nil, nil, totalCents, paidCents, version, nil, day("2025-06-01"), day("2025-06-01")))
	mock.ExpectQuery(`FROM invoice_line_items`).
		WillReturnRows(sqlmock.NewRows(itemCols()))
}

func TestRecordPartialPayment(t *testing.T) {
	store, mock := newMockStore(t)

	expectInvoiceLoad(mock, "sent", 35000, 0, 2)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(61), day("2025-06-02")))
	mock.ExpectExec(`UPDATE invoices\s+SET paid_cents = \$1`).
		WithArgs(int64(20000), "sent", int64(3), int64(21), 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := &Payment{WorkspaceID: 3, InvoiceID: 21, AmountCents: 20000}
	inv, err := store.Record(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusSent, inv.Status)
	assert.Equal(t, int64(15000), inv.BalanceCents())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordFinalPaymentMarksInvoicePaid(t *testing.T) {
	store, mock := newMockStore(t)

	expectInvoiceLoad(mock, "sent", 35000, 20000, 3)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(62), day("2025-06-03")))
	mock.ExpectExec(`UPDATE invoices\s+SET paid_cents = \$1`).
		WithArgs(int64(35000), "paid", int64(3), int64(21), 3).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	p := &Payment{WorkspaceID: 3, InvoiceID: 21, AmountCents: 15000}
	inv, err := store.Record(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, invoices.StatusPaid, inv.Status)
	assert.Zero(t, inv.BalanceCents())
}

func TestRecordRejectsDraftInvoice(t *testing.T) {
	store, mock := newMockStore(t)

	expectInvoiceLoad(mock, "draft", 35000, 0, 1)

	_, err := store.Record(context.Background(), &Payment{WorkspaceID: 3, InvoiceID: 21, AmountCents: 100})
	assert.ErrorIs(t, err, ErrInvoiceNotPayable)
}

func TestRecordRejectsOverpayment(t *testing.T) {
	store, mock := newMockStore(t)

	expectInvoiceLoad(mock, "sent", 35000, 30000, 4)

	_, err := store.Record(context.Background(), &Payment{WorkspaceID: 3, InvoiceID: 21, AmountCents: 10000})
	assert.ErrorIs(t, err, ErrExceedsBalance)
}

func TestRecordVersionConflictRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	expectInvoiceLoad(mock, "sent", 35000, 0, 2)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(61), day("2025-06-02")))
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Record(context.Background(), &Payment{WorkspaceID: 3, InvoiceID: 21, AmountCents: 100})
	assert.ErrorIs(t, err, ErrVersionConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeletePaymentRestoresBalance(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`FROM payments`).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "workspace_id", "invoice_id", "amount_cents", "method", "reference",
			"paid_at", "created_by", "created_at",
		}).AddRow(int64(61), int64(3), int64(21), int64(20000), nil, nil,
			day("2025-06-02"), nil, day("2025-06-02")))
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM payments`).
		WithArgs(int64(3), int64(61)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE invoices\s+SET paid_cents = paid_cents - \$1`).
		WithArgs(int64(20000), int64(3), int64(21)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Delete(context.Background(), 3, 61))
	assert.NoError(t, mock.ExpectationsWereMet())
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

func TestRecordPaymentActionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "record_payment")

	expectInvoiceLoad(mock, "sent", 35000, 0, 2)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(61), day("2025-06-02")))
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, _, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"invoice_id":   int64(21),
		"amount_cents": int64(100),
	}))
	require.Error(t, err)

	var domain *action.DomainError
	require.ErrorAs(t, err, &domain)
	assert.Equal(t, "conflict", domain.Code)
}

func TestRecordPaymentActionSuccess(t *testing.T) {
	store, mock := newMockStore(t)
	def := findAction(t, Actions(store), "record_payment")

	expectInvoiceLoad(mock, "sent", 35000, 20000, 3)
	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO payments`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(62), day("2025-06-03")))
	mock.ExpectExec(`UPDATE invoices`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	result, auditInfo, err := def.Handler(context.Background(), testRequest(map[string]interface{}{
		"invoice_id":   int64(21),
		"amount_cents": int64(15000),
	}))
	require.NoError(t, err)
	assert.True(t, result.Success)

	invoiceData := result.Data["invoice"].(map[string]interface{})
	assert.Equal(t, "paid", invoiceData["status"])
	assert.Equal(t, int64(0), invoiceData["balance_cents"])
	require.NotNil(t, auditInfo)
	assert.Equal(t, "62", auditInfo.ResourceID)
}

func TestPaymentActionsDeclareAuthz(t *testing.T) {
	store, _ := newMockStore(t)
	defs := Actions(store)

	require.Len(t, defs, 3)
	del := findAction(t, defs, "delete_payment")
	assert.Contains(t, del.Authz.RequiredPermissions, auth.PermPaymentsDelete)
	assert.False(t, auth.HasPermission(auth.RoleMember, auth.PermPaymentsDelete))
}
