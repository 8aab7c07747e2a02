package payments

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tallyspace/tallyspace/pkg/invoices"
)

var (
	// ErrNotFound is returned when no payment matches the workspace-scoped id
	ErrNotFound = errors.New("payment not found")
	// ErrInvoiceNotPayable is returned when the invoice is not in the sent state
	ErrInvoiceNotPayable = errors.New("invoice is not payable")
	// ErrExceedsBalance is returned when the amount is larger than what is owed
	ErrExceedsBalance = errors.New("payment exceeds invoice balance")
	// ErrVersionConflict is returned when a concurrent payment bumped the
	// invoice version between read and write
	ErrVersionConflict = errors.New("invoice was modified concurrently")
)

// Methods is the closed set of payment methods
var Methods = []string{"bank_transfer", "card", "cash", "check", "other"}

// Payment is money received against an invoice. Amounts are in cents.
type Payment struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	InvoiceID   int64     `json:"invoice_id"`
	AmountCents int64     `json:"amount_cents"`
	Method      string    `json:"method,omitempty"`
	Reference   string    `json:"reference,omitempty"`
	PaidAt      time.Time `json:"paid_at"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// PostgresStore persists payments in PostgreSQL
type PostgresStore struct {
	db       *sql.DB
	invoices *invoices.PostgresStore
}

// NewPostgresStore creates a payment store
func NewPostgresStore(db *sql.DB, invoiceStore *invoices.PostgresStore) *PostgresStore {
	return &PostgresStore{db: db, invoices: invoiceStore}
}

// Record applies a payment to an invoice. The payment row and the invoice
// balance update commit in one transaction; the invoice write carries an
// optimistic version check so two concurrent payments cannot both read the
// same stale balance and overpay. When the balance reaches zero the invoice
// moves to paid.
func (s *PostgresStore) Record(ctx context.Context, p *Payment) (*invoices.Invoice, error) {
	inv, err := s.invoices.Get(ctx, p.WorkspaceID, p.InvoiceID)
	if err != nil {
		if errors.Is(err, invoices.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load invoice for payment: %w", err)
	}

	if inv.Status != invoices.StatusSent {
		return nil, fmt.Errorf("%w: status is %s", ErrInvoiceNotPayable, inv.Status)
	}
	if p.AmountCents > inv.BalanceCents() {
		return nil, ErrExceedsBalance
	}

	if p.PaidAt.IsZero() {
		p.PaidAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO payments (workspace_id, invoice_id, amount_cents, method, reference, paid_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`
	err = tx.QueryRowContext(ctx, query,
		p.WorkspaceID, p.InvoiceID, p.AmountCents, p.Method, p.Reference, p.PaidAt, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record payment: %w", err)
	}

	newPaid := inv.PaidCents + p.AmountCents
	newStatus := inv.Status
	if newPaid >= inv.TotalCents {
		newStatus = invoices.StatusPaid
	}

	update := `
		UPDATE invoices
		SET paid_cents = $1, status = $2, version = version + 1, updated_at = NOW()
		WHERE workspace_id = $3 AND id = $4 AND version = $5
	`
	result, err := tx.ExecContext(ctx, update,
		newPaid, newStatus, p.WorkspaceID, p.InvoiceID, inv.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to apply payment to invoice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check payment result: %w", err)
	}
	if rows == 0 {
		return nil, ErrVersionConflict
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit payment: %w", err)
	}

	inv.PaidCents = newPaid
	inv.Status = newStatus
	inv.Version++
	return inv, nil
}

// Get retrieves a payment scoped to the workspace
func (s *PostgresStore) Get(ctx context.Context, workspaceID, id int64) (*Payment, error) {
	query := `
		SELECT id, workspace_id, invoice_id, amount_cents, method, reference, paid_at, created_by, created_at
		FROM payments
		WHERE workspace_id = $1 AND id = $2
	`
	p := &Payment{}
	var method, reference sql.NullString
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&p.ID, &p.WorkspaceID, &p.InvoiceID, &p.AmountCents, &method, &reference,
		&p.PaidAt, &p.CreatedBy, &p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	p.Method = method.String
	p.Reference = reference.String
	return p, nil
}

// List retrieves payments in a workspace, optionally narrowed to one invoice
func (s *PostgresStore) List(ctx context.Context, workspaceID, invoiceID int64) ([]*Payment, error) {
	query := `
		SELECT id, workspace_id, invoice_id, amount_cents, method, reference, paid_at, created_by, created_at
		FROM payments
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	if invoiceID > 0 {
		query += " AND invoice_id = $2"
		args = append(args, invoiceID)
	}
	query += " ORDER BY paid_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p := &Payment{}
		var method, reference sql.NullString
		if err := rows.Scan(
			&p.ID, &p.WorkspaceID, &p.InvoiceID, &p.AmountCents, &method, &reference,
			&p.PaidAt, &p.CreatedBy, &p.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Method = method.String
		p.Reference = reference.String
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

// Delete reverses a payment. The invoice balance is restored in the same
// transaction; a fully paid invoice reopens to sent.
func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id int64) error {
	p, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM payments WHERE workspace_id = $1 AND id = $2`, workspaceID, id); err != nil {
		return fmt.Errorf("failed to delete payment: %w", err)
	}

	update := `
		UPDATE invoices
		SET paid_cents = paid_cents - $1,
		    status = CASE WHEN status = 'paid' THEN 'sent' ELSE status END,
		    version = version + 1, updated_at = NOW()
		WHERE workspace_id = $2 AND id = $3
	`
	if _, err := tx.ExecContext(ctx, update, p.AmountCents, workspaceID, p.InvoiceID); err != nil {
		return fmt.Errorf("failed to restore invoice balance: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit payment reversal: %w", err)
	}

	return nil
}
