package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status is an invoice lifecycle state
type Status string

const (
	StatusDraft Status = "draft"
	StatusSent  Status = "sent"
	StatusPaid  Status = "paid"
	StatusVoid  Status = "void"
)

// validTransitions is the closed lifecycle graph. Paid and void are terminal.
var validTransitions = map[Status][]Status{
	StatusDraft: {StatusSent, StatusVoid},
	StatusSent:  {StatusPaid, StatusVoid},
}

// CanTransition reports whether moving from one status to another is allowed
func CanTransition(from, to Status) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

var (
	// ErrNotFound is returned when no invoice matches the workspace-scoped id
	ErrNotFound = errors.New("invoice not found")
	// ErrImmutable is returned when editing a paid or void invoice
	ErrImmutable = errors.New("cannot edit paid invoice")
	// ErrInvalidTransition is returned for a move outside the lifecycle graph
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrVersionConflict is returned when a concurrent writer bumped the
	// invoice version between read and write
	ErrVersionConflict = errors.New("invoice was modified concurrently")
)

// LineItem is one billed row on an invoice
type LineItem struct {
	ID             int64  `json:"id"`
	InvoiceID      int64  `json:"invoice_id"`
	Position       int    `json:"position"`
	Description    string `json:"description"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
	AmountCents    int64  `json:"amount_cents"`
}

// Invoice is a workspace-scoped bill against a customer. All amounts are in
// cents. TotalCents is derived from the line items, never set directly.
type Invoice struct {
	ID          int64       `json:"id"`
	WorkspaceID int64       `json:"workspace_id"`
	CustomerID  int64       `json:"customer_id"`
	Number      string      `json:"number"`
	Status      Status      `json:"status"`
	IssueDate   time.Time   `json:"issue_date"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Notes       string      `json:"notes,omitempty"`
	TotalCents  int64       `json:"total_cents"`
	PaidCents   int64       `json:"paid_cents"`
	Version     int         `json:"version"`
	CreatedBy   *int64      `json:"created_by,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
	LineItems   []*LineItem `json:"line_items"`
}

// BalanceCents returns the amount still owed
func (i *Invoice) BalanceCents() int64 {
	return i.TotalCents - i.PaidCents
}

// Filter narrows List results
type Filter struct {
	Status     Status
	CustomerID int64
	Limit      int
	Offset     int
}

const defaultListLimit = 50

// PostgresStore persists invoices in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an invoice store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewNumber generates a human-readable invoice number
func NewNumber() string {
	return "INV-" + strings.ToUpper(uuid.NewString()[:8])
}

// Create inserts an invoice header and its line items in one transaction.
// The total is computed from the items before the header is written.
func (s *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	if inv.Number == "" {
		inv.Number = NewNumber()
	}
	if inv.Status == "" {
		inv.Status = StatusDraft
	}
	inv.TotalCents = sumItems(inv.LineItems)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO invoices (workspace_id, customer_id, number, status, issue_date, due_date, notes, total_cents, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, version, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query,
		inv.WorkspaceID, inv.CustomerID, inv.Number, inv.Status, inv.IssueDate,
		inv.DueDate, inv.Notes, inv.TotalCents, inv.CreatedBy,
	).Scan(&inv.ID, &inv.Version, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create invoice: %w", err)
	}

	if err := insertItems(ctx, tx, inv.ID, inv.LineItems); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice creation: %w", err)
	}

	return nil
}

// Get retrieves an invoice with its line items scoped to the workspace
func (s *PostgresStore) Get(ctx context.Context, workspaceID, id int64) (*Invoice, error) {
	query := `
		SELECT id, workspace_id, customer_id, number, status, issue_date, due_date, notes,
		       total_cents, paid_cents, version, created_by, created_at, updated_at
		FROM invoices
		WHERE workspace_id = $1 AND id = $2
	`
	inv := &Invoice{}
	var dueDate sql.NullTime
	var notes sql.NullString
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&inv.ID, &inv.WorkspaceID, &inv.CustomerID, &inv.Number, &inv.Status,
		&inv.IssueDate, &dueDate, &notes, &inv.TotalCents, &inv.PaidCents,
		&inv.Version, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	if dueDate.Valid {
		inv.DueDate = &dueDate.Time
	}
	inv.Notes = notes.String

	items, err := s.listItems(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items

	return inv, nil
}

// List retrieves invoice headers in a workspace, newest first
func (s *PostgresStore) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Invoice, error) {
	query := `
		SELECT id, workspace_id, customer_id, number, status, issue_date, due_date, notes,
		       total_cents, paid_cents, version, created_by, created_at, updated_at
		FROM invoices
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	argCount := 1

	if filter.Status != "" {
		argCount++
		query += fmt.Sprintf(" AND status = $%d", argCount)
		args = append(args, filter.Status)
	}
	if filter.CustomerID > 0 {
		argCount++
		query += fmt.Sprintf(" AND customer_id = $%d", argCount)
		args = append(args, filter.CustomerID)
	}

	query += " ORDER BY created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	argCount++
	query += fmt.Sprintf(" LIMIT $%d", argCount)
	args = append(args, limit)

	if filter.Offset > 0 {
		argCount++
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv := &Invoice{}
		var dueDate sql.NullTime
		var notes sql.NullString
		if err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.CustomerID, &inv.Number, &inv.Status,
			&inv.IssueDate, &dueDate, &notes, &inv.TotalCents, &inv.PaidCents,
			&inv.Version, &inv.CreatedBy, &inv.CreatedAt, &inv.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		if dueDate.Valid {
			inv.DueDate = &dueDate.Time
		}
		inv.Notes = notes.String
		invoices = append(invoices, inv)
	}

	return invoices, rows.Err()
}

// Update rewrites the mutable header fields and replaces the line items in
// one transaction. Paid and void invoices are immutable.
func (s *PostgresStore) Update(ctx context.Context, inv *Invoice) error {
	if inv.Status == StatusPaid || inv.Status == StatusVoid {
		return ErrImmutable
	}
	inv.TotalCents = sumItems(inv.LineItems)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE invoices
		SET customer_id = $1, issue_date = $2, due_date = $3, notes = $4,
		    total_cents = $5, version = version + 1, updated_at = NOW()
		WHERE workspace_id = $6 AND id = $7 AND version = $8
	`
	result, err := tx.ExecContext(ctx, query,
		inv.CustomerID, inv.IssueDate, inv.DueDate, inv.Notes,
		inv.TotalCents, inv.WorkspaceID, inv.ID, inv.Version)
	if err != nil {
		return fmt.Errorf("failed to update invoice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrVersionConflict
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM invoice_line_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("failed to clear line items: %w", err)
	}
	if err := insertItems(ctx, tx, inv.ID, inv.LineItems); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invoice update: %w", err)
	}

	inv.Version++
	return nil
}

// Transition moves an invoice along the lifecycle graph
func (s *PostgresStore) Transition(ctx context.Context, workspaceID, id int64, to Status) (*Invoice, error) {
	inv, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(inv.Status, to) {
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, inv.Status, to)
	}

	query := `
		UPDATE invoices
		SET status = $1, version = version + 1, updated_at = NOW()
		WHERE workspace_id = $2 AND id = $3 AND version = $4
	`
	result, err := s.db.ExecContext(ctx, query, to, workspaceID, id, inv.Version)
	if err != nil {
		return nil, fmt.Errorf("failed to transition invoice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check transition result: %w", err)
	}
	if rows == 0 {
		return nil, ErrVersionConflict
	}

	inv.Status = to
	inv.Version++
	return inv, nil
}

// Delete removes a non-paid invoice and its line items
func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id int64) error {
	inv, err := s.Get(ctx, workspaceID, id)
	if err != nil {
		return err
	}
	if inv.Status == StatusPaid {
		return ErrImmutable
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM invoices WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *PostgresStore) listItems(ctx context.Context, invoiceID int64) ([]*LineItem, error) {
	query := `
		SELECT id, invoice_id, position, description, quantity, unit_price_cents, amount_cents
		FROM invoice_line_items
		WHERE invoice_id = $1
		ORDER BY position ASC
	`
	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list line items: %w", err)
	}
	defer rows.Close()

	var items []*LineItem
	for rows.Next() {
		item := &LineItem{}
		if err := rows.Scan(
			&item.ID, &item.InvoiceID, &item.Position, &item.Description,
			&item.Quantity, &item.UnitPriceCents, &item.AmountCents,
		); err != nil {
			return nil, fmt.Errorf("failed to scan line item: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func insertItems(ctx context.Context, tx *sql.Tx, invoiceID int64, items []*LineItem) error {
	query := `
		INSERT INTO invoice_line_items (invoice_id, position, description, quantity, unit_price_cents, amount_cents)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	for i, item := range items {
		item.InvoiceID = invoiceID
		item.Position = i
		item.AmountCents = int64(item.Quantity) * item.UnitPriceCents
		if err := tx.QueryRowContext(ctx, query,
			invoiceID, item.Position, item.Description, item.Quantity,
			item.UnitPriceCents, item.AmountCents,
		).Scan(&item.ID); err != nil {
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}
	return nil
}

func sumItems(items []*LineItem) int64 {
	var total int64
	for _, item := range items {
		total += int64(item.Quantity) * item.UnitPriceCents
	}
	return total
}
