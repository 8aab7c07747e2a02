package expenses

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no expense matches the workspace-scoped id
var ErrNotFound = errors.New("expense not found")

// Categories is the closed set of expense categories
var Categories = []string{
	"travel", "meals", "supplies", "software", "rent", "utilities", "marketing", "other",
}

// Expense is a workspace-scoped cost record. Amounts are in cents.
type Expense struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Category    string    `json:"category"`
	Description string    `json:"description,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	IncurredOn  time.Time `json:"incurred_on"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter narrows List results
type Filter struct {
	Category string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

const defaultListLimit = 50

// PostgresStore persists expenses in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an expense store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts an expense
func (s *PostgresStore) Create(ctx context.Context, e *Expense) error {
	query := `
		INSERT INTO expenses (workspace_id, category, description, amount_cents, incurred_on, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query,
		e.WorkspaceID, e.Category, e.Description, e.AmountCents, e.IncurredOn, e.CreatedBy,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create expense: %w", err)
	}
	return nil
}

// Get retrieves an expense scoped to the workspace
func (s *PostgresStore) Get(ctx context.Context, workspaceID, id int64) (*Expense, error) {
	query := `
		SELECT id, workspace_id, category, description, amount_cents, incurred_on, created_by, created_at, updated_at
		FROM expenses
		WHERE workspace_id = $1 AND id = $2
	`
	e := &Expense{}
	var description sql.NullString
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&e.ID, &e.WorkspaceID, &e.Category, &description, &e.AmountCents,
		&e.IncurredOn, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	e.Description = description.String
	return e, nil
}

// List retrieves expenses in a workspace, most recent first
func (s *PostgresStore) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Expense, error) {
	query := `
		SELECT id, workspace_id, category, description, amount_cents, incurred_on, created_by, created_at, updated_at
		FROM expenses
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	argCount := 1

	if filter.Category != "" {
		argCount++
		query += fmt.Sprintf(" AND category = $%d", argCount)
		args = append(args, filter.Category)
	}
	if filter.From != nil {
		argCount++
		query += fmt.Sprintf(" AND incurred_on >= $%d", argCount)
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		argCount++
		query += fmt.Sprintf(" AND incurred_on <= $%d", argCount)
		args = append(args, *filter.To)
	}

	query += " ORDER BY incurred_on DESC"

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
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*Expense
	for rows.Next() {
		e := &Expense{}
		var description sql.NullString
		if err := rows.Scan(
			&e.ID, &e.WorkspaceID, &e.Category, &description, &e.AmountCents,
			&e.IncurredOn, &e.CreatedBy, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		e.Description = description.String
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// Update saves mutable fields of an expense scoped to the workspace
func (s *PostgresStore) Update(ctx context.Context, e *Expense) error {
	query := `
		UPDATE expenses
		SET category = $1, description = $2, amount_cents = $3, incurred_on = $4, updated_at = NOW()
		WHERE workspace_id = $5 AND id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		e.Category, e.Description, e.AmountCents, e.IncurredOn, e.WorkspaceID, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an expense scoped to the workspace
func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM expenses WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete expense: %w", err)
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
