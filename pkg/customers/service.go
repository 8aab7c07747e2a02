package customers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no customer matches the workspace-scoped id
	ErrNotFound = errors.New("customer not found")
	// ErrDuplicateName is returned when another customer in the workspace
	// already uses the name
	ErrDuplicateName = errors.New("customer name already in use")
)

// Customer is a billing contact within a workspace
type Customer struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	Name        string    `json:"name"`
	Email       string    `json:"email,omitempty"`
	Phone       string    `json:"phone,omitempty"`
	Address     string    `json:"address,omitempty"`
	Notes       string    `json:"notes,omitempty"`
	CreatedBy   *int64    `json:"created_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Filter narrows List results
type Filter struct {
	Search string
	Limit  int
	Offset int
}

const defaultListLimit = 50

// PostgresStore persists customers in PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a customer store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a customer. Names are unique per workspace, compared
// case-insensitively.
func (s *PostgresStore) Create(ctx context.Context, c *Customer) error {
	taken, err := s.nameTaken(ctx, c.WorkspaceID, c.Name, 0)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}

	query := `
		INSERT INTO customers (workspace_id, name, email, phone, address, notes, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		c.WorkspaceID, c.Name, c.Email, c.Phone, c.Address, c.Notes, c.CreatedBy,
	).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}

	return nil
}

// Get retrieves a customer scoped to the workspace
func (s *PostgresStore) Get(ctx context.Context, workspaceID, id int64) (*Customer, error) {
	query := `
		SELECT id, workspace_id, name, email, phone, address, notes, created_by, created_at, updated_at
		FROM customers
		WHERE workspace_id = $1 AND id = $2
	`
	c := &Customer{}
	var email, phone, address, notes sql.NullString
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(
		&c.ID, &c.WorkspaceID, &c.Name, &email, &phone, &address, &notes,
		&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}

	c.Email = email.String
	c.Phone = phone.String
	c.Address = address.String
	c.Notes = notes.String
	return c, nil
}

// List retrieves customers in a workspace ordered by name
func (s *PostgresStore) List(ctx context.Context, workspaceID int64, filter Filter) ([]*Customer, error) {
	query := `
		SELECT id, workspace_id, name, email, phone, address, notes, created_by, created_at, updated_at
		FROM customers
		WHERE workspace_id = $1
	`
	args := []interface{}{workspaceID}
	argCount := 1

	if filter.Search != "" {
		argCount++
		query += fmt.Sprintf(" AND name ILIKE $%d", argCount)
		args = append(args, "%"+filter.Search+"%")
	}

	query += " ORDER BY name ASC"

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
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var customers []*Customer
	for rows.Next() {
		c := &Customer{}
		var email, phone, address, notes sql.NullString
		if err := rows.Scan(
			&c.ID, &c.WorkspaceID, &c.Name, &email, &phone, &address, &notes,
			&c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		c.Email = email.String
		c.Phone = phone.String
		c.Address = address.String
		c.Notes = notes.String
		customers = append(customers, c)
	}

	return customers, rows.Err()
}

// Update saves mutable fields of a customer scoped to the workspace
func (s *PostgresStore) Update(ctx context.Context, c *Customer) error {
	taken, err := s.nameTaken(ctx, c.WorkspaceID, c.Name, c.ID)
	if err != nil {
		return err
	}
	if taken {
		return ErrDuplicateName
	}

	query := `
		UPDATE customers
		SET name = $1, email = $2, phone = $3, address = $4, notes = $5, updated_at = NOW()
		WHERE workspace_id = $6 AND id = $7
	`
	result, err := s.db.ExecContext(ctx, query,
		c.Name, c.Email, c.Phone, c.Address, c.Notes, c.WorkspaceID, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
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

// Delete removes a customer scoped to the workspace
func (s *PostgresStore) Delete(ctx context.Context, workspaceID, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM customers WHERE workspace_id = $1 AND id = $2`, workspaceID, id)
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
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

func (s *PostgresStore) nameTaken(ctx context.Context, workspaceID int64, name string, excludeID int64) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM customers
			WHERE workspace_id = $1 AND LOWER(name) = LOWER($2) AND id <> $3
		)
	`
	var taken bool
	if err := s.db.QueryRowContext(ctx, query, workspaceID, name, excludeID).Scan(&taken); err != nil {
		return false, fmt.Errorf("failed to check customer name: %w", err)
	}
	return taken, nil
}
