package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

var (
	// ErrEmailTaken is returned when registering an email that already has
	// an account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUserNotFound is returned when no user matches the given id.
	ErrUserNotFound = errors.New("user not found")
)

// User is an account holder. Password hashes never leave this package.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PostgresStore persists user accounts
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates an account store backed by PostgreSQL
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Register creates a new account with a bcrypt-hashed password. Email
// uniqueness is case insensitive.
func (s *PostgresStore) Register(ctx context.Context, email, fullName, password string) (*User, error) {
	taken, err := s.emailTaken(ctx, email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{Email: email, FullName: fullName, IsActive: true}
	query := `
		INSERT INTO users (email, full_name, password_hash, is_active)
		VALUES ($1, $2, $3, TRUE)
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query, email, fullName, hash).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// VerifyLogin resolves an email/password pair into a user. Unknown email,
// wrong password and deactivated accounts are indistinguishable to the
// caller; all yield auth.ErrInvalidCredentials.
func (s *PostgresStore) VerifyLogin(ctx context.Context, email, password string) (*User, error) {
	query := `
		SELECT id, email, full_name, password_hash, is_active, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`
	user := &User{}
	var fullName sql.NullString
	var passwordHash string
	err := s.db.QueryRowContext(ctx, query, email).Scan(
		&user.ID, &user.Email, &fullName, &passwordHash, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, auth.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if fullName.Valid {
		user.FullName = fullName.String
	}

	if !user.IsActive {
		return nil, auth.ErrInvalidCredentials
	}
	if err := auth.VerifyPassword(passwordHash, password); err != nil {
		return nil, auth.ErrInvalidCredentials
	}

	return user, nil
}

// Get retrieves a user by id
func (s *PostgresStore) Get(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, email, full_name, is_active, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	user := &User{}
	var fullName sql.NullString
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID, &user.Email, &fullName, &user.IsActive,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if fullName.Valid {
		user.FullName = fullName.String
	}

	return user, nil
}

func (s *PostgresStore) emailTaken(ctx context.Context, email string) (bool, error) {
	var taken bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM users WHERE LOWER(email) = LOWER($1))`, email).
		Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check email: %w", err)
	}
	return taken, nil
}
