package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUnauthenticated is returned when no valid authenticated identity can be
// resolved from the presented credentials.
var ErrUnauthenticated = errors.New("authentication required")

// Identity holds the authenticated caller's identity
type Identity struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
}

// Authenticator resolves a presented session token into an Identity
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*Identity, error)
}

// Session represents a login session backed by an opaque bearer token
type Session struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	TokenHash string     `json:"-"` // Never expose hash
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// SessionStore persists sessions in PostgreSQL and implements Authenticator
type SessionStore struct {
	db        *sql.DB
	generator *TokenGenerator
	ttl       time.Duration
}

// NewSessionStore creates a new session store. ttl controls how long newly
// created sessions remain valid.
func NewSessionStore(db *sql.DB, ttl time.Duration) *SessionStore {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &SessionStore{
		db:        db,
		generator: NewTokenGenerator(),
		ttl:       ttl,
	}
}

// CreateSession creates a new session for a user and returns the plaintext
// token exactly once. Only the hash is stored.
func (s *SessionStore) CreateSession(ctx context.Context, userID int64) (*Session, string, error) {
	token, tokenHash, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate token: %w", err)
	}

	session := &Session{
		UserID:    userID,
		TokenHash: tokenHash,
		CreatedAt: time.Now().UTC(),
		ExpiresAt: time.Now().UTC().Add(s.ttl),
	}

	query := `
		INSERT INTO sessions (user_id, token_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, session.UserID, session.TokenHash,
		session.CreatedAt, session.ExpiresAt).Scan(&session.ID)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, token, nil
}

// Authenticate resolves a bearer token into an Identity. Expired and revoked
// sessions, inactive users and malformed tokens all yield ErrUnauthenticated.
func (s *SessionStore) Authenticate(ctx context.Context, token string) (*Identity, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, ErrUnauthenticated
	}

	query := `
		SELECT u.id, u.email
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1
		  AND s.revoked_at IS NULL
		  AND s.expires_at > NOW()
		  AND u.is_active
	`
	identity := &Identity{}
	err := s.db.QueryRowContext(ctx, query, s.generator.HashToken(token)).
		Scan(&identity.ID, &identity.Email)
	if err == sql.ErrNoRows {
		return nil, ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	return identity, nil
}

// RevokeSession revokes a session by token
func (s *SessionStore) RevokeSession(ctx context.Context, token string) error {
	query := `UPDATE sessions SET revoked_at = NOW() WHERE token_hash = $1 AND revoked_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, s.generator.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("session not found")
	}

	return nil
}

// CleanupExpiredSessions removes sessions past their expiry. Run periodically
// by the jobs scheduler.
func (s *SessionStore) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired sessions: %w", err)
	}
	return result.RowsAffected()
}
