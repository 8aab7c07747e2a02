package workspace

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

const invitationTTL = 7 * 24 * time.Hour

func generateInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateInvitation creates or refreshes an invitation for an email address.
// The token is returned to the caller; delivery is out of scope.
func (s *PostgresService) CreateInvitation(ctx context.Context, inv *Invitation) error {
	if !inv.Role.Valid() {
		return fmt.Errorf("unknown role %q", inv.Role)
	}

	token, err := generateInvitationToken()
	if err != nil {
		return err
	}
	inv.Token = token

	if inv.InvitedAt.IsZero() {
		inv.InvitedAt = time.Now().UTC()
	}
	if inv.ExpiresAt.IsZero() {
		inv.ExpiresAt = inv.InvitedAt.Add(invitationTTL)
	}

	query := `
		INSERT INTO workspace_invitations (workspace_id, email, role, token, invited_by, invited_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (workspace_id, email) DO UPDATE
		SET role = EXCLUDED.role, token = EXCLUDED.token,
		    invited_at = EXCLUDED.invited_at, expires_at = EXCLUDED.expires_at
		RETURNING id
	`
	err = s.db.QueryRowContext(ctx, query, inv.WorkspaceID, inv.Email, inv.Role,
		inv.Token, inv.InvitedBy, inv.InvitedAt, inv.ExpiresAt).Scan(&inv.ID)
	if err != nil {
		return fmt.Errorf("failed to create invitation: %w", err)
	}

	return nil
}

// AcceptInvitation accepts an invitation and adds the user to the workspace
// in one transaction.
func (s *PostgresService) AcceptInvitation(ctx context.Context, token string, userID int64) (*Invitation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT id, workspace_id, email, role, invited_by, invited_at, expires_at, accepted_at
		FROM workspace_invitations
		WHERE token = $1
		FOR UPDATE
	`
	inv := &Invitation{}
	var acceptedAt sql.NullTime
	err = tx.QueryRowContext(ctx, query, token).Scan(
		&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role,
		&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt, &acceptedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}

	if acceptedAt.Valid {
		return nil, ErrInvitationAccepted
	}
	if time.Now().After(inv.ExpiresAt) {
		return nil, ErrInvitationExpired
	}
	if !inv.Role.Valid() {
		inv.Role = auth.RoleViewer
	}

	query = `
		INSERT INTO workspace_members (workspace_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`
	if _, err := tx.ExecContext(ctx, query, inv.WorkspaceID, userID, inv.Role, inv.InvitedBy); err != nil {
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	query = `UPDATE workspace_invitations SET accepted_at = NOW(), accepted_by = $1 WHERE id = $2`
	if _, err := tx.ExecContext(ctx, query, userID, inv.ID); err != nil {
		return nil, fmt.Errorf("failed to update invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}

	now := time.Now().UTC()
	inv.AcceptedAt = &now
	inv.AcceptedBy = &userID
	return inv, nil
}

// RevokeInvitation revokes a pending invitation. The workspace id scopes the
// delete so one tenant cannot revoke another's invitations.
func (s *PostgresService) RevokeInvitation(ctx context.Context, workspaceID, id int64) error {
	query := `DELETE FROM workspace_invitations WHERE id = $1 AND workspace_id = $2 AND accepted_at IS NULL`
	result, err := s.db.ExecContext(ctx, query, id, workspaceID)
	if err != nil {
		return fmt.Errorf("failed to revoke invitation: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrInvitationNotFound
	}

	return nil
}

// ListInvitations lists pending invitations for a workspace
func (s *PostgresService) ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error) {
	query := `
		SELECT id, workspace_id, email, role, invited_by, invited_at, expires_at
		FROM workspace_invitations
		WHERE workspace_id = $1 AND accepted_at IS NULL
		ORDER BY invited_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv := &Invitation{}
		if err := rows.Scan(
			&inv.ID, &inv.WorkspaceID, &inv.Email, &inv.Role,
			&inv.InvitedBy, &inv.InvitedAt, &inv.ExpiresAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}

	return invitations, rows.Err()
}

// CleanupExpiredInvitations removes expired, unaccepted invitations. Run
// periodically by the jobs scheduler.
func (s *PostgresService) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM workspace_invitations WHERE expires_at < NOW() AND accepted_at IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return result.RowsAffected()
}
