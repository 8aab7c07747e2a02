package workspace

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

// ListMembers retrieves all members of a workspace
func (s *PostgresService) ListMembers(ctx context.Context, workspaceID int64) ([]*Membership, error) {
	query := `
		SELECT m.id, m.workspace_id, m.user_id, m.role, m.invited_by, m.joined_at,
		       u.email, u.full_name
		FROM workspace_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.workspace_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*Membership
	for rows.Next() {
		member := &Membership{}
		var fullName sql.NullString
		if err := rows.Scan(
			&member.ID, &member.WorkspaceID, &member.UserID, &member.Role,
			&member.InvitedBy, &member.JoinedAt, &member.Email, &fullName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		if fullName.Valid {
			member.FullName = fullName.String
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific membership row
func (s *PostgresService) GetMember(ctx context.Context, workspaceID, userID int64) (*Membership, error) {
	query := `
		SELECT id, workspace_id, user_id, role, invited_by, joined_at
		FROM workspace_members
		WHERE workspace_id = $1 AND user_id = $2
	`
	member := &Membership{}
	err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(
		&member.ID, &member.WorkspaceID, &member.UserID, &member.Role,
		&member.InvitedBy, &member.JoinedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}

	return member, nil
}

// AddMember adds a user to a workspace. A (workspace, user) pair has at most
// one membership row.
func (s *PostgresService) AddMember(ctx context.Context, workspaceID, userID int64, role string, invitedBy *int64) error {
	parsed, err := auth.ParseRole(role)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO workspace_members (workspace_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (workspace_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, workspaceID, userID, parsed, invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberExists
	}

	return nil
}

// UpdateMemberRole changes a member's role. Actors cannot change their own
// role; this holds even for admins, to avoid accidental admin lockout.
func (s *PostgresService) UpdateMemberRole(ctx context.Context, workspaceID, actorID, targetUserID int64, role string) error {
	if actorID == targetUserID {
		return ErrSelfModification
	}

	parsed, err := auth.ParseRole(role)
	if err != nil {
		return err
	}

	query := `UPDATE workspace_members SET role = $1 WHERE workspace_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, parsed, workspaceID, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}

// RemoveMember removes a user from a workspace. Actors cannot remove
// themselves through this path.
func (s *PostgresService) RemoveMember(ctx context.Context, workspaceID, actorID, targetUserID int64) error {
	if actorID == targetUserID {
		return ErrSelfModification
	}

	query := `DELETE FROM workspace_members WHERE workspace_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, workspaceID, targetUserID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrMemberNotFound
	}

	return nil
}
