package workspace

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

// Resolver resolves a workspace reference and user into a Grant
type Resolver interface {
	Resolve(ctx context.Context, ref Ref, userID int64) (*Grant, error)
}

// Resolve looks up the caller's membership in the referenced workspace with a
// single joined query. It returns ErrWorkspaceNotFound when no membership row
// matches, whether because the workspace does not exist or because the caller
// is not a member. Results are never cached; every action re-resolves fresh so
// a role change takes effect on the next call.
func (s *PostgresService) Resolve(ctx context.Context, ref Ref, userID int64) (*Grant, error) {
	if ref.IsZero() {
		return nil, ErrWorkspaceNotFound
	}

	query := `
		SELECT w.id, w.slug, w.name, w.created_by, w.created_at, w.updated_at, m.role
		FROM workspace_members m
		JOIN workspaces w ON w.id = m.workspace_id
		WHERE m.user_id = $1
	`
	args := []interface{}{userID}
	if ref.ID != 0 {
		query += ` AND w.id = $2`
		args = append(args, ref.ID)
	} else {
		query += ` AND w.slug = $2`
		args = append(args, ref.Slug)
	}

	ws := &Workspace{}
	var role auth.Role
	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&ws.ID, &ws.Slug, &ws.Name, &ws.CreatedBy, &ws.CreatedAt, &ws.UpdatedAt, &role,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace: %w", err)
	}

	if !role.Valid() {
		return nil, fmt.Errorf("membership has invalid role %q", role)
	}

	return &Grant{Workspace: ws, Role: role}, nil
}
