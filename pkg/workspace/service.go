package workspace

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/lib/pq"
)

// Service defines workspace and membership management
type Service interface {
	Resolver

	// Workspace CRUD
	Create(ctx context.Context, name, slug string, createdBy int64) (*Workspace, error)
	Get(ctx context.Context, id int64) (*Workspace, error)
	GetBySlug(ctx context.Context, slug string) (*Workspace, error)
	ListForUser(ctx context.Context, userID int64) ([]*Workspace, error)
	UpdateName(ctx context.Context, id int64, name string) error
	Delete(ctx context.Context, id int64) error

	// Member management
	ListMembers(ctx context.Context, workspaceID int64) ([]*Membership, error)
	GetMember(ctx context.Context, workspaceID, userID int64) (*Membership, error)
	AddMember(ctx context.Context, workspaceID, userID int64, role string, invitedBy *int64) error
	UpdateMemberRole(ctx context.Context, workspaceID, actorID, targetUserID int64, role string) error
	RemoveMember(ctx context.Context, workspaceID, actorID, targetUserID int64) error

	// Invitations
	CreateInvitation(ctx context.Context, inv *Invitation) error
	AcceptInvitation(ctx context.Context, token string, userID int64) (*Invitation, error)
	RevokeInvitation(ctx context.Context, workspaceID, id int64) error
	ListInvitations(ctx context.Context, workspaceID int64) ([]*Invitation, error)
	CleanupExpiredInvitations(ctx context.Context) (int64, error)
}

// PostgresService implements Service using PostgreSQL
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgresService
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

var slugPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// GenerateSlug derives a URL-safe slug from a workspace name
func GenerateSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = regexp.MustCompile(`[^a-z0-9]+`).ReplaceAllString(slug, "-")
	return strings.Trim(slug, "-")
}

// ValidSlug reports whether s is an acceptable workspace slug
func ValidSlug(s string) bool {
	return len(s) >= 2 && len(s) <= 64 && slugPattern.MatchString(s)
}

// Create creates a workspace and makes the creator its admin in one
// transaction, so a workspace can never exist without an admin.
func (s *PostgresService) Create(ctx context.Context, name, slug string, createdBy int64) (*Workspace, error) {
	if slug == "" {
		slug = GenerateSlug(name)
	}
	if !ValidSlug(slug) {
		return nil, fmt.Errorf("invalid workspace slug %q", slug)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ws := &Workspace{Slug: slug, Name: name, CreatedBy: &createdBy}
	query := `
		INSERT INTO workspaces (slug, name, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRowContext(ctx, query, ws.Slug, ws.Name, createdBy).
		Scan(&ws.ID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code.Name() == "unique_violation" {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	query = `
		INSERT INTO workspace_members (workspace_id, user_id, role)
		VALUES ($1, $2, 'admin')
	`
	if _, err := tx.ExecContext(ctx, query, ws.ID, createdBy); err != nil {
		return nil, fmt.Errorf("failed to add creator membership: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit workspace creation: %w", err)
	}

	return ws, nil
}

// Get retrieves a workspace by internal id
func (s *PostgresService) Get(ctx context.Context, id int64) (*Workspace, error) {
	return s.getWorkspace(ctx, `WHERE id = $1`, id)
}

// GetBySlug retrieves a workspace by slug
func (s *PostgresService) GetBySlug(ctx context.Context, slug string) (*Workspace, error) {
	return s.getWorkspace(ctx, `WHERE slug = $1`, slug)
}

func (s *PostgresService) getWorkspace(ctx context.Context, where string, arg interface{}) (*Workspace, error) {
	query := `
		SELECT id, slug, name, created_by, created_at, updated_at
		FROM workspaces
	` + where
	ws := &Workspace{}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&ws.ID, &ws.Slug, &ws.Name, &ws.CreatedBy, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrWorkspaceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}
	return ws, nil
}

// ListForUser lists the workspaces a user is a member of
func (s *PostgresService) ListForUser(ctx context.Context, userID int64) ([]*Workspace, error) {
	query := `
		SELECT w.id, w.slug, w.name, w.created_by, w.created_at, w.updated_at
		FROM workspaces w
		JOIN workspace_members m ON m.workspace_id = w.id
		WHERE m.user_id = $1
		ORDER BY w.name ASC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspaces: %w", err)
	}
	defer rows.Close()

	var workspaces []*Workspace
	for rows.Next() {
		ws := &Workspace{}
		if err := rows.Scan(&ws.ID, &ws.Slug, &ws.Name, &ws.CreatedBy, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan workspace: %w", err)
		}
		workspaces = append(workspaces, ws)
	}

	return workspaces, rows.Err()
}

// UpdateName renames a workspace. The slug is immutable.
func (s *PostgresService) UpdateName(ctx context.Context, id int64, name string) error {
	query := `UPDATE workspaces SET name = $1, updated_at = NOW() WHERE id = $2`
	result, err := s.db.ExecContext(ctx, query, name, id)
	if err != nil {
		return fmt.Errorf("failed to update workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	return nil
}

// Delete removes a workspace. Member rows and business data cascade at the
// schema level.
func (s *PostgresService) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete workspace: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrWorkspaceNotFound
	}

	return nil
}
