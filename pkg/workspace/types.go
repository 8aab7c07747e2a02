package workspace

import (
	"errors"
	"time"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

var (
	// ErrWorkspaceNotFound is returned when a workspace does not exist or the
	// caller is not a member of it. The two cases are deliberately
	// indistinguishable.
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrSelfModification is returned when a member targets their own
	// membership row via role change or removal.
	ErrSelfModification = errors.New("cannot modify your own membership")

	// ErrMemberNotFound is returned when the target membership row is absent.
	ErrMemberNotFound = errors.New("member not found")

	// ErrMemberExists is returned when adding a user who is already a member.
	ErrMemberExists = errors.New("member already exists")

	// ErrSlugTaken is returned when creating a workspace with a slug that is
	// already in use.
	ErrSlugTaken = errors.New("workspace slug already taken")

	// ErrInvitationNotFound is returned when no invitation matches the token.
	ErrInvitationNotFound = errors.New("invitation not found")

	// ErrInvitationAccepted is returned when the invitation was already used.
	ErrInvitationAccepted = errors.New("invitation already accepted")

	// ErrInvitationExpired is returned past the invitation's expiry.
	ErrInvitationExpired = errors.New("invitation expired")
)

// Workspace represents a tenant boundary
type Workspace struct {
	ID        int64     `json:"id"`
	Slug      string    `json:"slug"` // Immutable routing key, globally unique
	Name      string    `json:"name"`
	CreatedBy *int64    `json:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership relates a user to a workspace with exactly one role
type Membership struct {
	ID          int64     `json:"id"`
	WorkspaceID int64     `json:"workspace_id"`
	UserID      int64     `json:"user_id"`
	Role        auth.Role `json:"role"`
	InvitedBy   *int64    `json:"invited_by,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
	Email       string    `json:"email,omitempty"`
	FullName    string    `json:"full_name,omitempty"`
}

// Invitation represents an invitation to join a workspace
type Invitation struct {
	ID          int64      `json:"id"`
	WorkspaceID int64      `json:"workspace_id"`
	Email       string     `json:"email"`
	Role        auth.Role  `json:"role"`
	Token       string     `json:"token,omitempty"`
	InvitedBy   int64      `json:"invited_by"`
	InvitedAt   time.Time  `json:"invited_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	AcceptedBy  *int64     `json:"accepted_by,omitempty"`
}

// Ref identifies a workspace by id or slug. Exactly one should be set; id is
// preferred when both are present.
type Ref struct {
	ID   int64
	Slug string
}

// IsZero reports whether the ref identifies nothing
func (r Ref) IsZero() bool {
	return r.ID == 0 && r.Slug == ""
}

// Grant is the result of resolving a caller against a workspace: the
// workspace itself plus the caller's role in it.
type Grant struct {
	Workspace *Workspace `json:"workspace"`
	Role      auth.Role  `json:"role"`
}
