// Package authz implements the declarative authorization engine.
//
// Actions declare their requirements once, at registration time, as a Config.
// All declared clauses combine with AND semantics: every one of them must pass
// for the check to succeed. Check is a pure decision function with no
// persistence side effects; denials carry a machine-readable code so callers
// can branch without string matching.
package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/tallyspace/tallyspace/pkg/auth"
)

// Denial codes
const (
	CodeWorkspaceRequired    = "workspace_required"
	CodeAdminRequired        = "admin_required"
	CodeInsufficientRole     = "insufficient_role"
	CodeMissingPermissions   = "missing_permissions"
	CodeCustomAuthFailed     = "custom_auth_failed"
	CodeResourceAccessDenied = "resource_access_denied"
)

// Subject is the resolved caller an authorization decision applies to
type Subject struct {
	UserID       int64
	WorkspaceID  int64
	Role         auth.Role
	HasWorkspace bool
}

// Config is the declarative requirement attached to an action at registration
// time. Zero or more required permissions (ALL must hold), an optional minimum
// role, an admin-only flag, and an optional custom predicate.
type Config struct {
	RequiredPermissions []auth.Permission
	RequiredRole        *auth.Role
	AdminOnly           bool
	Custom              func(ctx context.Context, subject *Subject) error
}

// Empty reports whether the config declares no clauses at all
func (c *Config) Empty() bool {
	return c == nil ||
		(len(c.RequiredPermissions) == 0 && c.RequiredRole == nil && !c.AdminOnly && c.Custom == nil)
}

// requiresWorkspace reports whether any declared clause needs workspace context
func (c *Config) requiresWorkspace() bool {
	return len(c.RequiredPermissions) > 0 || c.RequiredRole != nil || c.AdminOnly
}

// Denial describes a structured authorization failure
type Denial struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

func (d *Denial) Error() string {
	return d.Message
}

// RequireRole returns a pointer to the role for use in Config literals
func RequireRole(role auth.Role) *auth.Role {
	return &role
}

// Check evaluates a Config against a Subject. Clauses short-circuit on first
// failure but are logically ANDed. A nil return means allowed.
func Check(ctx context.Context, subject *Subject, config *Config) *Denial {
	if config.Empty() {
		return nil
	}

	if config.requiresWorkspace() && (subject == nil || !subject.HasWorkspace) {
		return &Denial{
			Code:    CodeWorkspaceRequired,
			Message: "this action requires workspace context",
		}
	}

	if config.AdminOnly && subject.Role != auth.RoleAdmin {
		return &Denial{
			Code:    CodeAdminRequired,
			Message: "this action requires the admin role",
		}
	}

	if config.RequiredRole != nil && !auth.HasRequiredRole(subject.Role, *config.RequiredRole) {
		return &Denial{
			Code: CodeInsufficientRole,
			Message: fmt.Sprintf("this action requires at least the %s role; you have %s",
				*config.RequiredRole, subject.Role),
		}
	}

	if len(config.RequiredPermissions) > 0 {
		granted := auth.RolePermissionSet(subject.Role)
		var missing []string
		for _, p := range config.RequiredPermissions {
			if _, ok := granted[p]; !ok {
				missing = append(missing, p.String())
			}
		}
		if len(missing) > 0 {
			sort.Strings(missing)
			return &Denial{
				Code:    CodeMissingPermissions,
				Message: "missing permissions: " + strings.Join(missing, ", "),
			}
		}
	}

	if config.Custom != nil {
		if err := config.Custom(ctx, subject); err != nil {
			return &Denial{
				Code:    CodeCustomAuthFailed,
				Message: err.Error(),
			}
		}
	}

	return nil
}

// RequireWorkspaceRow is the shared scoped-resource guard: it confirms a
// fetched row belongs to the subject's workspace. Every resource type uses
// this one guard rather than its own variant.
func RequireWorkspaceRow(subject *Subject, resourceWorkspaceID int64) *Denial {
	if subject == nil || !subject.HasWorkspace || subject.WorkspaceID != resourceWorkspaceID {
		return &Denial{
			Code:    CodeResourceAccessDenied,
			Message: "resource does not belong to this workspace",
		}
	}
	return nil
}
