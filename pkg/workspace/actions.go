package workspace

import (
	"context"
	"errors"
	"strconv"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/audit"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

var roleNames = []string{string(auth.RoleAdmin), string(auth.RoleMember), string(auth.RoleViewer)}

// Actions returns the workspace management action definitions
func Actions(svc *PostgresService) []*action.Definition {
	return []*action.Definition{
		{
			Name: "create_workspace",
			Schema: validate.Schema{
				"name": {Type: validate.TypeString, Required: true, MinLen: 1, MaxLen: 255},
				"slug": {Type: validate.TypeString, MaxLen: 63},
			},
			RequireAuth: true,
			RateLimit:   action.DefaultRateLimit(),
			Handler:     createWorkspaceHandler(svc),
		},
		{
			Name:        "list_workspaces",
			RequireAuth: true,
			Handler:     listWorkspacesHandler(svc),
		},
		{
			Name:             "get_workspace",
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceRead}},
			Handler:          getWorkspaceHandler(),
		},
		{
			Name: "update_workspace",
			Schema: validate.Schema{
				"name": {Type: validate.TypeString, Required: true, MinLen: 1, MaxLen: 255},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceUpdate}},
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "workspace"},
			Handler:          updateWorkspaceHandler(svc),
		},
		{
			Name:             "delete_workspace",
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz: &authz.Config{
				AdminOnly:           true,
				RequiredPermissions: []auth.Permission{auth.PermWorkspaceDelete},
			},
			Audit:   &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "workspace"},
			Handler: deleteWorkspaceHandler(svc),
		},
		{
			Name:             "list_members",
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceRead}},
			Handler:          listMembersHandler(svc),
		},
		{
			Name: "update_member_role",
			Schema: validate.Schema{
				"user_id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"role":    {Type: validate.TypeString, Required: true, Enum: roleNames},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceManageMembers}},
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "member"},
			Handler:          updateMemberRoleHandler(svc),
		},
		{
			Name: "remove_member",
			Schema: validate.Schema{
				"user_id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceManageMembers}},
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "member"},
			Handler:          removeMemberHandler(svc),
		},
		{
			Name: "invite_member",
			Schema: validate.Schema{
				"email": {Type: validate.TypeEmail, Required: true, MaxLen: 255},
				"role":  {Type: validate.TypeString, Required: true, Enum: roleNames},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceManageMembers}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "invitation"},
			Handler:          inviteMemberHandler(svc),
		},
		{
			Name:             "list_invitations",
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceManageMembers}},
			Handler:          listInvitationsHandler(svc),
		},
		{
			Name: "revoke_invitation",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermWorkspaceManageMembers}},
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "invitation"},
			Handler:          revokeInvitationHandler(svc),
		},
		{
			Name: "accept_invitation",
			Schema: validate.Schema{
				"token": {Type: validate.TypeString, Required: true, MinLen: 1, MaxLen: 128},
			},
			RequireAuth: true,
			Handler:     acceptInvitationHandler(svc),
		},
	}
}

func createWorkspaceHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		name := req.String("name")
		slug := req.String("slug")
		if slug == "" {
			slug = GenerateSlug(name)
		}
		if !ValidSlug(slug) {
			return nil, nil, &action.DomainError{
				Field: "slug", Code: "invalid_slug",
				Message: "slug must be lowercase letters, digits and hyphens",
			}
		}

		ws, err := svc.Create(ctx, name, slug, req.Identity.ID)
		if err != nil {
			return nil, nil, workspaceErr(err)
		}
		return action.OK(map[string]interface{}{"workspace": ws}), nil, nil
	}
}

func listWorkspacesHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		list, err := svc.ListForUser(ctx, req.Identity.ID)
		if err != nil {
			return nil, nil, err
		}
		return action.OK(map[string]interface{}{"workspaces": list, "count": len(list)}), nil, nil
	}
}

func getWorkspaceHandler() action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		return action.OK(map[string]interface{}{
			"workspace": req.Workspace,
			"role":      req.Subject.Role,
		}), nil, nil
	}
}

func updateWorkspaceHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		oldName := req.Workspace.Name
		name := req.String("name")

		if err := svc.UpdateName(ctx, req.WorkspaceID(), name); err != nil {
			return nil, nil, workspaceErr(err)
		}

		return action.OKMessage("workspace updated", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(req.WorkspaceID(), 10),
				OldValues:  map[string]interface{}{"name": oldName},
				NewValues:  map[string]interface{}{"name": name},
			}, nil
	}
}

func deleteWorkspaceHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		if err := svc.Delete(ctx, req.WorkspaceID()); err != nil {
			return nil, nil, workspaceErr(err)
		}
		return action.OKMessage("workspace deleted", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(req.WorkspaceID(), 10),
				OldValues:  map[string]interface{}{"name": req.Workspace.Name, "slug": req.Workspace.Slug},
			}, nil
	}
}

func listMembersHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		members, err := svc.ListMembers(ctx, req.WorkspaceID())
		if err != nil {
			return nil, nil, err
		}
		return action.OK(map[string]interface{}{"members": members, "count": len(members)}), nil, nil
	}
}

func updateMemberRoleHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		targetID := req.Int64("user_id")
		role := req.String("role")

		old, err := svc.GetMember(ctx, req.WorkspaceID(), targetID)
		if err != nil {
			return nil, nil, workspaceErr(err)
		}

		if err := svc.UpdateMemberRole(ctx, req.WorkspaceID(), req.Identity.ID, targetID, role); err != nil {
			return nil, nil, workspaceErr(err)
		}

		return action.OKMessage("member role updated", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(targetID, 10),
				OldValues:  map[string]interface{}{"role": string(old.Role)},
				NewValues:  map[string]interface{}{"role": role},
			}, nil
	}
}

func removeMemberHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		targetID := req.Int64("user_id")

		old, err := svc.GetMember(ctx, req.WorkspaceID(), targetID)
		if err != nil {
			return nil, nil, workspaceErr(err)
		}

		if err := svc.RemoveMember(ctx, req.WorkspaceID(), req.Identity.ID, targetID); err != nil {
			return nil, nil, workspaceErr(err)
		}

		return action.OKMessage("member removed", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(targetID, 10),
				OldValues:  map[string]interface{}{"user_id": targetID, "role": string(old.Role)},
			}, nil
	}
}

func inviteMemberHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv := &Invitation{
			WorkspaceID: req.WorkspaceID(),
			Email:       req.String("email"),
			Role:        auth.Role(req.String("role")),
			InvitedBy:   req.Identity.ID,
		}

		if err := svc.CreateInvitation(ctx, inv); err != nil {
			return nil, nil, workspaceErr(err)
		}

		// the token is returned to the caller; delivery is out of scope
		return action.OK(map[string]interface{}{"invitation": inv}),
			&action.Audit{
				ResourceID: strconv.FormatInt(inv.ID, 10),
				NewValues:  map[string]interface{}{"email": inv.Email, "role": string(inv.Role)},
			}, nil
	}
}

func listInvitationsHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		list, err := svc.ListInvitations(ctx, req.WorkspaceID())
		if err != nil {
			return nil, nil, err
		}
		return action.OK(map[string]interface{}{"invitations": list, "count": len(list)}), nil, nil
	}
}

func revokeInvitationHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		id := req.Int64("id")
		if err := svc.RevokeInvitation(ctx, req.WorkspaceID(), id); err != nil {
			return nil, nil, workspaceErr(err)
		}
		return action.OKMessage("invitation revoked", nil),
			&action.Audit{ResourceID: strconv.FormatInt(id, 10)}, nil
	}
}

func acceptInvitationHandler(svc *PostgresService) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv, err := svc.AcceptInvitation(ctx, req.String("token"), req.Identity.ID)
		if err != nil {
			return nil, nil, workspaceErr(err)
		}
		return action.OK(map[string]interface{}{
			"workspace_id": inv.WorkspaceID,
			"role":         inv.Role,
		}), nil, nil
	}
}

// ResolveWorkspace implements action.WorkspaceResolver
func (s *PostgresService) ResolveWorkspace(ctx context.Context, ref action.WorkspaceRef, userID int64) (*action.WorkspaceGrant, error) {
	grant, err := s.Resolve(ctx, Ref{ID: ref.ID, Slug: ref.Slug}, userID)
	if err != nil {
		if errors.Is(err, ErrWorkspaceNotFound) {
			return nil, action.ErrWorkspaceNotFound
		}
		return nil, err
	}
	return &action.WorkspaceGrant{
		Workspace: &action.Workspace{
			ID:   grant.Workspace.ID,
			Slug: grant.Workspace.Slug,
			Name: grant.Workspace.Name,
		},
		Role: grant.Role,
	}, nil
}

func workspaceErr(err error) error {
	switch {
	case errors.Is(err, ErrWorkspaceNotFound):
		return action.NotFound("workspace")
	case errors.Is(err, ErrMemberNotFound):
		return action.NotFound("member")
	case errors.Is(err, ErrSelfModification):
		return action.NewDomainError("self_modification", "cannot modify your own membership")
	case errors.Is(err, ErrMemberExists):
		return action.NewDomainError("member_exists", "user is already a member of this workspace")
	case errors.Is(err, ErrSlugTaken):
		return action.NewDomainError("slug_taken", "workspace slug already taken")
	case errors.Is(err, ErrInvitationNotFound):
		return action.NotFound("invitation")
	case errors.Is(err, ErrInvitationAccepted):
		return action.NewDomainError("invitation_accepted", "invitation already accepted")
	case errors.Is(err, ErrInvitationExpired):
		return action.NewDomainError("invitation_expired", "invitation expired")
	}
	return err
}
