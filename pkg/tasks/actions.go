package tasks

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/audit"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/validate"
	"github.com/tallyspace/tallyspace/pkg/workspace"
)

// MemberDirectory answers whether a user belongs to a workspace. Satisfied by
// workspace.PostgresService.
type MemberDirectory interface {
	GetMember(ctx context.Context, workspaceID, userID int64) (*workspace.Membership, error)
}

// Actions returns the task action definitions
func Actions(store *PostgresStore, members MemberDirectory) []*action.Definition {
	return []*action.Definition{
		{
			Name: "create_task",
			Schema: validate.Schema{
				"title":       {Type: validate.TypeString, Required: true, MinLen: 1, MaxLen: 255},
				"description": {Type: validate.TypeString, MaxLen: 5000},
				"status":      {Type: validate.TypeString, Enum: Statuses},
				"assignee_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"due_date":    {Type: validate.TypeDate},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermTasksCreate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "task"},
			Handler:          createHandler(store, members),
		},
		{
			Name: "get_task",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermTasksRead}},
			Handler:          getHandler(store),
		},
		{
			Name: "list_tasks",
			Schema: validate.Schema{
				"status":      {Type: validate.TypeString, Enum: Statuses},
				"assignee_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"limit":       {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(200)},
				"offset":      {Type: validate.TypeInteger, Min: validate.Min(0)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermTasksRead}},
			Handler:          listHandler(store),
		},
		{
			Name: "update_task",
			Schema: validate.Schema{
				"id":          {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"title":       {Type: validate.TypeString, MinLen: 1, MaxLen: 255},
				"description": {Type: validate.TypeString, MaxLen: 5000},
				"status":      {Type: validate.TypeString, Enum: Statuses},
				"assignee_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"due_date":    {Type: validate.TypeDate},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermTasksUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "task"},
			Handler:          updateHandler(store, members),
		},
		{
			Name: "delete_task",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermTasksDelete}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "task"},
			Handler:          deleteHandler(store),
		},
	}
}

func createHandler(store *PostgresStore, members MemberDirectory) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		task := &Task{
			WorkspaceID: req.WorkspaceID(),
			Title:       req.String("title"),
			Description: req.String("description"),
			Status:      Status(req.String("status")),
			CreatedBy:   req.UserID(),
		}
		if req.Has("assignee_id") {
			assignee := req.Int64("assignee_id")
			if err := checkAssignee(ctx, members, req.WorkspaceID(), assignee); err != nil {
				return nil, nil, err
			}
			task.AssigneeID = &assignee
		}
		if req.Has("due_date") {
			due := mustDate(req.String("due_date"))
			task.DueDate = &due
		}

		if err := store.Create(ctx, task); err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{"task": asMap(task)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(task.ID, 10),
				NewValues:  auditValues(task),
			}, nil
	}
}

func getHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		task, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		return action.OK(map[string]interface{}{"task": asMap(task)}), nil, nil
	}
}

func listHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		filter := Filter{
			Status:     Status(req.String("status")),
			AssigneeID: req.Int64("assignee_id"),
			Limit:      int(req.Int64("limit")),
			Offset:     int(req.Int64("offset")),
		}

		tasks, err := store.List(ctx, req.WorkspaceID(), filter)
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(tasks))
		for _, task := range tasks {
			items = append(items, asMap(task))
		}
		return action.OK(map[string]interface{}{"tasks": items, "count": len(items)}), nil, nil
	}
}

func updateHandler(store *PostgresStore, members MemberDirectory) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		task, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		oldValues := auditValues(task)

		if req.Has("title") {
			task.Title = req.String("title")
		}
		if req.Has("description") {
			task.Description = req.String("description")
		}
		if req.Has("status") {
			next := Status(req.String("status"))
			if next != task.Status && !CanTransition(task.Status, next) {
				return nil, nil, action.NewDomainError("invalid_transition",
					fmt.Sprintf("cannot move task from %s to %s", task.Status, next))
			}
			task.Status = next
		}
		if req.Has("assignee_id") {
			assignee := req.Int64("assignee_id")
			if err := checkAssignee(ctx, members, req.WorkspaceID(), assignee); err != nil {
				return nil, nil, err
			}
			task.AssigneeID = &assignee
		}
		if req.Has("due_date") {
			due := mustDate(req.String("due_date"))
			task.DueDate = &due
		}

		if err := store.Update(ctx, task); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"task": asMap(task)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(task.ID, 10),
				OldValues:  oldValues,
				NewValues:  auditValues(task),
			}, nil
	}
}

func deleteHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		task, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}

		if err := store.Delete(ctx, task.WorkspaceID, task.ID); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OKMessage("task deleted", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(task.ID, 10),
				OldValues:  auditValues(task),
			}, nil
	}
}

// checkAssignee confirms the assignee belongs to the workspace
func checkAssignee(ctx context.Context, members MemberDirectory, workspaceID, userID int64) error {
	_, err := members.GetMember(ctx, workspaceID, userID)
	if errors.Is(err, workspace.ErrMemberNotFound) {
		return action.NewDomainError("assignee_not_member",
			"assignee must be a member of this workspace")
	}
	if err != nil {
		return fmt.Errorf("failed to check assignee membership: %w", err)
	}
	return nil
}

func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return action.NotFound("task")
	case errors.Is(err, ErrInvalidTransition):
		return action.NewDomainError("invalid_transition", err.Error())
	}
	return err
}

func mustDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func asMap(task *Task) map[string]interface{} {
	m := map[string]interface{}{
		"id":          task.ID,
		"title":       task.Title,
		"description": task.Description,
		"status":      string(task.Status),
		"created_at":  task.CreatedAt,
		"updated_at":  task.UpdatedAt,
	}
	if task.AssigneeID != nil {
		m["assignee_id"] = *task.AssigneeID
	}
	if task.DueDate != nil {
		m["due_date"] = task.DueDate.Format("2006-01-02")
	}
	return m
}

func auditValues(task *Task) map[string]interface{} {
	values := map[string]interface{}{
		"title":       task.Title,
		"description": task.Description,
		"status":      string(task.Status),
	}
	if task.AssigneeID != nil {
		values["assignee_id"] = *task.AssigneeID
	}
	return values
}
