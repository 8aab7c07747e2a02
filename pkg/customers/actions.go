package customers

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

// Actions returns the customer action definitions
func Actions(store *PostgresStore) []*action.Definition {
	return []*action.Definition{
		{
			Name: "create_customer",
			Schema: validate.Schema{
				"name":    {Type: validate.TypeString, Required: true, MinLen: 1, MaxLen: 255},
				"email":   {Type: validate.TypeEmail, MaxLen: 255},
				"phone":   {Type: validate.TypeString, MaxLen: 50},
				"address": {Type: validate.TypeString, MaxLen: 1000},
				"notes":   {Type: validate.TypeString, MaxLen: 5000},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermCustomersCreate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "customer"},
			Handler:          createHandler(store),
		},
		{
			Name: "get_customer",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermCustomersRead}},
			Handler:          getHandler(store),
		},
		{
			Name: "list_customers",
			Schema: validate.Schema{
				"search": {Type: validate.TypeString, MaxLen: 255},
				"limit":  {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(200)},
				"offset": {Type: validate.TypeInteger, Min: validate.Min(0)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermCustomersRead}},
			Handler:          listHandler(store),
		},
		{
			Name: "update_customer",
			Schema: validate.Schema{
				"id":      {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"name":    {Type: validate.TypeString, MinLen: 1, MaxLen: 255},
				"email":   {Type: validate.TypeEmail, MaxLen: 255},
				"phone":   {Type: validate.TypeString, MaxLen: 50},
				"address": {Type: validate.TypeString, MaxLen: 1000},
				"notes":   {Type: validate.TypeString, MaxLen: 5000},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermCustomersUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "customer"},
			Handler:          updateHandler(store),
		},
		{
			Name: "delete_customer",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermCustomersDelete}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "customer"},
			Handler:          deleteHandler(store),
		},
	}
}

func createHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		c := &Customer{
			WorkspaceID: req.WorkspaceID(),
			Name:        req.String("name"),
			Email:       req.String("email"),
			Phone:       req.String("phone"),
			Address:     req.String("address"),
			Notes:       req.String("notes"),
			CreatedBy:   req.UserID(),
		}

		if err := store.Create(ctx, c); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"customer": asMap(c)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(c.ID, 10),
				NewValues:  auditValues(c),
			}, nil
	}
}

func getHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		c, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		return action.OK(map[string]interface{}{"customer": asMap(c)}), nil, nil
	}
}

func listHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		filter := Filter{
			Search: req.String("search"),
			Limit:  int(req.Int64("limit")),
			Offset: int(req.Int64("offset")),
		}

		customers, err := store.List(ctx, req.WorkspaceID(), filter)
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(customers))
		for _, c := range customers {
			items = append(items, asMap(c))
		}
		return action.OK(map[string]interface{}{"customers": items, "count": len(items)}), nil, nil
	}
}

func updateHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		c, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		oldValues := auditValues(c)

		if req.Has("name") {
			c.Name = req.String("name")
		}
		if req.Has("email") {
			c.Email = req.String("email")
		}
		if req.Has("phone") {
			c.Phone = req.String("phone")
		}
		if req.Has("address") {
			c.Address = req.String("address")
		}
		if req.Has("notes") {
			c.Notes = req.String("notes")
		}

		if err := store.Update(ctx, c); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"customer": asMap(c)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(c.ID, 10),
				OldValues:  oldValues,
				NewValues:  auditValues(c),
			}, nil
	}
}

func deleteHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		c, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}

		if err := store.Delete(ctx, c.WorkspaceID, c.ID); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OKMessage("customer deleted", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(c.ID, 10),
				OldValues:  auditValues(c),
			}, nil
	}
}

func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return action.NotFound("customer")
	case errors.Is(err, ErrDuplicateName):
		return action.NewDomainError("duplicate_name", "a customer with this name already exists")
	}
	return err
}

func asMap(c *Customer) map[string]interface{} {
	return map[string]interface{}{
		"id":         c.ID,
		"name":       c.Name,
		"email":      c.Email,
		"phone":      c.Phone,
		"address":    c.Address,
		"notes":      c.Notes,
		"created_at": c.CreatedAt,
		"updated_at": c.UpdatedAt,
	}
}

func auditValues(c *Customer) map[string]interface{} {
	return map[string]interface{}{
		"name":    c.Name,
		"email":   c.Email,
		"phone":   c.Phone,
		"address": c.Address,
		"notes":   c.Notes,
	}
}
