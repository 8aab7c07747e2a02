package expenses

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/audit"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

// Actions returns the expense action definitions
func Actions(store *PostgresStore) []*action.Definition {
	return []*action.Definition{
		{
			Name: "create_expense",
			Schema: validate.Schema{
				"category":     {Type: validate.TypeString, Required: true, Enum: Categories},
				"description":  {Type: validate.TypeString, MaxLen: 1000},
				"amount_cents": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"incurred_on":  {Type: validate.TypeDate, Required: true},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermExpensesCreate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "expense"},
			Handler:          createHandler(store),
		},
		{
			Name: "get_expense",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermExpensesRead}},
			Handler:          getHandler(store),
		},
		{
			Name: "list_expenses",
			Schema: validate.Schema{
				"category": {Type: validate.TypeString, Enum: Categories},
				"from":     {Type: validate.TypeDate},
				"to":       {Type: validate.TypeDate},
				"limit":    {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(200)},
				"offset":   {Type: validate.TypeInteger, Min: validate.Min(0)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermExpensesRead}},
			Handler:          listHandler(store),
		},
		{
			Name: "update_expense",
			Schema: validate.Schema{
				"id":           {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"category":     {Type: validate.TypeString, Enum: Categories},
				"description":  {Type: validate.TypeString, MaxLen: 1000},
				"amount_cents": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"incurred_on":  {Type: validate.TypeDate},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermExpensesUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "expense"},
			Handler:          updateHandler(store),
		},
		{
			Name: "delete_expense",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermExpensesDelete}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "expense"},
			Handler:          deleteHandler(store),
		},
	}
}

func createHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		e := &Expense{
			WorkspaceID: req.WorkspaceID(),
			Category:    req.String("category"),
			Description: req.String("description"),
			AmountCents: req.Int64("amount_cents"),
			IncurredOn:  mustDate(req.String("incurred_on")),
			CreatedBy:   req.UserID(),
		}

		if err := store.Create(ctx, e); err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{"expense": asMap(e)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(e.ID, 10),
				NewValues:  auditValues(e),
			}, nil
	}
}

func getHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		e, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		return action.OK(map[string]interface{}{"expense": asMap(e)}), nil, nil
	}
}

func listHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		filter := Filter{
			Category: req.String("category"),
			Limit:    int(req.Int64("limit")),
			Offset:   int(req.Int64("offset")),
		}
		if req.Has("from") {
			from := mustDate(req.String("from"))
			filter.From = &from
		}
		if req.Has("to") {
			to := mustDate(req.String("to"))
			filter.To = &to
		}

		expenses, err := store.List(ctx, req.WorkspaceID(), filter)
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(expenses))
		var totalCents int64
		for _, e := range expenses {
			items = append(items, asMap(e))
			totalCents += e.AmountCents
		}
		return action.OK(map[string]interface{}{
			"expenses":    items,
			"count":       len(items),
			"total_cents": totalCents,
		}), nil, nil
	}
}

func updateHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		e, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		oldValues := auditValues(e)

		if req.Has("category") {
			e.Category = req.String("category")
		}
		if req.Has("description") {
			e.Description = req.String("description")
		}
		if req.Has("amount_cents") {
			e.AmountCents = req.Int64("amount_cents")
		}
		if req.Has("incurred_on") {
			e.IncurredOn = mustDate(req.String("incurred_on"))
		}

		if err := store.Update(ctx, e); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"expense": asMap(e)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(e.ID, 10),
				OldValues:  oldValues,
				NewValues:  auditValues(e),
			}, nil
	}
}

func deleteHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		e, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}

		if err := store.Delete(ctx, e.WorkspaceID, e.ID); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OKMessage("expense deleted", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(e.ID, 10),
				OldValues:  auditValues(e),
			}, nil
	}
}

func domainErr(err error) error {
	if errors.Is(err, ErrNotFound) {
		return action.NotFound("expense")
	}
	return err
}

func mustDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func asMap(e *Expense) map[string]interface{} {
	return map[string]interface{}{
		"id":           e.ID,
		"category":     e.Category,
		"description":  e.Description,
		"amount_cents": e.AmountCents,
		"incurred_on":  e.IncurredOn.Format("2006-01-02"),
		"created_at":   e.CreatedAt,
		"updated_at":   e.UpdatedAt,
	}
}

func auditValues(e *Expense) map[string]interface{} {
	return map[string]interface{}{
		"category":     e.Category,
		"description":  e.Description,
		"amount_cents": e.AmountCents,
		"incurred_on":  e.IncurredOn.Format("2006-01-02"),
	}
}
