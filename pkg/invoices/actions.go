package invoices

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
)

// Actions returns the invoice action definitions
func Actions(store *PostgresStore) []*action.Definition {
	return []*action.Definition{
		{
			Name: "create_invoice",
			Schema: validate.Schema{
				"customer_id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"issue_date":  {Type: validate.TypeDate, Required: true},
				"due_date":    {Type: validate.TypeDate},
				"notes":       {Type: validate.TypeString, MaxLen: 5000},
				"line_items":  {Type: validate.TypeArray, Required: true},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesCreate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "invoice"},
			Handler:          createHandler(store),
		},
		{
			Name: "get_invoice",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesRead}},
			Handler:          getHandler(store),
		},
		{
			Name: "list_invoices",
			Schema: validate.Schema{
				"status":      {Type: validate.TypeString, Enum: []string{"draft", "sent", "paid", "void"}},
				"customer_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"limit":       {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(200)},
				"offset":      {Type: validate.TypeInteger, Min: validate.Min(0)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesRead}},
			Handler:          listHandler(store),
		},
		{
			Name: "update_invoice",
			Schema: validate.Schema{
				"id":          {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"customer_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
				"issue_date":  {Type: validate.TypeDate},
				"due_date":    {Type: validate.TypeDate},
				"notes":       {Type: validate.TypeString, MaxLen: 5000},
				"line_items":  {Type: validate.TypeArray},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionUpdate, ResourceType: "invoice"},
			Handler:          updateHandler(store),
		},
		{
			Name: "send_invoice",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: "send", ResourceType: "invoice"},
			Handler:          transitionHandler(store, StatusSent),
		},
		{
			Name: "void_invoice",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesUpdate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: "void", ResourceType: "invoice"},
			Handler:          transitionHandler(store, StatusVoid),
		},
		{
			Name: "delete_invoice",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermInvoicesDelete}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "invoice"},
			Handler:          deleteHandler(store),
		},
	}
}

func createHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		items, failure := parseLineItems(req.Array("line_items"), true)
		if failure != nil {
			return failure, nil, nil
		}

		inv := &Invoice{
			WorkspaceID: req.WorkspaceID(),
			CustomerID:  req.Int64("customer_id"),
			IssueDate:   mustDate(req.String("issue_date")),
			Notes:       req.String("notes"),
			CreatedBy:   req.UserID(),
			LineItems:   items,
		}
		if req.Has("due_date") {
			due := mustDate(req.String("due_date"))
			inv.DueDate = &due
		}

		if err := store.Create(ctx, inv); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"invoice": asMap(inv)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(inv.ID, 10),
				NewValues:  auditValues(inv),
			}, nil
	}
}

func getHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		return action.OK(map[string]interface{}{"invoice": asMap(inv)}), nil, nil
	}
}

func listHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		filter := Filter{
			Status:     Status(req.String("status")),
			CustomerID: req.Int64("customer_id"),
			Limit:      int(req.Int64("limit")),
			Offset:     int(req.Int64("offset")),
		}

		invoices, err := store.List(ctx, req.WorkspaceID(), filter)
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(invoices))
		for _, inv := range invoices {
			items = append(items, asMap(inv))
		}
		return action.OK(map[string]interface{}{"invoices": items, "count": len(items)}), nil, nil
	}
}

func updateHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}
		oldValues := auditValues(inv)

		if req.Has("customer_id") {
			inv.CustomerID = req.Int64("customer_id")
		}
		if req.Has("issue_date") {
			inv.IssueDate = mustDate(req.String("issue_date"))
		}
		if req.Has("due_date") {
			due := mustDate(req.String("due_date"))
			inv.DueDate = &due
		}
		if req.Has("notes") {
			inv.Notes = req.String("notes")
		}
		if req.Has("line_items") {
			items, failure := parseLineItems(req.Array("line_items"), true)
			if failure != nil {
				return failure, nil, nil
			}
			inv.LineItems = items
		}

		if err := store.Update(ctx, inv); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"invoice": asMap(inv)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(inv.ID, 10),
				OldValues:  oldValues,
				NewValues:  auditValues(inv),
			}, nil
	}
}

func transitionHandler(store *PostgresStore, to Status) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv, err := store.Transition(ctx, req.WorkspaceID(), req.Int64("id"), to)
		if err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{"invoice": asMap(inv)}),
			&action.Audit{
				ResourceID: strconv.FormatInt(inv.ID, 10),
				NewValues:  map[string]interface{}{"status": string(to)},
			}, nil
	}
}

func deleteHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		inv, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}

		if err := store.Delete(ctx, inv.WorkspaceID, inv.ID); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OKMessage("invoice deleted", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(inv.ID, 10),
				OldValues:  auditValues(inv),
			}, nil
	}
}

// parseLineItems checks the nested line-item objects the schema layer cannot
// express. Each entry needs a description, a positive quantity and a
// non-negative unit price in cents.
func parseLineItems(raw []interface{}, required bool) ([]*LineItem, *action.Result) {
	if len(raw) == 0 {
		if required {
			return nil, action.FailField("line_items", validate.CodeRequired,
				"at least one line item is required")
		}
		return nil, nil
	}

	items := make([]*LineItem, 0, len(raw))
	for i, entry := range raw {
		obj, ok := entry.(map[string]interface{})
		if !ok {
			return nil, action.FailField("line_items", validate.CodeInvalidType,
				fmt.Sprintf("line item %d must be an object", i))
		}

		desc, _ := obj["description"].(string)
		if desc == "" {
			return nil, action.FailField("line_items", validate.CodeRequired,
				fmt.Sprintf("line item %d needs a description", i))
		}

		quantity, ok := toInt64(obj["quantity"])
		if !ok || quantity < 1 {
			return nil, action.FailField("line_items", validate.CodeOutOfRange,
				fmt.Sprintf("line item %d needs a positive quantity", i))
		}

		unitPrice, ok := toInt64(obj["unit_price_cents"])
		if !ok || unitPrice < 0 {
			return nil, action.FailField("line_items", validate.CodeOutOfRange,
				fmt.Sprintf("line item %d needs a non-negative unit price", i))
		}

		items = append(items, &LineItem{
			Description:    desc,
			Quantity:       int(quantity),
			UnitPriceCents: unitPrice,
		})
	}

	return items, nil
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case float64:
		if n != float64(int64(n)) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

// mustDate parses a date the schema layer has already validated
func mustDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return action.NotFound("invoice")
	case errors.Is(err, ErrImmutable):
		return action.NewDomainError("invoice_immutable", "cannot edit paid invoice")
	case errors.Is(err, ErrInvalidTransition):
		return action.NewDomainError("invalid_transition", err.Error())
	case errors.Is(err, ErrVersionConflict):
		return action.NewDomainError("conflict", "invoice was modified concurrently, retry the request")
	}
	return err
}

func asMap(inv *Invoice) map[string]interface{} {
	items := make([]interface{}, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		items = append(items, map[string]interface{}{
			"description":      item.Description,
			"quantity":         item.Quantity,
			"unit_price_cents": item.UnitPriceCents,
			"amount_cents":     item.AmountCents,
		})
	}

	m := map[string]interface{}{
		"id":            inv.ID,
		"customer_id":   inv.CustomerID,
		"number":        inv.Number,
		"status":        string(inv.Status),
		"issue_date":    inv.IssueDate.Format("2006-01-02"),
		"notes":         inv.Notes,
		"total_cents":   inv.TotalCents,
		"paid_cents":    inv.PaidCents,
		"balance_cents": inv.BalanceCents(),
		"line_items":    items,
		"created_at":    inv.CreatedAt,
		"updated_at":    inv.UpdatedAt,
	}
	if inv.DueDate != nil {
		m["due_date"] = inv.DueDate.Format("2006-01-02")
	}
	return m
}

func auditValues(inv *Invoice) map[string]interface{} {
	return map[string]interface{}{
		"customer_id": inv.CustomerID,
		"number":      inv.Number,
		"status":      string(inv.Status),
		"notes":       inv.Notes,
		"total_cents": inv.TotalCents,
	}
}
