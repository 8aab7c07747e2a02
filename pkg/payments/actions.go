package payments

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/audit"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/invoices"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

// Actions returns the payment action definitions
func Actions(store *PostgresStore) []*action.Definition {
	return []*action.Definition{
		{
			Name: "record_payment",
			Schema: validate.Schema{
				"invoice_id":   {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"amount_cents": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
				"method":       {Type: validate.TypeString, Enum: Methods},
				"reference":    {Type: validate.TypeString, MaxLen: 255},
				"paid_at":      {Type: validate.TypeDate},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermPaymentsCreate}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionCreate, ResourceType: "payment"},
			Handler:          recordHandler(store),
		},
		{
			Name: "list_payments",
			Schema: validate.Schema{
				"invoice_id": {Type: validate.TypeInteger, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermPaymentsRead}},
			Handler:          listHandler(store),
		},
		{
			Name: "delete_payment",
			Schema: validate.Schema{
				"id": {Type: validate.TypeInteger, Required: true, Min: validate.Min(1)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermPaymentsDelete}},
			RateLimit:        action.DefaultRateLimit(),
			Audit:            &action.AuditConfig{Action: audit.ActionDelete, ResourceType: "payment"},
			Handler:          deleteHandler(store),
		},
	}
}

func recordHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		p := &Payment{
			WorkspaceID: req.WorkspaceID(),
			InvoiceID:   req.Int64("invoice_id"),
			AmountCents: req.Int64("amount_cents"),
			Method:      req.String("method"),
			Reference:   req.String("reference"),
			CreatedBy:   req.UserID(),
		}
		if req.Has("paid_at") {
			p.PaidAt = mustDate(req.String("paid_at"))
		}

		inv, err := store.Record(ctx, p)
		if err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OK(map[string]interface{}{
				"payment": asMap(p),
				"invoice": map[string]interface{}{
					"id":            inv.ID,
					"status":        string(inv.Status),
					"paid_cents":    inv.PaidCents,
					"balance_cents": inv.BalanceCents(),
				},
			}),
			&action.Audit{
				ResourceID: strconv.FormatInt(p.ID, 10),
				NewValues:  auditValues(p),
			}, nil
	}
}

func listHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		payments, err := store.List(ctx, req.WorkspaceID(), req.Int64("invoice_id"))
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(payments))
		var totalCents int64
		for _, p := range payments {
			items = append(items, asMap(p))
			totalCents += p.AmountCents
		}
		return action.OK(map[string]interface{}{
			"payments":    items,
			"count":       len(items),
			"total_cents": totalCents,
		}), nil, nil
	}
}

func deleteHandler(store *PostgresStore) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		p, err := store.Get(ctx, req.WorkspaceID(), req.Int64("id"))
		if err != nil {
			return nil, nil, domainErr(err)
		}

		if err := store.Delete(ctx, p.WorkspaceID, p.ID); err != nil {
			return nil, nil, domainErr(err)
		}

		return action.OKMessage("payment reversed", nil),
			&action.Audit{
				ResourceID: strconv.FormatInt(p.ID, 10),
				OldValues:  auditValues(p),
			}, nil
	}
}

func domainErr(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return action.NotFound("payment")
	case errors.Is(err, invoices.ErrNotFound):
		return action.NotFound("invoice")
	case errors.Is(err, ErrInvoiceNotPayable):
		return action.NewDomainError("invoice_not_payable", err.Error())
	case errors.Is(err, ErrExceedsBalance):
		return action.NewDomainError("payment_exceeds_balance",
			"payment amount exceeds the invoice balance")
	case errors.Is(err, ErrVersionConflict):
		return action.NewDomainError("conflict",
			"invoice was modified concurrently, retry the request")
	}
	return err
}

func mustDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func asMap(p *Payment) map[string]interface{} {
	return map[string]interface{}{
		"id":           p.ID,
		"invoice_id":   p.InvoiceID,
		"amount_cents": p.AmountCents,
		"method":       p.Method,
		"reference":    p.Reference,
		"paid_at":      p.PaidAt,
		"created_at":   p.CreatedAt,
	}
}

func auditValues(p *Payment) map[string]interface{} {
	return map[string]interface{}{
		"invoice_id":   p.InvoiceID,
		"amount_cents": p.AmountCents,
		"method":       p.Method,
		"reference":    p.Reference,
	}
}
