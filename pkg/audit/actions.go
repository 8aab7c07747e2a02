package audit

import (
	"context"
	"time"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

const defaultStatsWindowDays = 30

// Actions returns the audit trail read actions. Both are admin-only through
// the audit:read permission.
func Actions(recorder *PostgresRecorder) []*action.Definition {
	return []*action.Definition{
		{
			Name: "list_audit_logs",
			Schema: validate.Schema{
				"action":        {Type: validate.TypeString, MaxLen: 64},
				"resource_type": {Type: validate.TypeString, MaxLen: 64},
				"resource_id":   {Type: validate.TypeString, MaxLen: 64},
				"user_id":       {Type: validate.TypeInteger, Min: validate.Min(1)},
				"start_date":    {Type: validate.TypeDate},
				"end_date":      {Type: validate.TypeDate},
				"limit":         {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(200)},
				"offset":        {Type: validate.TypeInteger, Min: validate.Min(0)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermAuditRead}},
			Handler:          listHandler(recorder),
		},
		{
			Name: "audit_stats",
			Schema: validate.Schema{
				"window_days": {Type: validate.TypeInteger, Min: validate.Min(1), Max: validate.Max(365)},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{RequiredPermissions: []auth.Permission{auth.PermAuditRead}},
			Handler:          statsHandler(recorder),
		},
	}
}

func listHandler(recorder *PostgresRecorder) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		filter := Filter{
			Action:       req.String("action"),
			ResourceType: req.String("resource_type"),
			ResourceID:   req.String("resource_id"),
			Limit:        int(req.Int64("limit")),
			Offset:       int(req.Int64("offset")),
		}
		if req.Has("user_id") {
			id := req.Int64("user_id")
			filter.UserID = &id
		}
		if req.Has("start_date") {
			start := mustDate(req.String("start_date"))
			filter.StartTime = &start
		}
		if req.Has("end_date") {
			// make the end date inclusive
			end := mustDate(req.String("end_date")).Add(24*time.Hour - time.Nanosecond)
			filter.EndTime = &end
		}

		entries, err := recorder.List(ctx, req.WorkspaceID(), filter)
		if err != nil {
			return nil, nil, err
		}

		items := make([]interface{}, 0, len(entries))
		for _, e := range entries {
			items = append(items, e)
		}
		return action.OK(map[string]interface{}{"entries": items, "count": len(items)}), nil, nil
	}
}

func statsHandler(recorder *PostgresRecorder) action.Handler {
	return func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
		windowDays := int(req.Int64("window_days"))
		if windowDays <= 0 {
			windowDays = defaultStatsWindowDays
		}

		start := time.Now().UTC().AddDate(0, 0, -windowDays)
		stats, err := recorder.GetStats(ctx, req.WorkspaceID(), Filter{StartTime: &start})
		if err != nil {
			return nil, nil, err
		}

		return action.OK(map[string]interface{}{
			"stats":       stats,
			"window_days": windowDays,
		}), nil, nil
	}
}

// mustDate parses a schema-validated YYYY-MM-DD value
func mustDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}
