package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/observability"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(ctx context.Context, token string) (*auth.Identity, error) {
	if token == "good-token" {
		return &auth.Identity{ID: 7, Email: "user@acme.test"}, nil
	}
	return nil, auth.ErrUnauthenticated
}

type stubResolver struct{}

func (stubResolver) ResolveWorkspace(ctx context.Context, ref action.WorkspaceRef, userID int64) (*action.WorkspaceGrant, error) {
	if ref.Slug == "acme" {
		return &action.WorkspaceGrant{
			Workspace: &action.Workspace{ID: 3, Slug: "acme", Name: "Acme"},
			Role:      auth.RoleAdmin,
		}, nil
	}
	return nil, action.ErrWorkspaceNotFound
}

func testServer(t *testing.T) *Server {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	executor := action.NewExecutor(action.Deps{
		Authenticator: stubAuthenticator{},
		Resolver:      stubResolver{},
		Logger:        logger,
	})

	registry := action.NewRegistry()
	registry.Register(
		&action.Definition{
			Name: "ping",
			Handler: func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
				return action.OK(map[string]interface{}{"pong": true}), nil, nil
			},
		},
		&action.Definition{
			Name: "create_widget",
			Schema: validate.Schema{
				"name": {Type: validate.TypeString, Required: true, MinLen: 1},
			},
			RequireAuth:      true,
			RequireWorkspace: true,
			Authz:            &authz.Config{},
			Handler: func(ctx context.Context, req *action.Request) (*action.Result, *action.Audit, error) {
				return action.OK(map[string]interface{}{
					"name":         req.String("name"),
					"workspace_id": req.WorkspaceID(),
				}), nil, nil
			},
		},
	)

	return NewServer(registry, executor, nil, logger, nil)
}

func invoke(t *testing.T, s *Server, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestInvokeUnknownAction(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/actions/no_such_action", `{}`, "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown action")
}

func TestInvokeMalformedBody(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/actions/ping", `{not json`, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvokeSuccess(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/actions/ping", ``, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestInvokeAuthRequired(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/workspaces/acme/actions/create_widget", `{"name":"w"}`, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), action.CodeAuthRequired)
}

func TestInvokeWorkspaceScoped(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/workspaces/acme/actions/create_widget", `{"name":"w"}`, "good-token")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"workspace_id":3`)
}

func TestInvokeWorkspaceNotFound(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/workspaces/ghost/actions/create_widget", `{"name":"w"}`, "good-token")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), action.CodeWorkspaceNotFound)
}

func TestInvokeValidationFailure(t *testing.T) {
	s := testServer(t)
	rec := invoke(t, s, "/api/v1/workspaces/acme/actions/create_widget", `{}`, "good-token")

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":false`)
}

func TestListActions(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/actions", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "create_widget")
	assert.Contains(t, rec.Body.String(), "ping")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{action.CodeAuthRequired, http.StatusUnauthorized},
		{action.CodeRateLimitExceeded, http.StatusTooManyRequests},
		{action.CodeSecurityViolation, http.StatusBadRequest},
		{action.CodeWorkspaceNotFound, http.StatusNotFound},
		{action.CodeResourceNotFound, http.StatusNotFound},
		{authz.CodeAdminRequired, http.StatusForbidden},
		{authz.CodeMissingPermissions, http.StatusForbidden},
		{action.CodeServerError, http.StatusInternalServerError},
		{"duplicate_name", http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(action.Fail(tt.code, "x")))
		})
	}
	assert.Equal(t, http.StatusOK, statusFor(action.OK(nil)))
}

func TestMethodNotAllowed(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest("GET", "/api/v1/actions/ping", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
