package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/httputil"
	"github.com/tallyspace/tallyspace/pkg/observability"
)

// maxBodyBytes caps action payloads; line-item heavy invoices stay well
// under this.
const maxBodyBytes = 1 << 20

// Server exposes the action registry over HTTP
type Server struct {
	router   *mux.Router
	registry *action.Registry
	executor *action.Executor
	health   *observability.HealthChecker
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewServer creates the API server and wires its routes. Health and metrics
// may be nil; the corresponding routes and instrumentation are skipped.
func NewServer(registry *action.Registry, executor *action.Executor, health *observability.HealthChecker, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		router:   mux.NewRouter(),
		registry: registry,
		executor: executor,
		health:   health,
		logger:   logger,
		metrics:  metrics,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/actions", s.listActions).Methods("GET")
	s.router.HandleFunc("/api/v1/actions/{name}", s.invokeAction).Methods("POST")
	s.router.HandleFunc("/api/v1/workspaces/{slug}/actions/{name}", s.invokeAction).Methods("POST")

	if s.health != nil {
		s.router.HandleFunc("/health", s.health.Readiness).Methods("GET")
		s.router.HandleFunc("/health/live", s.health.Liveness).Methods("GET")
		s.router.HandleFunc("/health/ready", s.health.Readiness).Methods("GET")
	}

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteNotFound(w, "not found")
	})
	s.router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteMethodNotAllowed(w)
	})
}

// Handler returns the fully instrumented handler for the app listener
func (s *Server) Handler() http.Handler {
	middlewares := []httputil.Middleware{
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, observability.HTTPMetricsMiddleware(s.metrics))
	}

	handler := httputil.Chain(middlewares...)(s.router)
	return otelhttp.NewHandler(handler, "tallyspace.api")
}

// Router returns the bare mux router, without middleware. Used by tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) listActions(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"actions": s.registry.Names(),
	})
}

func (s *Server) invokeAction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	name := vars["name"]

	def, ok := s.registry.Get(name)
	if !ok {
		httputil.WriteNotFound(w, "unknown action")
		return
	}

	var payload map[string]interface{}
	if err := httputil.ParseJSON(r, &payload); err != nil && !errors.Is(err, httputil.ErrEmptyBody) {
		httputil.WriteBadRequest(w, "malformed JSON body")
		return
	}

	meta := action.Meta{
		Token:     httputil.BearerToken(r),
		IPAddress: httputil.ClientIP(r),
		UserAgent: r.UserAgent(),
	}
	if slug := vars["slug"]; slug != "" {
		meta.WorkspaceRef = action.WorkspaceRef{Slug: slug}
	}

	result := s.executor.Invoke(r.Context(), def, payload, meta)
	httputil.WriteJSON(w, statusFor(result), result)
}

// statusFor maps a result onto an HTTP status. Validation and domain
// failures stay 422; pipeline rejections use their conventional codes.
func statusFor(result *action.Result) int {
	if result.Success {
		return http.StatusOK
	}
	switch result.FirstCode() {
	case action.CodeAuthRequired:
		return http.StatusUnauthorized
	case action.CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case action.CodeSecurityViolation:
		return http.StatusBadRequest
	case action.CodeWorkspaceNotFound, action.CodeResourceNotFound:
		return http.StatusNotFound
	case authz.CodeWorkspaceRequired, authz.CodeAdminRequired, authz.CodeInsufficientRole,
		authz.CodeMissingPermissions, authz.CodeCustomAuthFailed, authz.CodeResourceAccessDenied:
		return http.StatusForbidden
	case action.CodeServerError:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}
