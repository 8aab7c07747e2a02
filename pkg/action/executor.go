package action

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/observability"
	"github.com/tallyspace/tallyspace/pkg/security"
)

// Verbs the pipeline records on its own behalf
const (
	auditActionSecurityViolation  = "SECURITY_VIOLATION"
	auditActionSuspiciousActivity = "SUSPICIOUS_ACTIVITY"
)

// Deps are the collaborators an Executor needs. Trail, Limiter, Detector
// and Metrics may be nil; the corresponding stage is skipped.
type Deps struct {
	Authenticator auth.Authenticator
	Resolver      WorkspaceResolver
	Trail         AuditSink
	Limiter       RateLimiter
	Detector      *security.Detector
	Logger        *observability.Logger
	Metrics       *observability.Metrics
}

// Executor runs invocations through the staged pipeline
type Executor struct {
	deps Deps
}

// NewExecutor creates an executor with injected collaborators
func NewExecutor(deps Deps) *Executor {
	if deps.Logger == nil {
		deps.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Executor{deps: deps}
}

// Invoke runs one action invocation. It always returns a Result; panics and
// unexpected errors surface as server_error.
func (e *Executor) Invoke(ctx context.Context, def *Definition, raw map[string]interface{}, meta Meta) (result *Result) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			e.deps.Logger.WithFields(map[string]interface{}{
				"action": def.Name,
				"panic":  fmt.Sprintf("%v", r),
				"stack":  string(debug.Stack()),
			}).Error("action handler panicked")
			result = Fail(CodeServerError, "Internal server error")
		}
		e.observe(def.Name, result, time.Since(start))
	}()

	// Stage 1: validate
	if raw == nil {
		raw = map[string]interface{}{}
	}
	payload := raw
	if def.Schema != nil {
		clean, fieldErrs := def.Schema.Validate(raw)
		if len(fieldErrs) > 0 {
			return &Result{Success: false, Message: "Validation failed", Errors: fieldErrs}
		}
		payload = clean
	}

	// Stage 2: sanitize, then screen the sanitized values for injection
	payload = security.SanitizeMap(payload)
	if !security.ValidateSQLParams(payload) {
		e.recordSecurityEvent(ctx, def, meta)
		return Fail(CodeSecurityViolation, "Input rejected by security screening")
	}

	// Stage 3: authenticate
	var identity *auth.Identity
	if def.RequireAuth {
		var err error
		identity, err = e.deps.Authenticator.Authenticate(ctx, meta.Token)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				return Fail(CodeAuthRequired, "Authentication required")
			}
			e.deps.Logger.WithError(err).WithField("action", def.Name).Error("authentication backend failed")
			return Fail(CodeServerError, "Internal server error")
		}
	}

	// Stage 4: rate limit, failing open on limiter errors
	if def.RateLimit != nil && e.deps.Limiter != nil && identity != nil {
		decision, err := e.deps.Limiter.Allow(ctx, identity.ID, def.Name, *def.RateLimit)
		switch {
		case err != nil:
			e.deps.Logger.WithError(err).WithField("action", def.Name).Warn("rate limiter unavailable, allowing request")
		case !decision.Allowed:
			return Fail(CodeRateLimitExceeded, fmt.Sprintf("Too many attempts, try again after %s", decision.ResetAt.Format(time.RFC3339)))
		}
	}

	// Stage 5: resolve workspace
	subject := &authz.Subject{}
	if identity != nil {
		subject.UserID = identity.ID
	}
	var ws *Workspace
	if def.RequireWorkspace {
		if identity == nil {
			return Fail(CodeAuthRequired, "Authentication required")
		}
		grant, err := e.deps.Resolver.ResolveWorkspace(ctx, meta.WorkspaceRef, identity.ID)
		if err != nil {
			if errors.Is(err, ErrWorkspaceNotFound) {
				return Fail(CodeWorkspaceNotFound, "Workspace not found")
			}
			e.deps.Logger.WithError(err).WithField("action", def.Name).Error("workspace resolution failed")
			return Fail(CodeServerError, "Internal server error")
		}
		ws = grant.Workspace
		subject.WorkspaceID = ws.ID
		subject.Role = grant.Role
		subject.HasWorkspace = true
	}

	// Stage 6: authorize
	if def.Authz != nil {
		if denial := authz.Check(ctx, subject, def.Authz); denial != nil {
			return FailField(denial.Field, denial.Code, denial.Message)
		}
	}

	// Stage 7: suspicious-activity heuristic, detection only
	e.checkSuspicious(ctx, def, subject, meta)

	// Stage 8: handler
	req := &Request{Payload: payload, Identity: identity, Subject: subject, Workspace: ws, Meta: meta}
	res, auditInfo, err := def.Handler(ctx, req)
	if err != nil {
		var domainErr *DomainError
		if errors.As(err, &domainErr) {
			res = FailField(domainErr.Field, domainErr.Code, domainErr.Message)
		} else {
			e.deps.Logger.WithError(err).WithField("action", def.Name).Error("action handler failed")
			res = Fail(CodeServerError, "Internal server error")
		}
	} else if res == nil {
		e.deps.Logger.WithField("action", def.Name).Error("action handler returned no result")
		res = Fail(CodeServerError, "Internal server error")
	}

	// Stage 9: audit the handler's outcome, success or failure
	if def.Audit != nil && e.deps.Trail != nil {
		e.recordAudit(ctx, def, req, auditInfo, res)
	}

	return res
}

func (e *Executor) recordSecurityEvent(ctx context.Context, def *Definition, meta Meta) {
	e.deps.Logger.WithFields(map[string]interface{}{
		"action": def.Name,
		"ip":     meta.IPAddress,
	}).Warn("input rejected by security screening")

	if e.deps.Trail == nil {
		return
	}
	e.deps.Trail.RecordEvent(ctx, &AuditEvent{
		Action:       auditActionSecurityViolation,
		ResourceType: "action",
		ResourceID:   def.Name,
		Outcome:      OutcomeFailure,
		IPAddress:    meta.IPAddress,
		UserAgent:    meta.UserAgent,
	})
}

func (e *Executor) checkSuspicious(ctx context.Context, def *Definition, subject *authz.Subject, meta Meta) {
	if e.deps.Detector == nil || !subject.HasWorkspace {
		return
	}

	flag, err := e.deps.Detector.Check(ctx, subject.WorkspaceID, subject.UserID)
	if err != nil {
		e.deps.Logger.WithError(err).WithField("action", def.Name).Warn("suspicious-activity check unavailable")
		return
	}
	if flag == nil {
		return
	}

	reasons := strings.Join(flag.Reasons, "; ")
	e.deps.Logger.WithFields(map[string]interface{}{
		"action":       def.Name,
		"workspace_id": flag.WorkspaceID,
		"user_id":      flag.UserID,
		"reasons":      reasons,
	}).Warn("suspicious activity detected")

	if e.deps.Trail != nil {
		e.deps.Trail.RecordEvent(ctx, &AuditEvent{
			WorkspaceID:  flag.WorkspaceID,
			UserID:       &flag.UserID,
			Action:       auditActionSuspiciousActivity,
			ResourceType: "user",
			ResourceID:   fmt.Sprintf("%d", flag.UserID),
			Outcome:      OutcomeSuccess,
			NewValues:    map[string]interface{}{"reasons": flag.Reasons, "action": def.Name},
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
		})
	}
}

func (e *Executor) recordAudit(ctx context.Context, def *Definition, req *Request, info *Audit, res *Result) {
	ev := &AuditEvent{
		WorkspaceID:  req.WorkspaceID(),
		UserID:       req.UserID(),
		Action:       def.Audit.Action,
		ResourceType: def.Audit.ResourceType,
		Outcome:      OutcomeSuccess,
		IPAddress:    req.Meta.IPAddress,
		UserAgent:    req.Meta.UserAgent,
	}
	if !res.Success {
		ev.Outcome = OutcomeFailure
	}

	if info != nil {
		ev.ResourceID = info.ResourceID
		ev.OldValues = info.OldValues
		ev.NewValues = info.NewValues
	} else if len(req.Payload) > 0 {
		ev.NewValues = req.Payload
	}

	e.deps.Trail.RecordEvent(ctx, ev)
}

func (e *Executor) observe(name string, result *Result, elapsed time.Duration) {
	if e.deps.Metrics == nil {
		return
	}
	outcome := "success"
	if result != nil && !result.Success {
		outcome = result.FirstCode()
		if outcome == "" {
			outcome = "failure"
		}
	}
	e.deps.Metrics.ActionsTotal.WithLabelValues(name, outcome).Inc()
	e.deps.Metrics.ActionDuration.WithLabelValues(name).Observe(elapsed.Seconds())
}
