package action

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/authz"
	"github.com/tallyspace/tallyspace/pkg/validate"
)

// ErrWorkspaceNotFound is what a WorkspaceResolver returns when no membership
// matches the reference. A missing workspace and a non-membership are
// deliberately indistinguishable to the caller.
var ErrWorkspaceNotFound = errors.New("workspace not found")

// WorkspaceRef identifies a workspace by id or slug. Exactly one should be
// set; id wins when both are.
type WorkspaceRef struct {
	ID   int64
	Slug string
}

// IsZero reports whether the ref identifies nothing
func (r WorkspaceRef) IsZero() bool {
	return r.ID == 0 && r.Slug == ""
}

// Workspace is the resolved tenant a request runs against
type Workspace struct {
	ID   int64  `json:"id"`
	Slug string `json:"slug"`
	Name string `json:"name"`
}

// WorkspaceGrant is a successful resolution: the workspace plus the caller's
// role in it.
type WorkspaceGrant struct {
	Workspace *Workspace
	Role      auth.Role
}

// WorkspaceResolver turns a reference and a user into a grant
type WorkspaceResolver interface {
	ResolveWorkspace(ctx context.Context, ref WorkspaceRef, userID int64) (*WorkspaceGrant, error)
}

// Outcome values recorded on audit events
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// AuditEvent is what the executor hands to the audit sink once the handler
// of an audited action has run, and on security violations.
type AuditEvent struct {
	WorkspaceID  int64
	UserID       *int64
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      string
	OldValues    map[string]interface{}
	NewValues    map[string]interface{}
	IPAddress    string
	UserAgent    string
}

// AuditSink records events fire-and-forget; implementations must never fail
// the invocation being recorded.
type AuditSink interface {
	RecordEvent(ctx context.Context, ev *AuditEvent)
}

// Meta carries the transport-level details of one invocation
type Meta struct {
	Token        string
	WorkspaceRef WorkspaceRef
	IPAddress    string
	UserAgent    string
}

// Request is what a handler receives after all gate stages have passed
type Request struct {
	// Payload is the validated, sanitized input restricted to schema fields
	Payload map[string]interface{}
	// Identity is the authenticated caller; nil when the action does not
	// require authentication
	Identity *auth.Identity
	// Subject carries the resolved workspace id and role; Subject.HasWorkspace
	// is false when the action does not require a workspace
	Subject *authz.Subject
	// Workspace is the resolved workspace; nil without one
	Workspace *Workspace
	Meta      Meta
}

// UserID returns the caller's user ID, or nil for unauthenticated actions
func (r *Request) UserID() *int64 {
	if r.Identity == nil {
		return nil
	}
	return &r.Identity.ID
}

// WorkspaceID returns the resolved workspace ID; zero without a workspace
func (r *Request) WorkspaceID() int64 {
	if r.Workspace == nil {
		return 0
	}
	return r.Workspace.ID
}

// Audit lets a handler describe what the trail entry for a successful
// invocation should record
type Audit struct {
	ResourceID string
	OldValues  map[string]interface{}
	NewValues  map[string]interface{}
}

// Handler implements an action's business logic. Domain failures are
// returned as *DomainError; any other error becomes a server_error.
type Handler func(ctx context.Context, req *Request) (*Result, *Audit, error)

// RateLimitConfig bounds invocation attempts per user per action name
type RateLimitConfig struct {
	WindowMinutes int
	MaxAttempts   int
}

// DefaultRateLimit returns the standard per-action limit
func DefaultRateLimit() *RateLimitConfig {
	return &RateLimitConfig{WindowMinutes: 5, MaxAttempts: 10}
}

// AuditConfig enables trail recording for an action
type AuditConfig struct {
	// Action is the verb recorded in the trail (stored upper-cased)
	Action string
	// ResourceType names the kind of resource the action touches
	ResourceType string
}

// Definition declares one action
type Definition struct {
	Name             string
	Schema           validate.Schema
	RequireAuth      bool
	RequireWorkspace bool
	// Authz is evaluated after workspace resolution; nil means membership
	// alone suffices
	Authz *authz.Config
	// RateLimit is optional; nil disables limiting for this action
	RateLimit *RateLimitConfig
	// Audit is optional; nil disables trail recording
	Audit   *AuditConfig
	Handler Handler
}

// Registry holds the actions available for invocation
type Registry struct {
	mu      sync.RWMutex
	actions map[string]*Definition
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{actions: make(map[string]*Definition)}
}

// Register adds definitions to the registry. Registering a duplicate or
// handlerless definition is a programming error and panics at startup.
func (r *Registry) Register(defs ...*Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, def := range defs {
		if def.Name == "" || def.Handler == nil {
			panic(fmt.Sprintf("action definition %q is incomplete", def.Name))
		}
		if _, exists := r.actions[def.Name]; exists {
			panic(fmt.Sprintf("action %q registered twice", def.Name))
		}
		r.actions[def.Name] = def
	}
}

// Get returns a definition by name
func (r *Registry) Get(name string) (*Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.actions[name]
	return def, ok
}

// Names returns all registered action names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
