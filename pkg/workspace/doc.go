// Package workspace manages tenant workspaces and their memberships.
//
// A workspace is the tenant boundary: every piece of business data belongs to
// exactly one workspace, and every query in the system is scoped by
// workspace_id. Users join workspaces through memberships that carry exactly
// one role each.
//
// The Resolver answers the question "which workspace and role apply to this
// request" with a single joined query. It deliberately reports the same
// ErrWorkspaceNotFound whether the workspace does not exist or the caller is
// not a member, so callers cannot probe for workspace existence. Resolution is
// never cached: a just-demoted admin is rejected on their very next call.
package workspace
