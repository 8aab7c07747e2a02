// Package auth provides the role model and session-token authentication for TallySpace.
//
// # Roles
//
// Every user holds exactly one role per workspace, ranked in a total order:
//
//	RoleViewer - read-only access to business data
//	RoleMember - can create and update business data
//	RoleAdmin  - full access, including member management and destructive deletes
//
// # Permissions
//
// Permissions are fine-grained resource:action capabilities statically mapped
// from roles. The mapping lives in a single table (RolePermissions) and must be
// reviewed whenever a new resource/action pair is introduced; feature code must
// never compute permissions ad hoc.
//
//	auth.HasPermission(auth.RoleMember, auth.PermTasksCreate) // true
//	auth.HasRequiredRole(auth.RoleViewer, auth.RoleAdmin)     // false
//
// # Session tokens
//
// Authentication uses opaque bearer tokens:
//
//	Format: tally_[base64url(32 random bytes)]
//	Stored as SHA256 hash; the plaintext token is returned exactly once.
//
// The SessionStore persists sessions in PostgreSQL and Authenticate resolves a
// presented token into an Identity, rejecting expired or revoked sessions.
package auth
