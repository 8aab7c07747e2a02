package auth

import "fmt"

// Role represents workspace-level roles
type Role string

const (
	RoleAdmin  Role = "admin"  // Full access to workspace, including member management
	RoleMember Role = "member" // Can create and update business data
	RoleViewer Role = "viewer" // Read-only access
)

// roleRanks defines the total order over roles. Unknown roles rank 0 and
// therefore never satisfy any minimum-role requirement.
var roleRanks = map[Role]int{
	RoleViewer: 1,
	RoleMember: 2,
	RoleAdmin:  3,
}

// ParseRole validates a raw role string
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if _, ok := roleRanks[role]; !ok {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return role, nil
}

// Valid reports whether the role is one of the known roles
func (r Role) Valid() bool {
	_, ok := roleRanks[r]
	return ok
}

// Rank returns the numeric rank of the role (viewer=1, member=2, admin=3)
func (r Role) Rank() int {
	return roleRanks[r]
}

// HasRequiredRole reports whether role satisfies the minimum role requirement
func HasRequiredRole(role, minimum Role) bool {
	return roleRanks[role] >= roleRanks[minimum]
}

// AllRoles returns the known roles in ascending rank order
func AllRoles() []Role {
	return []Role{RoleViewer, RoleMember, RoleAdmin}
}
