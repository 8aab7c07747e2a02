package auth

import (
	"fmt"
	"strings"
)

// Resource represents a resource type that permissions apply to
type Resource string

const (
	ResourceCustomers Resource = "customers"
	ResourceInvoices  Resource = "invoices"
	ResourceExpenses  Resource = "expenses"
	ResourceTasks     Resource = "tasks"
	ResourcePayments  Resource = "payments"
	ResourceWorkspace Resource = "workspace"
	ResourceAudit     Resource = "audit"
)

// Action represents an action that can be performed on a resource
type Action string

const (
	ActionRead          Action = "read"
	ActionCreate        Action = "create"
	ActionUpdate        Action = "update"
	ActionDelete        Action = "delete"
	ActionManageMembers Action = "manage_members"
)

// Permission represents a specific permission (resource + action)
type Permission struct {
	Resource Resource `json:"resource"`
	Action   Action   `json:"action"`
}

// String returns the canonical "resource:action" form of the permission
func (p Permission) String() string {
	return string(p.Resource) + ":" + string(p.Action)
}

// Named permission values. Feature code references these constants rather than
// building "resource:action" strings at call sites.
var (
	PermCustomersRead   = Permission{ResourceCustomers, ActionRead}
	PermCustomersCreate = Permission{ResourceCustomers, ActionCreate}
	PermCustomersUpdate = Permission{ResourceCustomers, ActionUpdate}
	PermCustomersDelete = Permission{ResourceCustomers, ActionDelete}

	PermInvoicesRead   = Permission{ResourceInvoices, ActionRead}
	PermInvoicesCreate = Permission{ResourceInvoices, ActionCreate}
	PermInvoicesUpdate = Permission{ResourceInvoices, ActionUpdate}
	PermInvoicesDelete = Permission{ResourceInvoices, ActionDelete}

	PermExpensesRead   = Permission{ResourceExpenses, ActionRead}
	PermExpensesCreate = Permission{ResourceExpenses, ActionCreate}
	PermExpensesUpdate = Permission{ResourceExpenses, ActionUpdate}
	PermExpensesDelete = Permission{ResourceExpenses, ActionDelete}

	PermTasksRead   = Permission{ResourceTasks, ActionRead}
	PermTasksCreate = Permission{ResourceTasks, ActionCreate}
	PermTasksUpdate = Permission{ResourceTasks, ActionUpdate}
	PermTasksDelete = Permission{ResourceTasks, ActionDelete}

	PermPaymentsRead   = Permission{ResourcePayments, ActionRead}
	PermPaymentsCreate = Permission{ResourcePayments, ActionCreate}
	PermPaymentsDelete = Permission{ResourcePayments, ActionDelete}

	PermWorkspaceRead          = Permission{ResourceWorkspace, ActionRead}
	PermWorkspaceUpdate        = Permission{ResourceWorkspace, ActionUpdate}
	PermWorkspaceDelete        = Permission{ResourceWorkspace, ActionDelete}
	PermWorkspaceManageMembers = Permission{ResourceWorkspace, ActionManageMembers}

	PermAuditRead = Permission{ResourceAudit, ActionRead}
)

var knownPermissions = func() map[string]Permission {
	all := []Permission{
		PermCustomersRead, PermCustomersCreate, PermCustomersUpdate, PermCustomersDelete,
		PermInvoicesRead, PermInvoicesCreate, PermInvoicesUpdate, PermInvoicesDelete,
		PermExpensesRead, PermExpensesCreate, PermExpensesUpdate, PermExpensesDelete,
		PermTasksRead, PermTasksCreate, PermTasksUpdate, PermTasksDelete,
		PermPaymentsRead, PermPaymentsCreate, PermPaymentsDelete,
		PermWorkspaceRead, PermWorkspaceUpdate, PermWorkspaceDelete, PermWorkspaceManageMembers,
		PermAuditRead,
	}
	m := make(map[string]Permission, len(all))
	for _, p := range all {
		m[p.String()] = p
	}
	return m
}()

// ParsePermission validates a raw "resource:action" string against the closed
// set of known permissions. A typo yields an error instead of a silently
// always-false permission check.
func ParsePermission(s string) (Permission, error) {
	if p, ok := knownPermissions[s]; ok {
		return p, nil
	}
	if !strings.Contains(s, ":") {
		return Permission{}, fmt.Errorf("malformed permission %q: expected resource:action", s)
	}
	return Permission{}, fmt.Errorf("unknown permission %q", s)
}

// rolePermissions is the single source of truth mapping each role to its
// permission set. Review this table whenever a new resource/action pair is
// introduced.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermCustomersRead,
		PermInvoicesRead,
		PermExpensesRead,
		PermTasksRead,
		PermPaymentsRead,
		PermWorkspaceRead,
	},
	RoleMember: {
		PermCustomersRead, PermCustomersCreate, PermCustomersUpdate,
		PermInvoicesRead, PermInvoicesCreate, PermInvoicesUpdate,
		PermExpensesRead, PermExpensesCreate, PermExpensesUpdate, PermExpensesDelete,
		PermTasksRead, PermTasksCreate, PermTasksUpdate, PermTasksDelete,
		PermPaymentsRead, PermPaymentsCreate,
		PermWorkspaceRead,
	},
	RoleAdmin: {
		PermCustomersRead, PermCustomersCreate, PermCustomersUpdate, PermCustomersDelete,
		PermInvoicesRead, PermInvoicesCreate, PermInvoicesUpdate, PermInvoicesDelete,
		PermExpensesRead, PermExpensesCreate, PermExpensesUpdate, PermExpensesDelete,
		PermTasksRead, PermTasksCreate, PermTasksUpdate, PermTasksDelete,
		PermPaymentsRead, PermPaymentsCreate, PermPaymentsDelete,
		PermWorkspaceRead, PermWorkspaceUpdate, PermWorkspaceDelete, PermWorkspaceManageMembers,
		PermAuditRead,
	},
}

// RolePermissionSet returns the static permission set for a role
func RolePermissionSet(role Role) map[Permission]struct{} {
	perms := rolePermissions[role]
	set := make(map[Permission]struct{}, len(perms))
	for _, p := range perms {
		set[p] = struct{}{}
	}
	return set
}

// HasPermission reports whether the role's static permission set contains the
// given permission
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}
