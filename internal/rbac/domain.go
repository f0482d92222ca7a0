package rbac

import (
	"sort"

	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// Role names recognised by the payroll system.
const (
	RoleEmployee = "employee"
	RoleManager  = "manager"
	RoleHR       = "hr"
	RoleFinance  = "finance"
	RoleAdmin    = "admin"
)

// Grants is the slice of a user profile that drives authorization.
type Grants struct {
	Role              string
	CanCreatePeriods  bool
	CanRunPayroll     bool
	CanViewAllPeriods bool
}

// IsFinanceOrAdmin reports whether the role carries every payroll permission.
func (g Grants) IsFinanceOrAdmin() bool {
	return g.Role == RoleFinance || g.Role == RoleAdmin
}

// PermissionsFor derives the sorted permission names granted by a profile.
func PermissionsFor(g Grants) []string {
	var perms []string
	if g.IsFinanceOrAdmin() || g.Role == RoleHR || g.CanViewAllPeriods {
		perms = append(perms, shared.PermPayrollPeriodView)
	}
	if g.IsFinanceOrAdmin() || g.CanCreatePeriods {
		perms = append(perms, shared.PermPayrollPeriodCreate)
	}
	if g.IsFinanceOrAdmin() {
		perms = append(perms, shared.PermPayrollPeriodEdit)
	}
	if g.IsFinanceOrAdmin() || g.CanRunPayroll {
		perms = append(perms, shared.PermPayrollRun)
	}
	if g.Role == RoleAdmin {
		perms = append(perms, shared.CoreScopes()...)
	}
	sort.Strings(perms)
	return perms
}

// Catalog lists every permission known to the system.
func Catalog() []string {
	all := append(shared.PayrollScopes(), shared.CoreScopes()...)
	sort.Strings(all)
	return all
}
