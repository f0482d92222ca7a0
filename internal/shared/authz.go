package shared

// Permission names checked by rbac.Middleware. Payroll permissions derive
// from the profile flags; the administration set is reserved for admins.
const (
	PermPayrollPeriodView   = "payroll.period.view"
	PermPayrollPeriodCreate = "payroll.period.create"
	PermPayrollPeriodEdit   = "payroll.period.edit"
	PermPayrollRun          = "payroll.run"

	PermUsersView       = "users.view"
	PermUsersEdit       = "users.edit"
	PermPermissionsView = "permissions.view"
)

// PayrollScopes lists the permissions guarding periods and payroll runs.
func PayrollScopes() []string {
	return []string{PermPayrollPeriodView, PermPayrollPeriodCreate, PermPayrollPeriodEdit, PermPayrollRun}
}

// CoreScopes lists the user administration permissions.
func CoreScopes() []string {
	return []string{PermUsersView, PermUsersEdit, PermPermissionsView}
}
