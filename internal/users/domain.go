package users

import (
	"errors"
	"strings"
	"time"

	"github.com/rashid2003/jira-payroll-automation/internal/rbac"
)

var (
	// ErrNotFound indicates the user or profile does not exist.
	ErrNotFound = errors.New("users: not found")
	// ErrDuplicate indicates the username, email or employee id is taken.
	ErrDuplicate = errors.New("users: duplicate")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("users: validation failed")
)

// Roles assignable to a profile.
var Roles = []string{rbac.RoleEmployee, rbac.RoleManager, rbac.RoleHR, rbac.RoleFinance, rbac.RoleAdmin}

// User represents a user account for management.
type User struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	IsActive    bool      `json:"is_active"`
	IsStaff     bool      `json:"is_staff"`
	IsSuperuser bool      `json:"is_superuser"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Profile carries the payroll role of a user.
type Profile struct {
	UserID            int64  `json:"user_id"`
	Role              string `json:"role"`
	Department        string `json:"department,omitempty"`
	EmployeeID        string `json:"employee_id,omitempty"`
	CanCreatePeriods  bool   `json:"can_create_periods"`
	CanRunPayroll     bool   `json:"can_run_payroll"`
	CanViewAllPeriods bool   `json:"can_view_all_periods"`
}

// ApplyRoleDefaults raises the permission flags implied by the role. Flags
// granted explicitly are never lowered.
func (p *Profile) ApplyRoleDefaults() {
	switch p.Role {
	case rbac.RoleFinance, rbac.RoleAdmin:
		p.CanCreatePeriods = true
		p.CanRunPayroll = true
		p.CanViewAllPeriods = true
	case rbac.RoleHR:
		p.CanViewAllPeriods = true
	}
}

// Grants projects the profile onto the authorization model.
func (p Profile) Grants() rbac.Grants {
	return rbac.Grants{
		Role:              p.Role,
		CanCreatePeriods:  p.CanCreatePeriods,
		CanRunPayroll:     p.CanRunPayroll,
		CanViewAllPeriods: p.CanViewAllPeriods,
	}
}

// CreateInput describes a new account.
type CreateInput struct {
	Username    string `json:"username" validate:"required,max=150"`
	Email       string `json:"email" validate:"required,email"`
	Password    string `json:"password" validate:"required,min=8"`
	FirstName   string `json:"first_name" validate:"max=150"`
	LastName    string `json:"last_name" validate:"max=150"`
	Role        string `json:"role" validate:"omitempty,oneof=employee manager hr finance admin"`
	Department  string `json:"department" validate:"max=100"`
	EmployeeID  string `json:"employee_id" validate:"max=50"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// Account is a created user with its profile and derived permissions.
type Account struct {
	User        User     `json:"user"`
	Profile     Profile  `json:"profile"`
	Permissions []string `json:"permissions"`
}

// NewUser is the row written when creating an account.
type NewUser struct {
	Username     string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	IsStaff      bool
	IsSuperuser  bool
}
