package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/rashid2003/jira-payroll-automation/internal/rbac"
	"github.com/rashid2003/jira-payroll-automation/internal/users"
)

// UserCreator provisions payroll users.
type UserCreator interface {
	CreateUser(ctx context.Context, in users.CreateInput) (users.Account, error)
}

// UsersCLI manages payroll users from the command line.
type UsersCLI struct {
	creator UserCreator
}

// NewUsersCLI constructs the helper.
func NewUsersCLI(creator UserCreator) (*UsersCLI, error) {
	if creator == nil {
		return nil, errors.New("users cli: service not configured")
	}
	return &UsersCLI{creator: creator}, nil
}

// CreateOptions defines available flags for the users create command. When
// Input.Password is empty the password and its confirmation are read from
// Stdin, one per line.
type CreateOptions struct {
	Input  users.CreateInput
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

var roleTitle = cases.Title(language.English)

// CreateCommand creates the user and prints a summary of the granted access.
func (c *UsersCLI) CreateCommand(ctx context.Context, opts CreateOptions) int {
	if opts.Stdin == nil {
		opts.Stdin = os.Stdin
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	in := opts.Input
	if in.Password == "" {
		password, err := readPassword(opts.Stdin, opts.Stdout)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "users create: %v\n", err)
			return 1
		}
		in.Password = password
	}
	account, err := c.creator.CreateUser(ctx, in)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "Error creating user: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "Successfully created user %q\n", account.User.Username)
	renderAccount(opts.Stdout, account)
	return 0
}

func readPassword(in io.Reader, prompt io.Writer) (string, error) {
	scanner := bufio.NewScanner(in)
	_, _ = fmt.Fprint(prompt, "Password: ")
	if !scanner.Scan() {
		return "", errors.New("password cannot be empty")
	}
	password := strings.TrimRight(scanner.Text(), "\r")
	if password == "" {
		return "", errors.New("password cannot be empty")
	}
	_, _ = fmt.Fprint(prompt, "Password (again): ")
	if !scanner.Scan() || strings.TrimRight(scanner.Text(), "\r") != password {
		return "", errors.New("passwords don't match")
	}
	_, _ = fmt.Fprintln(prompt)
	return password, nil
}

func renderAccount(out io.Writer, account users.Account) {
	u, p := account.User, account.Profile
	role := roleTitle.String(p.Role)

	_, _ = fmt.Fprintln(out, "\n=== User Created Successfully ===")
	_, _ = fmt.Fprintf(out, "Username: %s\n", u.Username)
	_, _ = fmt.Fprintf(out, "Email: %s\n", u.Email)
	if name := u.FullName(); name != "" {
		_, _ = fmt.Fprintf(out, "Name: %s\n", name)
	}

	_, _ = fmt.Fprintln(out, "\n=== Profile Information ===")
	_, _ = fmt.Fprintf(out, "Role: %s\n", role)
	if p.Department != "" {
		_, _ = fmt.Fprintf(out, "Department: %s\n", p.Department)
	}
	if p.EmployeeID != "" {
		_, _ = fmt.Fprintf(out, "Employee ID: %s\n", p.EmployeeID)
	}

	_, _ = fmt.Fprintln(out, "\n=== Account Flags ===")
	_, _ = fmt.Fprintf(out, "Staff Access: %s\n", yesNo(u.IsStaff))
	_, _ = fmt.Fprintf(out, "Superuser: %s\n", yesNo(u.IsSuperuser))

	_, _ = fmt.Fprintln(out, "\n=== Payroll Permissions ===")
	_, _ = fmt.Fprintf(out, "Can Create Periods: %s\n", yesNo(p.CanCreatePeriods))
	_, _ = fmt.Fprintf(out, "Can Run Payroll: %s\n", yesNo(p.CanRunPayroll))
	_, _ = fmt.Fprintf(out, "Can View All Periods: %s\n", yesNo(p.CanViewAllPeriods))
	switch {
	case p.Grants().IsFinanceOrAdmin():
		_, _ = fmt.Fprintf(out, "\nNote: %s role automatically grants all payroll permissions\n", role)
	case p.Role == rbac.RoleHR:
		_, _ = fmt.Fprintln(out, "\nNote: HR role automatically grants view permissions")
	}

	_, _ = fmt.Fprintln(out, "\n=== API Access ===")
	if len(account.Permissions) == 0 {
		_, _ = fmt.Fprintln(out, "No payroll endpoints available")
		return
	}
	_, _ = fmt.Fprintf(out, "Permissions: %s\n", strings.Join(account.Permissions, ", "))
	for _, line := range endpointsFor(account.Permissions) {
		_, _ = fmt.Fprintf(out, "  - %s\n", line)
	}
}

var endpointsByPermission = []struct {
	perm  string
	lines []string
}{
	{"payroll.period.view", []string{"GET /payroll/periods (list periods)", "GET /payroll/periods/{id} (view period)", "GET /payroll/periods/{id}/summary (period summary)"}},
	{"payroll.period.create", []string{"POST /payroll/periods (create period)"}},
	{"payroll.period.edit", []string{"PUT /payroll/periods/{id} (update period)", "DELETE /payroll/periods/{id} (delete period)", "GET /payroll/periods/export-csv (export periods)", "POST /payroll/periods/import-csv (import periods)"}},
	{"payroll.run", []string{"POST /payroll/periods/{id}/run (run payroll)", "POST /payroll/automation/sweep (run automation)"}},
	{"users.view", []string{"GET /users (list users)"}},
}

func endpointsFor(perms []string) []string {
	granted := make(map[string]bool, len(perms))
	for _, p := range perms {
		granted[p] = true
	}
	var out []string
	for _, entry := range endpointsByPermission {
		if granted[entry.perm] {
			out = append(out, entry.lines...)
		}
	}
	return out
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
