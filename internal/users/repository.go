package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rashid2003/jira-payroll-automation/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, username, email, first_name, last_name, is_active, is_staff, is_superuser, created_at, updated_at`

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ListUsers returns all users.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// GetUser fetches one user.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// GetProfile fetches the payroll profile of a user.
func (r *Repository) GetProfile(ctx context.Context, userID int64) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `SELECT user_id, role, COALESCE(department, ''), COALESCE(employee_id, ''),
		can_create_periods, can_run_payroll, can_view_all_periods
		FROM user_profiles WHERE user_id = $1`, userID).
		Scan(&p.UserID, &p.Role, &p.Department, &p.EmployeeID, &p.CanCreatePeriods, &p.CanRunPayroll, &p.CanViewAllPeriods)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrNotFound
	}
	return p, err
}

func (t *txRepo) UsernameTaken(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

func (t *txRepo) EmailTaken(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE lower(email) = lower($1))`, email).Scan(&exists)
	return exists, err
}

func (t *txRepo) InsertUser(ctx context.Context, in NewUser) (User, error) {
	row := t.tx.QueryRow(ctx, `INSERT INTO users (username, email, password_hash, first_name, last_name, is_active, is_staff, is_superuser)
		VALUES ($1, $2, $3, $4, $5, TRUE, $6, $7)
		RETURNING `+userColumns,
		in.Username, in.Email, in.PasswordHash, in.FirstName, in.LastName, in.IsStaff, in.IsSuperuser)
	user, err := scanUser(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return User{}, fmt.Errorf("%w: %v", ErrDuplicate, err)
		}
		return User{}, err
	}
	return user, nil
}

func (t *txRepo) InsertProfile(ctx context.Context, p Profile) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO user_profiles (user_id, role, department, employee_id, can_create_periods, can_run_payroll, can_view_all_periods)
		VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6, $7)`,
		p.UserID, p.Role, p.Department, p.EmployeeID, p.CanCreatePeriods, p.CanRunPayroll, p.CanViewAllPeriods)
	if db.IsUniqueViolation(err) {
		return fmt.Errorf("%w: employee id %q already assigned", ErrDuplicate, p.EmployeeID)
	}
	return err
}

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.FirstName, &u.LastName, &u.IsActive, &u.IsStaff, &u.IsSuperuser, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

var _ Store = (*Repository)(nil)
