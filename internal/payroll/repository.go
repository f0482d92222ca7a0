package payroll

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/db"
)

// Repository provides PostgreSQL backed persistence for payroll runs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// ActiveEmployees lists employees marked active, ordered by id.
func (r *Repository) ActiveEmployees(ctx context.Context) ([]Employee, error) {
	return activeEmployees(ctx, r.pool)
}

func (t *txRepo) ActiveEmployees(ctx context.Context) ([]Employee, error) {
	return activeEmployees(ctx, t.tx)
}

func (t *txRepo) LockPeriod(ctx context.Context, id int64) (periods.Period, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+periods.Columns()+` FROM payroll_periods WHERE id = $1 FOR UPDATE`, id)
	return periods.ScanPeriod(row)
}

// BaseSalary prefers the record scoped to the period, then the most recent
// record of the employee.
func (t *txRepo) BaseSalary(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, bool, error) {
	var raw string
	err := t.tx.QueryRow(ctx, `SELECT base_salary::text FROM payroll_salary_records
		WHERE employee_id = $1
		ORDER BY (period_id = $2) IS TRUE DESC, created_at DESC, id DESC
		LIMIT 1`, employeeID, periodID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, false, err
	}
	return d, true, nil
}

func (t *txRepo) BonusTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error) {
	return sumAmount(ctx, t.tx, `SELECT COALESCE(SUM(amount), 0)::text FROM payroll_bonuses
		WHERE employee_id = $1 AND period_id = $2 AND is_active`, employeeID, periodID)
}

func (t *txRepo) OvertimeTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error) {
	return sumAmount(ctx, t.tx, `SELECT COALESCE(SUM(amount), 0)::text FROM payroll_overtime
		WHERE employee_id = $1 AND period_id = $2 AND is_active`, employeeID, periodID)
}

func (t *txRepo) UpsertSalaryRecord(ctx context.Context, rec SalaryRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payroll_salary_records
		(period_id, employee_id, base_salary, bonuses, overtime, gross_salary,
		 total_deductions, total_taxes, total_insurance, net_salary, processed_at, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11, NOW(), NOW())
		ON CONFLICT (period_id, employee_id) DO UPDATE SET
			base_salary = EXCLUDED.base_salary,
			bonuses = EXCLUDED.bonuses,
			overtime = EXCLUDED.overtime,
			gross_salary = EXCLUDED.gross_salary,
			total_deductions = EXCLUDED.total_deductions,
			total_taxes = EXCLUDED.total_taxes,
			total_insurance = EXCLUDED.total_insurance,
			net_salary = EXCLUDED.net_salary,
			processed_at = EXCLUDED.processed_at,
			updated_at = NOW()`,
		rec.PeriodID, rec.EmployeeID, rec.BaseSalary.String(), rec.Bonuses.String(), rec.Overtime.String(),
		rec.Gross.String(), rec.Deductions.String(), rec.Taxes.String(), rec.Insurance.String(),
		rec.Net.String(), rec.ProcessedAt)
	return err
}

func (t *txRepo) UpsertPayment(ctx context.Context, payment Payment) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO payroll_payments
		(period_id, employee_id, amount, payment_date, status, payment_method, reference_number, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (period_id, employee_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			payment_date = EXCLUDED.payment_date,
			reference_number = EXCLUDED.reference_number,
			updated_at = NOW()`,
		payment.PeriodID, payment.EmployeeID, payment.Amount.String(), payment.PaymentDate,
		payment.Status, payment.Method, payment.Reference)
	return err
}

// CompletePeriod transitions active to completed. Losing the race to another
// writer surfaces as a completed-period business error.
func (t *txRepo) CompletePeriod(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `UPDATE payroll_periods SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = $3`, id, string(periods.StatusCompleted), string(periods.StatusActive))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &BusinessError{PeriodID: id, Err: ErrPeriodCompleted}
	}
	return nil
}

func (t *txRepo) Savepoint(ctx context.Context, fn func(context.Context, Tx) error) error {
	return db.WithSavepoint(ctx, t.tx, func(sp pgx.Tx) error {
		return fn(ctx, &txRepo{tx: sp})
	})
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func activeEmployees(ctx context.Context, q querier) ([]Employee, error) {
	rows, err := q.Query(ctx, `SELECT id, employee_code, first_name, last_name, email, COALESCE(department, '')
		FROM employees WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Employee
	for rows.Next() {
		var e Employee
		if err := rows.Scan(&e.ID, &e.EmployeeCode, &e.FirstName, &e.LastName, &e.Email, &e.Department); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func sumAmount(ctx context.Context, q querier, sql string, args ...any) (decimal.Decimal, error) {
	var raw string
	if err := q.QueryRow(ctx, sql, args...).Scan(&raw); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(raw)
}
