package periods

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const periodColumns = `id, start_date, end_date, period_type, status, automation_enabled,
	automation_rule, description, meta, created_at, updated_at`

// Repository persists periods in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Get loads a period by id.
func (r *Repository) Get(ctx context.Context, id int64) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM payroll_periods WHERE id = $1`, id)
	return scanPeriod(row)
}

// List returns periods matching the filter ordered by start date descending.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Period, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", string(filter.Status))
	}
	if filter.Type != "" {
		add("period_type = $%d", string(filter.Type))
	}
	if filter.StartFrom != nil {
		add("start_date >= $%d", DateOf(*filter.StartFrom))
	}
	if filter.EndUntil != nil {
		add("end_date <= $%d", DateOf(*filter.EndUntil))
	}
	if filter.ActiveOnly {
		add("status = $%d", string(StatusActive))
	}
	query := `SELECT ` + periodColumns + ` FROM payroll_periods`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY start_date DESC, id DESC`
	return r.queryPeriods(ctx, query, args...)
}

// ListAutomationCandidates returns active periods with automation enabled.
func (r *Repository) ListAutomationCandidates(ctx context.Context) ([]Period, error) {
	return r.queryPeriods(ctx, `SELECT `+periodColumns+` FROM payroll_periods
		WHERE automation_enabled = TRUE AND status = $1 ORDER BY id`, string(StatusActive))
}

// FindByDates returns the first period with the exact date range.
func (r *Repository) FindByDates(ctx context.Context, start, end time.Time) (Period, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM payroll_periods
		WHERE start_date = $1 AND end_date = $2 ORDER BY id LIMIT 1`, DateOf(start), DateOf(end))
	return scanPeriod(row)
}

// ConflictsFor lists same-type periods whose range intersects [start, end].
func (r *Repository) ConflictsFor(ctx context.Context, periodType PeriodType, start, end time.Time, excludeID int64) ([]Period, error) {
	return r.queryPeriods(ctx, `SELECT `+periodColumns+` FROM payroll_periods
		WHERE period_type = $1 AND start_date <= $3 AND end_date >= $2 AND id <> $4
		ORDER BY start_date`, string(periodType), DateOf(start), DateOf(end), excludeID)
}

// Insert creates a period in active status.
func (r *Repository) Insert(ctx context.Context, in Input) (Period, error) {
	rule, meta, err := encodeJSONColumns(in)
	if err != nil {
		return Period{}, err
	}
	row := r.pool.QueryRow(ctx, `INSERT INTO payroll_periods
		(start_date, end_date, period_type, status, automation_enabled, automation_rule, description, meta, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, NOW(), NOW())
		RETURNING `+periodColumns,
		in.StartDate, in.EndDate, string(in.Type), string(StatusActive), in.AutomationEnabled, rule, in.Description, meta)
	return scanPeriod(row)
}

// Update replaces the writable fields of a period.
func (r *Repository) Update(ctx context.Context, id int64, in Input) (Period, error) {
	rule, meta, err := encodeJSONColumns(in)
	if err != nil {
		return Period{}, err
	}
	row := r.pool.QueryRow(ctx, `UPDATE payroll_periods SET
		start_date = $2, end_date = $3, period_type = $4, automation_enabled = $5,
		automation_rule = $6, description = NULLIF($7, ''), meta = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+periodColumns,
		id, in.StartDate, in.EndDate, string(in.Type), in.AutomationEnabled, rule, in.Description, meta)
	return scanPeriod(row)
}

// UpdateStatus performs a compare-and-swap status transition.
func (r *Repository) UpdateStatus(ctx context.Context, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE payroll_periods SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 1 {
		return nil
	}
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return ErrInvalidTransition
}

// Delete removes a period.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM payroll_periods WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Summary aggregates salary and payment records of a period.
func (r *Repository) Summary(ctx context.Context, id int64) (Summary, error) {
	period, err := r.Get(ctx, id)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Period: period}
	var (
		gross, deducted, net, avg pgtype.Numeric
		processedAt               pgtype.Timestamptz
	)
	err = r.pool.QueryRow(ctx, `SELECT COUNT(*),
			COALESCE(SUM(gross_salary), 0),
			COALESCE(SUM(total_deductions + total_taxes + total_insurance), 0),
			COALESCE(SUM(net_salary), 0),
			COALESCE(AVG(gross_salary), 0),
			MAX(processed_at)
		FROM payroll_salary_records WHERE period_id = $1`, id).
		Scan(&summary.EmployeeCount, &gross, &deducted, &net, &avg, &processedAt)
	if err != nil {
		return Summary{}, err
	}
	summary.TotalGross = numericToDecimal(gross)
	summary.TotalDeducted = numericToDecimal(deducted)
	summary.TotalNet = numericToDecimal(net)
	summary.AverageGross = numericToDecimal(avg).Round(2)
	if processedAt.Valid {
		t := processedAt.Time
		summary.ProcessedAt = &t
	}
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM payroll_payments WHERE period_id = $1`, id).Scan(&summary.PaymentCount); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

func (r *Repository) queryPeriods(ctx context.Context, query string, args ...any) ([]Period, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ScanPeriod reads a row selected with the standard period column list.
func ScanPeriod(row pgx.Row) (Period, error) {
	return scanPeriod(row)
}

// Columns returns the standard period column list for callers sharing the table.
func Columns() string {
	return periodColumns
}

func scanPeriod(row pgx.Row) (Period, error) {
	var (
		p           Period
		periodType  string
		status      string
		rule, meta  []byte
		description pgtype.Text
	)
	err := row.Scan(&p.ID, &p.StartDate, &p.EndDate, &periodType, &status, &p.AutomationEnabled,
		&rule, &description, &meta, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrNotFound
		}
		return Period{}, err
	}
	p.Type = PeriodType(periodType)
	p.Status = Status(status)
	p.StartDate = DateOf(p.StartDate)
	p.EndDate = DateOf(p.EndDate)
	p.Description = description.String
	p.AutomationRule = decodeRule(rule)
	if len(meta) > 0 {
		_ = json.Unmarshal(meta, &p.Meta)
	}
	return p, nil
}

// decodeRule keeps numbers as json.Number so integral offsets survive intact.
// Content that is not a JSON object yields an empty rule.
func decodeRule(raw []byte) AutomationRule {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var rule AutomationRule
	if err := dec.Decode(&rule); err != nil {
		return nil
	}
	return rule
}

func encodeJSONColumns(in Input) ([]byte, []byte, error) {
	rule := in.AutomationRule
	if rule == nil {
		rule = AutomationRule{}
	}
	ruleJSON, err := json.Marshal(rule)
	if err != nil {
		return nil, nil, err
	}
	meta := in.Meta
	if meta == nil {
		meta = map[string]any{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, err
	}
	return ruleJSON, metaJSON, nil
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid || n.Int == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(n.Int, n.Exp)
}
