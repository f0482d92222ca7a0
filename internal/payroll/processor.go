package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rashid2003/jira-payroll-automation/internal/periods"
)

// DefaultBaseSalary applies when an employee has no salary record at all.
var DefaultBaseSalary = decimal.NewFromInt(50000)

// EmployeeProvider lists the employees a run must pay.
type EmployeeProvider interface {
	ActiveEmployees(ctx context.Context) ([]Employee, error)
}

// Tx exposes the operations a run performs inside its transaction.
type Tx interface {
	EmployeeProvider
	LockPeriod(ctx context.Context, id int64) (periods.Period, error)
	BaseSalary(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, bool, error)
	BonusTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error)
	OvertimeTotal(ctx context.Context, periodID, employeeID int64) (decimal.Decimal, error)
	UpsertSalaryRecord(ctx context.Context, rec SalaryRecord) error
	UpsertPayment(ctx context.Context, payment Payment) error
	CompletePeriod(ctx context.Context, id int64) error
	Savepoint(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Store opens run transactions.
type Store interface {
	WithTx(ctx context.Context, fn func(context.Context, Tx) error) error
}

// Config tunes the processor.
type Config struct {
	DefaultBaseSalary decimal.Decimal
	Calculator        Calculator
	Location          *time.Location
}

// Processor runs payroll for a single period.
type Processor struct {
	store      Store
	calculator Calculator
	baseSalary decimal.Decimal
	location   *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// NewProcessor constructs a Processor.
func NewProcessor(store Store, cfg Config, logger *slog.Logger) *Processor {
	calc := cfg.Calculator
	if calc == nil {
		calc = DefaultCalculator()
	}
	base := cfg.DefaultBaseSalary
	if base.IsZero() {
		base = DefaultBaseSalary
	}
	loc := cfg.Location
	if loc == nil {
		loc = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:      store,
		calculator: calc,
		baseSalary: base,
		location:   loc,
		logger:     logger,
		now:        time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (p *Processor) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Run processes every active employee and marks the period completed. The
// period state is checked under a row lock, so a run either commits in full
// or leaves nothing behind. Failures of individual employees are reported in
// the summary and do not stop the run.
func (p *Processor) Run(ctx context.Context, periodID int64) (RunSummary, error) {
	var summary RunSummary
	err := p.store.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		period, err := tx.LockPeriod(ctx, periodID)
		if err != nil {
			if errors.Is(err, periods.ErrNotFound) {
				return &BusinessError{PeriodID: periodID, Err: ErrPeriodNotFound}
			}
			return err
		}
		if err := checkProcessable(period); err != nil {
			return err
		}

		employees, err := tx.ActiveEmployees(ctx)
		if err != nil {
			return err
		}

		processedAt := p.now().In(p.location)
		summary = RunSummary{
			PeriodID:          period.ID,
			PeriodDates:       period.DateRange(),
			TotalGross:        decimal.Zero,
			TotalNet:          decimal.Zero,
			TotalDeductions:   decimal.Zero,
			TotalTaxes:        decimal.Zero,
			TotalInsurance:    decimal.Zero,
			ErrorDetails:      []string{},
			FailedEmployeeIDs: []int64{},
		}
		for _, employee := range employees {
			var rec SalaryRecord
			err := tx.Savepoint(ctx, func(ctx context.Context, sp Tx) error {
				var e error
				rec, e = p.processEmployee(ctx, sp, period, employee, processedAt)
				return e
			})
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				summary.fail(employee.ID, err)
				p.logger.Warn("payroll employee failed",
					slog.Int64("period_id", period.ID),
					slog.Int64("employee_id", employee.ID),
					slog.Any("error", err))
				continue
			}
			summary.add(rec)
		}

		if err := tx.CompletePeriod(ctx, period.ID); err != nil {
			return err
		}
		summary.CompletedAt = p.now().UTC()
		summary.Status = SummaryStatusCompleted
		return nil
	})
	if err != nil {
		if IsBusinessError(err) {
			return RunSummary{}, err
		}
		return RunSummary{}, fmt.Errorf("payroll processing failed: %w", err)
	}

	p.logger.Info("payroll run completed",
		slog.Int64("period_id", summary.PeriodID),
		slog.Int("processed_employees", summary.ProcessedEmployees),
		slog.Int("processing_errors", summary.ProcessingErrors),
		slog.String("total_net", summary.TotalNet.StringFixed(2)))
	return summary, nil
}

func (p *Processor) processEmployee(ctx context.Context, tx Tx, period periods.Period, employee Employee, processedAt time.Time) (SalaryRecord, error) {
	comp, err := p.collate(ctx, tx, period.ID, employee.ID)
	if err != nil {
		return SalaryRecord{}, err
	}
	gross := comp.Gross()
	parts := p.calculator.Calculate(gross, employee)
	rec := SalaryRecord{
		PeriodID:    period.ID,
		EmployeeID:  employee.ID,
		BaseSalary:  comp.BaseSalary,
		Bonuses:     comp.Bonuses,
		Overtime:    comp.Overtime,
		Gross:       gross,
		Deductions:  parts.Deductions,
		Taxes:       parts.Taxes,
		Insurance:   parts.Insurance,
		Net:         parts.Net(gross),
		ProcessedAt: processedAt,
	}
	if err := tx.UpsertSalaryRecord(ctx, rec); err != nil {
		return SalaryRecord{}, err
	}
	payment := Payment{
		PeriodID:    period.ID,
		EmployeeID:  employee.ID,
		Amount:      rec.Net,
		PaymentDate: periods.DateOf(processedAt),
		Status:      PaymentStatusPending,
		Method:      PaymentMethodBankTransfer,
		Reference:   PaymentReference(period.ID, employee.ID, processedAt),
	}
	if err := tx.UpsertPayment(ctx, payment); err != nil {
		return SalaryRecord{}, err
	}
	return rec, nil
}

func (p *Processor) collate(ctx context.Context, tx Tx, periodID, employeeID int64) (Compensation, error) {
	base, ok, err := tx.BaseSalary(ctx, periodID, employeeID)
	if err != nil {
		return Compensation{}, err
	}
	if !ok {
		base = p.baseSalary
	}
	bonuses, err := tx.BonusTotal(ctx, periodID, employeeID)
	if err != nil {
		return Compensation{}, err
	}
	overtime, err := tx.OvertimeTotal(ctx, periodID, employeeID)
	if err != nil {
		return Compensation{}, err
	}
	return Compensation{BaseSalary: base, Bonuses: bonuses, Overtime: overtime}, nil
}

func checkProcessable(period periods.Period) error {
	switch period.Status {
	case periods.StatusActive:
		return nil
	case periods.StatusCompleted:
		return &BusinessError{PeriodID: period.ID, Status: string(period.Status), Err: ErrPeriodCompleted}
	case periods.StatusCancelled:
		return &BusinessError{PeriodID: period.ID, Status: string(period.Status), Err: ErrPeriodCancelled}
	}
	return &BusinessError{PeriodID: period.ID, Status: string(period.Status), Err: ErrPeriodNotProcessable}
}
