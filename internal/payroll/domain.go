// Package payroll computes and records the financial outcome of a payroll
// period for every active employee.
package payroll

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Payment defaults recorded for every processed employee.
const (
	PaymentStatusPending      = "pending"
	PaymentMethodBankTransfer = "bank_transfer"

	SummaryStatusCompleted = "completed"
)

var (
	// ErrPeriodNotFound indicates the period does not exist.
	ErrPeriodNotFound = errors.New("payroll: period not found")
	// ErrPeriodCompleted indicates the period was already processed.
	ErrPeriodCompleted = errors.New("payroll: period already completed")
	// ErrPeriodCancelled indicates the period was cancelled.
	ErrPeriodCancelled = errors.New("payroll: period cancelled")
	// ErrPeriodNotProcessable covers any other non-active status.
	ErrPeriodNotProcessable = errors.New("payroll: period not processable")
)

// BusinessError is a non-retryable failure caused by the state of the period.
type BusinessError struct {
	PeriodID int64
	Status   string
	Err      error
}

func (e *BusinessError) Error() string {
	switch {
	case errors.Is(e.Err, ErrPeriodNotFound):
		return fmt.Sprintf("payroll period %d not found", e.PeriodID)
	case errors.Is(e.Err, ErrPeriodCompleted):
		return fmt.Sprintf("payroll period %d is already completed", e.PeriodID)
	case errors.Is(e.Err, ErrPeriodCancelled):
		return fmt.Sprintf("payroll period %d is cancelled", e.PeriodID)
	case errors.Is(e.Err, ErrPeriodNotProcessable):
		return fmt.Sprintf("payroll period %d has status '%s', cannot process", e.PeriodID, e.Status)
	}
	return fmt.Sprintf("payroll period %d: %v", e.PeriodID, e.Err)
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

// IsBusinessError reports whether err must not be retried.
func IsBusinessError(err error) bool {
	var be *BusinessError
	return errors.As(err, &be)
}

// Employee is a payroll recipient.
type Employee struct {
	ID           int64
	EmployeeCode string
	FirstName    string
	LastName     string
	Email        string
	Department   string
}

// Compensation holds the collated earnings of an employee for a period.
type Compensation struct {
	BaseSalary decimal.Decimal
	Bonuses    decimal.Decimal
	Overtime   decimal.Decimal
}

// Gross sums base salary, bonuses and overtime.
func (c Compensation) Gross() decimal.Decimal {
	return c.BaseSalary.Add(c.Bonuses).Add(c.Overtime)
}

// Breakdown is the statutory split of a gross amount.
type Breakdown struct {
	Deductions decimal.Decimal
	Taxes      decimal.Decimal
	Insurance  decimal.Decimal
}

// Net returns gross minus every component. The result is not clamped.
func (b Breakdown) Net(gross decimal.Decimal) decimal.Decimal {
	return gross.Sub(b.Deductions).Sub(b.Taxes).Sub(b.Insurance)
}

// SalaryRecord is the per-employee outcome persisted for a period.
type SalaryRecord struct {
	PeriodID    int64
	EmployeeID  int64
	BaseSalary  decimal.Decimal
	Bonuses     decimal.Decimal
	Overtime    decimal.Decimal
	Gross       decimal.Decimal
	Deductions  decimal.Decimal
	Taxes       decimal.Decimal
	Insurance   decimal.Decimal
	Net         decimal.Decimal
	ProcessedAt time.Time
}

// Payment is the disbursement created for a salary record.
type Payment struct {
	PeriodID    int64
	EmployeeID  int64
	Amount      decimal.Decimal
	PaymentDate time.Time
	Status      string
	Method      string
	Reference   string
}

// PaymentReference formats the payment reference for an employee run.
func PaymentReference(periodID, employeeID int64, day time.Time) string {
	return fmt.Sprintf("PAY-%d-%d-%s", periodID, employeeID, day.Format("20060102"))
}

// RunSummary describes a completed payroll run.
type RunSummary struct {
	PeriodID           int64           `json:"period_id"`
	PeriodDates        string          `json:"period_dates"`
	ProcessedEmployees int             `json:"processed_employees"`
	TotalGross         decimal.Decimal `json:"total_gross"`
	TotalNet           decimal.Decimal `json:"total_net"`
	TotalDeductions    decimal.Decimal `json:"total_deductions"`
	TotalTaxes         decimal.Decimal `json:"total_taxes"`
	TotalInsurance     decimal.Decimal `json:"total_insurance"`
	ProcessingErrors   int             `json:"processing_errors"`
	ErrorDetails       []string        `json:"error_details"`
	FailedEmployeeIDs  []int64         `json:"failed_employee_ids"`
	CompletedAt        time.Time       `json:"completed_at"`
	Status             string          `json:"status"`
}

func (s *RunSummary) add(rec SalaryRecord) {
	s.ProcessedEmployees++
	s.TotalGross = s.TotalGross.Add(rec.Gross)
	s.TotalNet = s.TotalNet.Add(rec.Net)
	s.TotalDeductions = s.TotalDeductions.Add(rec.Deductions)
	s.TotalTaxes = s.TotalTaxes.Add(rec.Taxes)
	s.TotalInsurance = s.TotalInsurance.Add(rec.Insurance)
}

func (s *RunSummary) fail(employeeID int64, err error) {
	s.ProcessingErrors++
	s.ErrorDetails = append(s.ErrorDetails, fmt.Sprintf("Error processing employee %d: %v", employeeID, err))
	s.FailedEmployeeIDs = append(s.FailedEmployeeIDs, employeeID)
}
