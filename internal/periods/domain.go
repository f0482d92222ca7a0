// Package periods manages payroll periods and decides when a period is due
// for automated processing.
package periods

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// PeriodType scopes the overlap and uniqueness checks.
type PeriodType string

const (
	TypeMonthly  PeriodType = "monthly"
	TypeBiWeekly PeriodType = "bi_weekly"
	TypeWeekly   PeriodType = "weekly"
	TypeCustom   PeriodType = "custom"
)

// Status captures the lifecycle of a payroll period.
type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

var (
	// ErrNotFound indicates the period does not exist.
	ErrNotFound = errors.New("periods: not found")
	// ErrValidation marks input rejected at write time.
	ErrValidation = errors.New("periods: validation failed")
	// ErrOverlap indicates the range intersects another period of the same type.
	ErrOverlap = errors.New("periods: overlapping period")
	// ErrDuplicate indicates another period of the same type has identical dates.
	ErrDuplicate = errors.New("periods: duplicate period")
	// ErrCompletedDelete blocks deletion of processed periods.
	ErrCompletedDelete = errors.New("periods: cannot delete completed payroll periods")
	// ErrInvalidTransition indicates a status change that is not allowed.
	ErrInvalidTransition = errors.New("periods: status transition not allowed")
)

// ValidationError describes a single rejected field.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap exposes ErrValidation plus the specific cause, if any.
func (e *ValidationError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrValidation, e.Err}
	}
	return []error{ErrValidation}
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Period is a time-bounded payroll cycle.
type Period struct {
	ID                int64
	StartDate         time.Time
	EndDate           time.Time
	Type              PeriodType
	Status            Status
	AutomationEnabled bool
	AutomationRule    AutomationRule
	Description       string
	Meta              map[string]any
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsActive reports whether the period can still be processed.
func (p Period) IsActive() bool {
	return p.Status == StatusActive
}

// IsCurrent reports whether today falls within the inclusive date range.
func (p Period) IsCurrent(today time.Time) bool {
	d := DateOf(today)
	return !d.Before(DateOf(p.StartDate)) && !d.After(DateOf(p.EndDate))
}

// DurationDays returns the inclusive number of days covered by the period.
func (p Period) DurationDays() int {
	return daysBetween(DateOf(p.StartDate), DateOf(p.EndDate)) + 1
}

// Overlaps reports whether the inclusive ranges intersect.
func (p Period) Overlaps(start, end time.Time) bool {
	return !DateOf(start).After(DateOf(p.EndDate)) && !DateOf(end).Before(DateOf(p.StartDate))
}

// DateRange renders the period dates as "start to end".
func (p Period) DateRange() string {
	return p.StartDate.Format(DateLayout) + " to " + p.EndDate.Format(DateLayout)
}

// Input carries the writable fields of a period.
type Input struct {
	StartDate         time.Time      `validate:"required"`
	EndDate           time.Time      `validate:"required"`
	Type              PeriodType     `validate:"omitempty,oneof=monthly bi_weekly weekly custom"`
	AutomationEnabled bool
	AutomationRule    AutomationRule
	Description       string         `validate:"max=2000"`
	Meta              map[string]any
}

// Filter narrows period listings.
type Filter struct {
	Status     Status
	Type       PeriodType
	StartFrom  *time.Time
	EndUntil   *time.Time
	ActiveOnly bool
}

// Matches reports whether the period satisfies every populated criterion.
func (f Filter) Matches(p Period) bool {
	if f.Status != "" && p.Status != f.Status {
		return false
	}
	if f.Type != "" && p.Type != f.Type {
		return false
	}
	if f.StartFrom != nil && DateOf(p.StartDate).Before(DateOf(*f.StartFrom)) {
		return false
	}
	if f.EndUntil != nil && DateOf(p.EndDate).After(DateOf(*f.EndUntil)) {
		return false
	}
	if f.ActiveOnly && !p.IsActive() {
		return false
	}
	return true
}

// Summary aggregates the payroll outcome recorded for a period.
type Summary struct {
	Period        Period
	EmployeeCount int
	PaymentCount  int
	TotalGross    decimal.Decimal
	TotalDeducted decimal.Decimal
	TotalNet      decimal.Decimal
	AverageGross  decimal.Decimal
	ProcessedAt   *time.Time
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
}

// ParseType maps user supplied labels onto a PeriodType.
func ParseType(raw string) (PeriodType, bool) {
	switch normalizeLabel(raw) {
	case "monthly":
		return TypeMonthly, true
	case "bi_weekly", "bi-weekly", "biweekly", "bi weekly":
		return TypeBiWeekly, true
	case "weekly":
		return TypeWeekly, true
	case "custom":
		return TypeCustom, true
	}
	return "", false
}

// ParseStatus maps user supplied labels onto a Status.
func ParseStatus(raw string) (Status, bool) {
	switch normalizeLabel(raw) {
	case "active":
		return StatusActive, true
	case "completed":
		return StatusCompleted, true
	case "cancelled", "canceled":
		return StatusCancelled, true
	}
	return "", false
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}

var labelFolder = cases.Fold()

func normalizeLabel(raw string) string {
	return labelFolder.String(strings.TrimSpace(raw))
}
