package periodshttp

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rashid2003/jira-payroll-automation/internal/periods"
)

type periodRequest struct {
	StartDate         string         `json:"start_date"`
	EndDate           string         `json:"end_date"`
	PeriodType        string         `json:"period_type"`
	AutomationEnabled bool           `json:"automation_enabled"`
	AutomationRule    map[string]any `json:"automation_rule"`
	Description       string         `json:"description"`
	Meta              map[string]any `json:"meta"`
}

func (req periodRequest) toInput() (periods.Input, error) {
	start, err := parseRequiredDate("start_date", req.StartDate)
	if err != nil {
		return periods.Input{}, err
	}
	end, err := parseRequiredDate("end_date", req.EndDate)
	if err != nil {
		return periods.Input{}, err
	}
	in := periods.Input{
		StartDate:         start,
		EndDate:           end,
		AutomationEnabled: req.AutomationEnabled,
		AutomationRule:    periods.AutomationRule(req.AutomationRule),
		Description:       req.Description,
		Meta:              req.Meta,
	}
	if strings.TrimSpace(req.PeriodType) != "" {
		t, ok := periods.ParseType(req.PeriodType)
		if !ok {
			return periods.Input{}, &periods.ValidationError{Field: "period_type", Message: "unknown period type " + strconv.Quote(req.PeriodType)}
		}
		in.Type = t
	}
	return in, nil
}

func parseRequiredDate(field, raw string) (time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return time.Time{}, &periods.ValidationError{Field: field, Message: "this field is required"}
	}
	d, err := periods.ParseDate(raw)
	if err != nil {
		return time.Time{}, &periods.ValidationError{Field: field, Message: "date must use YYYY-MM-DD"}
	}
	return d, nil
}

type periodResponse struct {
	ID                int64          `json:"id"`
	StartDate         string         `json:"start_date"`
	EndDate           string         `json:"end_date"`
	PeriodType        string         `json:"period_type"`
	Status            string         `json:"status"`
	AutomationEnabled bool           `json:"automation_enabled"`
	AutomationRule    map[string]any `json:"automation_rule"`
	Description       string         `json:"description"`
	Meta              map[string]any `json:"meta,omitempty"`
	DateRange         string         `json:"date_range"`
	DurationDays      int            `json:"duration_days"`
	IsActive          bool           `json:"is_active"`
	IsCurrent         bool           `json:"is_current"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

func toResponse(p periods.Period, today time.Time) periodResponse {
	rule := map[string]any(p.AutomationRule)
	if rule == nil {
		rule = map[string]any{}
	}
	return periodResponse{
		ID:                p.ID,
		StartDate:         p.StartDate.Format(periods.DateLayout),
		EndDate:           p.EndDate.Format(periods.DateLayout),
		PeriodType:        string(p.Type),
		Status:            string(p.Status),
		AutomationEnabled: p.AutomationEnabled,
		AutomationRule:    rule,
		Description:       p.Description,
		Meta:              p.Meta,
		DateRange:         p.DateRange(),
		DurationDays:      p.DurationDays(),
		IsActive:          p.IsActive(),
		IsCurrent:         p.IsCurrent(today),
		CreatedAt:         p.CreatedAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

type summaryResponse struct {
	PeriodID        int64           `json:"period_id"`
	PeriodDates     string          `json:"period_dates"`
	Status          string          `json:"status"`
	EmployeeCount   int             `json:"employee_count"`
	PaymentCount    int             `json:"payment_count"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TotalNet        decimal.Decimal `json:"total_net"`
	AverageGross    decimal.Decimal `json:"average_gross"`
	ProcessedAt     *time.Time      `json:"processed_at"`
}

func toSummaryResponse(s periods.Summary) summaryResponse {
	return summaryResponse{
		PeriodID:        s.Period.ID,
		PeriodDates:     s.Period.DateRange(),
		Status:          string(s.Period.Status),
		EmployeeCount:   s.EmployeeCount,
		PaymentCount:    s.PaymentCount,
		TotalGross:      s.TotalGross,
		TotalDeductions: s.TotalDeducted,
		TotalNet:        s.TotalNet,
		AverageGross:    s.AverageGross,
		ProcessedAt:     s.ProcessedAt,
	}
}

func parseFilter(q url.Values) (periods.Filter, error) {
	var f periods.Filter
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		st, ok := periods.ParseStatus(raw)
		if !ok {
			return f, &periods.ValidationError{Field: "status", Message: "unknown status " + strconv.Quote(raw)}
		}
		f.Status = st
	}
	if raw := strings.TrimSpace(q.Get("period_type")); raw != "" {
		t, ok := periods.ParseType(raw)
		if !ok {
			return f, &periods.ValidationError{Field: "period_type", Message: "unknown period type " + strconv.Quote(raw)}
		}
		f.Type = t
	}
	if raw := strings.TrimSpace(q.Get("start_date")); raw != "" {
		d, err := periods.ParseDate(raw)
		if err != nil {
			return f, &periods.ValidationError{Field: "start_date", Message: "date must use YYYY-MM-DD"}
		}
		f.StartFrom = &d
	}
	if raw := strings.TrimSpace(q.Get("end_date")); raw != "" {
		d, err := periods.ParseDate(raw)
		if err != nil {
			return f, &periods.ValidationError{Field: "end_date", Message: "date must use YYYY-MM-DD"}
		}
		f.EndUntil = &d
	}
	if raw := strings.TrimSpace(q.Get("active_only")); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return f, &periods.ValidationError{Field: "active_only", Message: "must be a boolean"}
		}
		f.ActiveOnly = v
	}
	return f, nil
}
