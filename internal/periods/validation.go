package periods

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

var (
	validate   = validator.New()
	cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// Normalize applies defaults to optional fields.
func (in *Input) Normalize() {
	if in.Type == "" {
		in.Type = TypeMonthly
	}
	in.StartDate = DateOf(in.StartDate)
	in.EndDate = DateOf(in.EndDate)
	in.Description = strings.TrimSpace(in.Description)
}

// Validate checks field level constraints and the automation rule shape.
func (in Input) Validate() error {
	if err := validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return invalid(fieldName(fe.Field()), "failed %s validation", fe.Tag())
		}
		return &ValidationError{Message: err.Error()}
	}
	if DateOf(in.EndDate).Before(DateOf(in.StartDate)) {
		return invalid("end_date", "end date must be after or equal to start date")
	}
	if in.AutomationRule != nil {
		if err := ValidateRule(in.AutomationRule); err != nil {
			return err
		}
	}
	return nil
}

// ValidateRule rejects automation rules that can never be interpreted. A
// negative days_before_end is accepted; it simply never matches.
func ValidateRule(rule AutomationRule) error {
	if len(rule) == 0 {
		return nil
	}
	if !rule.HasKnownKey() {
		return invalid("automation_rule", "automation rule must contain at least one of: %s, %s, %s", RuleCron, RuleDaysBeforeEnd, RuleRunOnDate)
	}
	if _, ok := rule[RuleRunOnDate]; ok {
		if _, ok := rule.RunOnDate(); !ok {
			return invalid("automation_rule", "run_on_date must be in YYYY-MM-DD format")
		}
	}
	if _, ok := rule[RuleDaysBeforeEnd]; ok {
		if _, ok := rule.DaysBeforeEnd(); !ok {
			return invalid("automation_rule", "days_before_end must be an integer")
		}
	}
	if _, ok := rule[RuleCron]; ok {
		expr, ok := rule.Cron()
		if !ok || strings.TrimSpace(expr) == "" {
			return invalid("automation_rule", "cron must be a non-empty expression")
		}
		if _, err := cronParser.Parse(expr); err != nil {
			return invalid("automation_rule", "cron expression is invalid: %v", err)
		}
	}
	return nil
}

func conflictError(existing Period, sameDates bool) error {
	if sameDates {
		return &ValidationError{
			Field:   "start_date",
			Message: "a period with these exact dates already exists for this period type",
			Err:     ErrDuplicate,
		}
	}
	return &ValidationError{
		Field:   "start_date",
		Message: fmt.Sprintf("period overlaps with existing %s period from %s", existing.Type, existing.DateRange()),
		Err:     ErrOverlap,
	}
}

func fieldName(field string) string {
	switch field {
	case "StartDate":
		return "start_date"
	case "EndDate":
		return "end_date"
	case "Type":
		return "period_type"
	case "Description":
		return "description"
	}
	return strings.ToLower(field)
}
