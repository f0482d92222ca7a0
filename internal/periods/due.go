package periods

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Automation rule keys, listed in evaluation priority.
const (
	RuleRunOnDate     = "run_on_date"
	RuleDaysBeforeEnd = "days_before_end"
	RuleCron          = "cron"
)

// AutomationRule is the raw rule object stored with a period. It is
// interpreted on read so that malformed content never blocks a sweep.
type AutomationRule map[string]any

// IsDue reports whether the period should be processed on today. The first
// rule key that parses decides; malformed values fall through to the next key.
// A cron rule is always due because cadence belongs to the external trigger.
func (p Period) IsDue(today time.Time) bool {
	if !p.AutomationEnabled || p.Status != StatusActive || len(p.AutomationRule) == 0 {
		return false
	}
	day := DateOf(today)
	if runOn, ok := p.AutomationRule.RunOnDate(); ok {
		return day.Equal(runOn)
	}
	if days, ok := p.AutomationRule.DaysBeforeEnd(); ok {
		return day.Equal(DateOf(p.EndDate).AddDate(0, 0, -days))
	}
	_, hasCron := p.AutomationRule[RuleCron]
	return hasCron
}

// RunOnDate returns the configured run date when it parses.
func (r AutomationRule) RunOnDate() (time.Time, bool) {
	raw, ok := r[RuleRunOnDate].(string)
	if !ok {
		return time.Time{}, false
	}
	d, err := ParseDate(raw)
	if err != nil {
		return time.Time{}, false
	}
	return d, true
}

// DaysBeforeEnd returns the configured offset when it is an integer value.
// Negative offsets are returned as-is.
func (r AutomationRule) DaysBeforeEnd() (int, bool) {
	switch v := r[RuleDaysBeforeEnd].(type) {
	case int:
		return v, true
	case int64:
		return intFromFloat(float64(v))
	case float64:
		return intFromFloat(v)
	case json.Number:
		if f, err := v.Float64(); err == nil {
			return intFromFloat(f)
		}
		return 0, false
	case string:
		return intString(v)
	}
	return 0, false
}

// Cron returns the cron expression when present.
func (r AutomationRule) Cron() (string, bool) {
	raw, ok := r[RuleCron]
	if !ok || raw == nil {
		return "", false
	}
	expr, ok := raw.(string)
	if !ok {
		return "", false
	}
	return expr, true
}

// HasKnownKey reports whether at least one recognised rule key is present.
func (r AutomationRule) HasKnownKey() bool {
	for _, key := range []string{RuleRunOnDate, RuleDaysBeforeEnd, RuleCron} {
		if _, ok := r[key]; ok {
			return true
		}
	}
	return false
}

func intString(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, false
	}
	return n, true
}

func intFromFloat(v float64) (int, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
		return 0, false
	}
	if v > math.MaxInt32 || v < math.MinInt32 {
		return 0, false
	}
	return int(v), true
}
