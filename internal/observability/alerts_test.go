package observability

import (
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
)

type alertRule struct {
	Alert       string            `yaml:"alert"`
	Expr        string            `yaml:"expr"`
	For         string            `yaml:"for"`
	Labels      map[string]string `yaml:"labels"`
	Annotations map[string]string `yaml:"annotations"`
}

type alertGroup struct {
	Name  string      `yaml:"name"`
	Rules []alertRule `yaml:"rules"`
}

type alertSpec struct {
	Groups []alertGroup `yaml:"groups"`
}

func loadAlertRules(t *testing.T) alertSpec {
	t.Helper()
	path := filepath.Join("..", "..", "deploy", "prometheus", "alerts", "payroll.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read alert file: %v", err)
	}

	var rules alertSpec
	if err := yaml.Unmarshal(data, &rules); err != nil {
		t.Fatalf("failed to unmarshal alert file: %v", err)
	}
	return rules
}

func TestPayrollAlertRules(t *testing.T) {
	rules := loadAlertRules(t)

	if len(rules.Groups) == 0 {
		t.Fatal("expected at least one alert group")
	}

	var payrollGroup *alertGroup
	for i := range rules.Groups {
		if rules.Groups[i].Name == "payroll" {
			payrollGroup = &rules.Groups[i]
			break
		}
	}
	if payrollGroup == nil {
		t.Fatal("payroll alert group missing")
	}

	expected := map[string]struct {
		severity string
		runbook  string
	}{
		"SweepFailures":  {severity: "critical", runbook: "docs/runbook-payroll.md#sweep-failures"},
		"JobFailureRate": {severity: "warning", runbook: "docs/runbook-payroll.md#job-failure-rate"},
		"EmployeeErrors": {severity: "warning", runbook: "docs/runbook-payroll.md#employee-errors"},
	}

	if len(payrollGroup.Rules) != len(expected) {
		t.Fatalf("expected %d rules, got %d", len(expected), len(payrollGroup.Rules))
	}

	for _, rule := range payrollGroup.Rules {
		want, ok := expected[rule.Alert]
		if !ok {
			t.Fatalf("unexpected rule %q", rule.Alert)
		}
		if rule.Labels["severity"] != want.severity {
			t.Fatalf("rule %s severity mismatch: %s", rule.Alert, rule.Labels["severity"])
		}
		if rule.Annotations["runbook"] != want.runbook {
			t.Fatalf("rule %s runbook mismatch: %s", rule.Alert, rule.Annotations["runbook"])
		}
		if rule.Annotations["summary"] == "" || rule.Annotations["description"] == "" {
			t.Fatalf("rule %s must include summary and description annotations", rule.Alert)
		}
		if rule.Expr == "" {
			t.Fatalf("rule %s must define an expression", rule.Alert)
		}
		if rule.For == "" {
			t.Fatalf("rule %s must define a hold duration", rule.Alert)
		}
	}
}

var metricName = regexp.MustCompile(`payroll_[a-z_]+`)

func TestAlertRulesReferenceRegisteredMetrics(t *testing.T) {
	metrics := NewMetrics()
	jobs := jobmetrics.NewMetrics(metrics.Registerer())
	_ = jobs.Track("payroll:period:process").End(errors.New("boom"))
	jobs.AddSweepOutcome(jobmetrics.OutcomeFailed, 1)
	jobs.AddEmployeeErrors(1)

	families, err := metrics.registry.Gather()
	require.NoError(t, err)
	registered := make(map[string]bool, len(families))
	for _, family := range families {
		registered[family.GetName()] = true
	}

	for _, group := range loadAlertRules(t).Groups {
		for _, rule := range group.Rules {
			names := metricName.FindAllString(rule.Expr, -1)
			require.NotEmpty(t, names, rule.Alert)
			for _, name := range names {
				require.True(t, registered[name], "rule %s references unknown metric %s", rule.Alert, name)
			}
		}
	}
}
