package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	require.NoError(t, m.Track("payroll:automation:sweep").End(nil))
	boom := errors.New("boom")
	require.ErrorIs(t, m.Track("payroll:automation:sweep").End(boom), boom)

	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("payroll:automation:sweep", "success")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("payroll:automation:sweep", "failure")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("payroll:automation:sweep")))
}

func TestSweepCounters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSweepOutcome(OutcomeProcessed, 3)
	m.AddSweepOutcome(OutcomeFailed, 0)
	m.AddEmployeeErrors(2)

	require.Equal(t, 3.0, testutil.ToFloat64(m.sweepPeriods.WithLabelValues(OutcomeProcessed)))
	require.Equal(t, 0.0, testutil.ToFloat64(m.sweepPeriods.WithLabelValues(OutcomeFailed)))
	require.Equal(t, 2.0, testutil.ToFloat64(m.employeeErrors))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.AddSweepOutcome(OutcomeSkipped, 1)
	m.AddEmployeeErrors(1)
	require.NoError(t, m.Track("job").End(nil))
}
