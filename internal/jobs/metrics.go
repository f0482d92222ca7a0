package jobmetrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for background jobs.
type Metrics struct {
	runs           *prometheus.CounterVec
	failures       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	sweepPeriods   *prometheus.CounterVec
	employeeErrors prometheus.Counter
}

// Sweep outcome labels.
const (
	OutcomeProcessed = "processed"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
)

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// NewMetrics registers the job metrics against the provided registerer. When the
// registerer is nil the default Prometheus registerer is used.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		defaultOnce.Do(func() {
			defaultMetrics = buildMetrics(prometheus.DefaultRegisterer)
		})
		return defaultMetrics
	}
	return buildMetrics(registerer)
}

// Tracker provides lifecycle instrumentation helpers for a single job run.
type Tracker struct {
	metrics *Metrics
	job     string
	start   time.Time
}

// Track spawns a tracker for the given job name.
func (m *Metrics) Track(job string) *Tracker {
	if m == nil {
		return &Tracker{job: job, start: time.Now()}
	}
	return &Tracker{metrics: m, job: job, start: time.Now()}
}

// End finalises the tracker, recording duration, success/failure counts and
// returning the provided error untouched.
func (t *Tracker) End(err error) error {
	if t == nil || t.metrics == nil || t.job == "" {
		return err
	}
	status := "success"
	if err != nil {
		status = "failure"
		t.metrics.failures.WithLabelValues(t.job).Inc()
	}
	t.metrics.runs.WithLabelValues(t.job, status).Inc()
	t.metrics.duration.WithLabelValues(t.job).Observe(time.Since(t.start).Seconds())
	return err
}

// AddSweepOutcome counts periods handled by a sweep under the given outcome.
func (m *Metrics) AddSweepOutcome(outcome string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepPeriods.WithLabelValues(outcome).Add(float64(count))
}

// AddEmployeeErrors counts employees that failed inside an otherwise
// successful period run.
func (m *Metrics) AddEmployeeErrors(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.employeeErrors.Add(float64(count))
}

func buildMetrics(registerer prometheus.Registerer) *Metrics {
	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payroll_jobs_total",
		Help: "Total job executions partitioned by job name and status.",
	}, []string{"job", "status"})
	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payroll_jobs_failures_total",
		Help: "Total failures observed for background jobs.",
	}, []string{"job"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payroll_job_duration_seconds",
		Help:    "Duration in seconds of background job executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"job"})
	sweepPeriods := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payroll_sweep_periods_total",
		Help: "Periods handled by automation sweeps grouped by outcome.",
	}, []string{"outcome"})
	employeeErrors := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payroll_employee_errors_total",
		Help: "Employees skipped because their payroll calculation failed.",
	})
	registerer.MustRegister(runs, failures, duration, sweepPeriods, employeeErrors)
	return &Metrics{
		runs:           runs,
		failures:       failures,
		duration:       duration,
		sweepPeriods:   sweepPeriods,
		employeeErrors: employeeErrors,
	}
}
