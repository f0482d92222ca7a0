package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// SweepRunner executes one automation sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context) (automation.SweepReport, error)
}

// SweepJob runs the automation sweep on the worker.
type SweepJob struct {
	Scheduler SweepRunner
	Audit     shared.AuditRecorder
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewSweepJob constructs the job handler.
func NewSweepJob(scheduler SweepRunner, audit shared.AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *SweepJob {
	return &SweepJob{
		Scheduler: scheduler,
		Audit:     audit,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the sweep. Only a failure to list candidates is returned so
// Asynq retries it; per-period failures are reported and counted.
func (j *SweepJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Scheduler == nil {
		return errors.New("automation sweep: dependencies not configured")
	}
	var payload SweepPayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.Trigger == "" {
		payload.Trigger = "cron"
	}

	tracker := j.metrics().Track(TaskSweep)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := j.now()
	report, err := j.Scheduler.RunSweep(ctx)
	if err != nil {
		resultErr = err
		j.log().Error("automation sweep", slog.String("trigger", payload.Trigger), slog.Any("error", err))
		return resultErr
	}

	m := j.metrics()
	m.AddSweepOutcome(jobmetrics.OutcomeProcessed, report.ProcessedCount)
	m.AddSweepOutcome(jobmetrics.OutcomeSkipped, report.SkippedCount)
	m.AddSweepOutcome(jobmetrics.OutcomeFailed, report.FailedCount)
	for _, item := range report.Processed {
		if item.Result.Result != nil {
			m.AddEmployeeErrors(item.Result.Result.ProcessingErrors)
		}
	}

	j.record(ctx, report, payload.Trigger)
	j.log().Info("automation sweep completed",
		slog.String("sweep_id", report.RunID),
		slog.String("trigger", payload.Trigger),
		slog.Int("processed", report.ProcessedCount),
		slog.Int("skipped", report.SkippedCount),
		slog.Int("failed", report.FailedCount),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *SweepJob) record(ctx context.Context, report automation.SweepReport, trigger string) {
	if j.Audit == nil {
		return
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		Action:   shared.AuditActionSweep,
		Entity:   "automation_sweep",
		EntityID: report.RunID,
		Meta: map[string]any{
			"trigger":   trigger,
			"processed": report.ProcessedCount,
			"skipped":   report.SkippedCount,
			"failed":    report.FailedCount,
		},
		At: report.Timestamp,
	})
	if err != nil {
		j.log().Warn("record sweep audit", slog.Any("error", err))
	}
}

func (j *SweepJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *SweepJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskSweep))
	}
	return slog.Default().With(slog.String("job", TaskSweep))
}

func (j *SweepJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *SweepJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
