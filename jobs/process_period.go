package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
	"github.com/rashid2003/jira-payroll-automation/internal/lock"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// ErrPeriodBusy is returned when another process holds the period's
// processing lock. The task is retried so the run is not lost.
var ErrPeriodBusy = errors.New("process period: period is being processed elsewhere")

// PeriodProcessor performs a single attempt of a period run.
type PeriodProcessor interface {
	ProcessOne(ctx context.Context, periodID int64) (automation.RunResult, error)
}

// ProcessPeriodJob runs payroll for one period under its processing lock.
// Retries of transient failures are left to Asynq.
type ProcessPeriodJob struct {
	Runner  PeriodProcessor
	Locker  lock.Locker
	Audit   shared.AuditRecorder
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	LockTTL time.Duration
}

// NewProcessPeriodJob constructs the job handler.
func NewProcessPeriodJob(runner PeriodProcessor, locker lock.Locker, audit shared.AuditRecorder, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProcessPeriodJob {
	return &ProcessPeriodJob{
		Runner:  runner,
		Locker:  locker,
		Audit:   audit,
		Logger:  logger,
		Metrics: metrics,
		LockTTL: lock.ProcessingTTL,
	}
}

// Handle executes one attempt. Business failures are returned wrapped in
// asynq.SkipRetry so they are archived instead of retried.
func (j *ProcessPeriodJob) Handle(ctx context.Context, task *asynq.Task) error {
	if j == nil || j.Runner == nil || j.Locker == nil {
		return errors.New("process period: dependencies not configured")
	}
	payload, err := decodeProcessPeriod(task)
	if err != nil {
		j.log().Warn("discard task", slog.Any("error", err))
		return asynq.SkipRetry
	}
	log := j.log().With(slog.Int64("period_id", payload.PeriodID))

	tracker := j.metrics().Track(TaskProcessPeriod)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	key := shared.ProcessingLockKey(payload.PeriodID)
	acquired, err := j.Locker.TryAcquire(ctx, key, j.lockTTL())
	if err != nil {
		resultErr = err
		log.Error("acquire processing lock", slog.Any("error", err))
		return resultErr
	}
	if !acquired {
		log.Info("period already processing, retrying later")
		return fmt.Errorf("%w: %s", ErrPeriodBusy, key)
	}
	defer func() {
		if err := j.Locker.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("release processing lock", slog.Any("error", err))
		}
	}()

	res, err := j.Runner.ProcessOne(ctx, payload.PeriodID)
	if err != nil {
		resultErr = err
		if payroll.IsBusinessError(err) {
			log.Warn("payroll run rejected", slog.Any("error", err))
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		retried, _ := asynq.GetRetryCount(ctx)
		log.Error("payroll run failed", slog.Int("retry", retried), slog.Any("error", err))
		return resultErr
	}
	if res.Result != nil {
		j.metrics().AddEmployeeErrors(res.Result.ProcessingErrors)
	}
	j.record(ctx, res)
	log.Info("payroll run finished", slog.String("status", string(res.Status)))
	return resultErr
}

func (j *ProcessPeriodJob) record(ctx context.Context, res automation.RunResult) {
	if j.Audit == nil || res.Status != automation.RunCompleted {
		return
	}
	meta := map[string]any{"source": "worker"}
	if res.Result != nil {
		meta["processed_employees"] = res.Result.ProcessedEmployees
		meta["processing_errors"] = res.Result.ProcessingErrors
		meta["total_net"] = res.Result.TotalNet.StringFixed(2)
	}
	err := j.Audit.Record(ctx, shared.AuditLog{
		Action:   shared.AuditActionPayrollRun,
		Entity:   shared.AuditEntityPeriod,
		EntityID: strconv.FormatInt(res.PeriodID, 10),
		Meta:     meta,
	})
	if err != nil {
		j.log().Warn("record payroll audit", slog.Any("error", err))
	}
}

func (j *ProcessPeriodJob) lockTTL() time.Duration {
	if j.LockTTL > 0 {
		return j.LockTTL
	}
	return lock.ProcessingTTL
}

func (j *ProcessPeriodJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *ProcessPeriodJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskProcessPeriod))
	}
	return slog.Default().With(slog.String("job", TaskProcessPeriod))
}
