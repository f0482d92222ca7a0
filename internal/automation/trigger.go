package automation

import (
	"context"
	"errors"
	"log/slog"

	"github.com/rashid2003/jira-payroll-automation/internal/lock"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// Enqueuer hands work to the background worker pool.
type Enqueuer interface {
	EnqueuePeriod(ctx context.Context, periodID int64) (string, error)
	EnqueueSweep(ctx context.Context) (string, error)
}

// TriggerRequest describes a manual run. A nil PeriodID requests a full sweep.
// Force bypasses the due check and the automation gate but never the
// terminal status check.
type TriggerRequest struct {
	PeriodID *int64
	Force    bool
	Async    bool
}

// Receipt acknowledges work handed to the worker pool.
type Receipt struct {
	PeriodID *int64 `json:"period_id,omitempty"`
	TaskID   string `json:"task_id"`
	Message  string `json:"message"`
}

// TriggerResponse carries exactly one of the result shapes.
type TriggerResponse struct {
	Sweep   *SweepReport `json:"sweep,omitempty"`
	Run     *RunResult   `json:"run,omitempty"`
	Receipt *Receipt     `json:"receipt,omitempty"`
}

// Trigger serves operator initiated runs from the CLI and HTTP API.
type Trigger struct {
	scheduler *Scheduler
	periods   PeriodSource
	locker    lock.Locker
	inline    Dispatcher
	queue     Enqueuer
	logger    *slog.Logger
}

// NewTrigger constructs a Trigger. queue may be nil when async runs are not
// available.
func NewTrigger(scheduler *Scheduler, source PeriodSource, locker lock.Locker, inline Dispatcher, queue Enqueuer, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		scheduler: scheduler,
		periods:   source,
		locker:    locker,
		inline:    inline,
		queue:     queue,
		logger:    logger,
	}
}

// ErrAsyncUnavailable is returned when no queue is configured.
var ErrAsyncUnavailable = errors.New("automation: async dispatch not configured")

// Run executes the request.
func (t *Trigger) Run(ctx context.Context, req TriggerRequest) (TriggerResponse, error) {
	if req.PeriodID == nil {
		return t.sweep(ctx, req.Async)
	}
	return t.single(ctx, *req.PeriodID, req.Force, req.Async)
}

func (t *Trigger) sweep(ctx context.Context, async bool) (TriggerResponse, error) {
	if async {
		if t.queue == nil {
			return TriggerResponse{}, ErrAsyncUnavailable
		}
		taskID, err := t.queue.EnqueueSweep(ctx)
		if err != nil {
			return TriggerResponse{}, err
		}
		return TriggerResponse{Receipt: &Receipt{TaskID: taskID, Message: "Automation sweep dispatched"}}, nil
	}
	report, err := t.scheduler.RunSweep(ctx)
	if err != nil {
		return TriggerResponse{}, err
	}
	return TriggerResponse{Sweep: &report}, nil
}

func (t *Trigger) single(ctx context.Context, periodID int64, force, async bool) (TriggerResponse, error) {
	period, err := t.periods.Get(ctx, periodID)
	if err != nil {
		if errors.Is(err, periods.ErrNotFound) {
			res := RunResult{PeriodID: periodID, Status: RunError, Message: MessageNotFound}
			return TriggerResponse{Run: &res}, &payroll.BusinessError{PeriodID: periodID, Err: payroll.ErrPeriodNotFound}
		}
		return TriggerResponse{}, err
	}
	if !force && !period.IsDue(t.scheduler.Today()) {
		res := RunResult{PeriodID: periodID, Status: RunSkipped, Message: MessageNotDue}
		return TriggerResponse{Run: &res}, nil
	}

	if async {
		if t.queue == nil {
			return TriggerResponse{}, ErrAsyncUnavailable
		}
		taskID, err := t.queue.EnqueuePeriod(ctx, periodID)
		if err != nil {
			return TriggerResponse{}, err
		}
		t.logger.Info("payroll run dispatched", slog.Int64("period_id", periodID), slog.String("task_id", taskID))
		return TriggerResponse{Receipt: &Receipt{PeriodID: &periodID, TaskID: taskID, Message: "Payroll processing dispatched"}}, nil
	}

	key := shared.ProcessingLockKey(periodID)
	acquired, err := t.locker.TryAcquire(ctx, key, t.scheduler.lockTTL)
	if err != nil {
		return TriggerResponse{}, err
	}
	if !acquired {
		res := RunResult{PeriodID: periodID, Status: RunSkipped, Message: ReasonAlreadyProcessing}
		return TriggerResponse{Run: &res}, nil
	}
	defer func() {
		if err := t.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			t.logger.Warn("release processing lock", slog.Int64("period_id", periodID), slog.Any("error", err))
		}
	}()

	res, err := t.inline.Dispatch(ctx, periodID)
	return TriggerResponse{Run: &res}, err
}
