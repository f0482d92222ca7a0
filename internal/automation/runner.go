package automation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
)

// PeriodSource is the narrow read contract automation needs from storage.
type PeriodSource interface {
	Get(ctx context.Context, id int64) (periods.Period, error)
	ListAutomationCandidates(ctx context.Context) ([]periods.Period, error)
}

// PayrollRunner executes the payroll workflow for one period.
type PayrollRunner interface {
	Run(ctx context.Context, periodID int64) (payroll.RunSummary, error)
}

// Dispatcher hands a locked period to whatever performs the run.
type Dispatcher interface {
	Dispatch(ctx context.Context, periodID int64) (RunResult, error)
}

// DeferredDispatcher is a Dispatcher whose run happens later in another
// process that takes the processing lock itself. The sweep must not hold the
// lock while handing work to it, or the run could find the lock taken.
type DeferredDispatcher interface {
	Dispatcher
	DefersRun() bool
}

func defersRun(d Dispatcher) bool {
	deferred, ok := d.(DeferredDispatcher)
	return ok && deferred.DefersRun()
}

// Runner performs a single attempt of a period run.
type Runner struct {
	periods   PeriodSource
	processor PayrollRunner
	logger    *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(source PeriodSource, processor PayrollRunner, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{periods: source, processor: processor, logger: logger}
}

// ProcessOne re-reads the period and runs payroll when it is still active.
// Completed periods short-circuit to an already_completed result so repeated
// deliveries stay idempotent.
func (r *Runner) ProcessOne(ctx context.Context, periodID int64) (RunResult, error) {
	period, err := r.periods.Get(ctx, periodID)
	if err != nil {
		if errors.Is(err, periods.ErrNotFound) {
			return RunResult{PeriodID: periodID, Status: RunError, Message: MessageNotFound},
				&payroll.BusinessError{PeriodID: periodID, Err: payroll.ErrPeriodNotFound}
		}
		return RunResult{PeriodID: periodID, Status: RunError, Message: err.Error()}, err
	}
	switch period.Status {
	case periods.StatusCompleted:
		return alreadyCompleted(periodID), nil
	case periods.StatusActive:
	default:
		err := &payroll.BusinessError{PeriodID: periodID, Status: string(period.Status), Err: payroll.ErrPeriodNotProcessable}
		return RunResult{PeriodID: periodID, Status: RunError, Message: err.Error()}, err
	}

	started := time.Now()
	summary, err := r.processor.Run(ctx, periodID)
	if err != nil {
		if errors.Is(err, payroll.ErrPeriodCompleted) {
			return alreadyCompleted(periodID), nil
		}
		return RunResult{PeriodID: periodID, Status: RunError, Message: err.Error()}, err
	}
	r.logger.Info("period processed",
		slog.Int64("period_id", periodID),
		slog.Duration("duration", time.Since(started)))
	return RunResult{PeriodID: periodID, Status: RunCompleted, Result: &summary}, nil
}

func alreadyCompleted(periodID int64) RunResult {
	return RunResult{PeriodID: periodID, Status: RunAlreadyCompleted, Message: MessageAlreadyProcessed}
}

// Dispatch implements Dispatcher with a single attempt.
func (r *Runner) Dispatch(ctx context.Context, periodID int64) (RunResult, error) {
	return r.ProcessOne(ctx, periodID)
}
