package automation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
)

// RetryPolicy bounds retries of transient failures.
type RetryPolicy struct {
	MaxRetries int
	Delay      time.Duration
}

// DefaultRetryPolicy retries twice, five minutes apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 2, Delay: 5 * time.Minute}
}

// Retryable reports whether err should be attempted again.
func Retryable(err error) bool {
	return err != nil && !payroll.IsBusinessError(err)
}

type singleRunner interface {
	ProcessOne(ctx context.Context, periodID int64) (RunResult, error)
}

// Retrier runs periods inline, retrying transient failures in-process.
type Retrier struct {
	runner singleRunner
	policy RetryPolicy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewRetrier constructs an inline Dispatcher around runner.
func NewRetrier(runner singleRunner, policy RetryPolicy, logger *slog.Logger) *Retrier {
	if logger == nil {
		logger = slog.Default()
	}
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &Retrier{runner: runner, policy: policy, logger: logger, sleep: sleepContext}
}

// WithSleep overrides the wait between attempts for deterministic tests.
func (r *Retrier) WithSleep(sleep func(ctx context.Context, d time.Duration) error) {
	if sleep != nil {
		r.sleep = sleep
	}
}

// Dispatch implements Dispatcher.
func (r *Retrier) Dispatch(ctx context.Context, periodID int64) (RunResult, error) {
	for attempt := 0; ; attempt++ {
		res, err := r.runner.ProcessOne(ctx, periodID)
		if !Retryable(err) || attempt >= r.policy.MaxRetries {
			return res, err
		}
		r.logger.Warn("payroll run failed, retrying",
			slog.Int64("period_id", periodID),
			slog.Int("attempt", attempt+1),
			slog.Duration("delay", r.policy.Delay),
			slog.Any("error", err))
		if sleepErr := r.sleep(ctx, r.policy.Delay); sleepErr != nil {
			return res, fmt.Errorf("%w (last error: %v)", sleepErr, err)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
