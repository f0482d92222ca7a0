package automation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rashid2003/jira-payroll-automation/internal/lock"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
)

// SchedulerConfig tunes a sweep.
type SchedulerConfig struct {
	LockTTL     time.Duration
	Concurrency int
	Location    *time.Location
}

// Scheduler evaluates every automation candidate and runs the due ones.
type Scheduler struct {
	periods    PeriodSource
	locker     lock.Locker
	dispatcher Dispatcher
	logger     *slog.Logger
	lockTTL    time.Duration
	limit      int
	location   *time.Location
	now        func() time.Time
}

// NewScheduler constructs a Scheduler.
func NewScheduler(source PeriodSource, locker lock.Locker, dispatcher Dispatcher, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = lock.ProcessingTTL
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		periods:    source,
		locker:     locker,
		dispatcher: dispatcher,
		logger:     logger,
		lockTTL:    cfg.LockTTL,
		limit:      cfg.Concurrency,
		location:   cfg.Location,
		now:        time.Now,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Scheduler) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Today returns the calendar date used for due checks.
func (s *Scheduler) Today() time.Time {
	return periods.DateOf(s.now().In(s.location))
}

// RunSweep processes every due period. Only a failure to list candidates is
// returned as an error; per-period failures land in the report.
func (s *Scheduler) RunSweep(ctx context.Context) (SweepReport, error) {
	report := newSweepReport(uuid.NewString(), s.now().UTC())
	log := s.logger.With(slog.String("sweep_id", report.RunID))

	candidates, err := s.periods.ListAutomationCandidates(ctx)
	if err != nil {
		log.Error("list automation candidates", slog.Any("error", err))
		return report, fmt.Errorf("automation: list candidates: %w", err)
	}

	today := s.Today()
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.limit)
	for _, period := range candidates {
		if !period.IsDue(today) {
			continue
		}
		g.Go(func() error {
			outcome := s.sweepOne(ctx, period.ID)
			mu.Lock()
			outcome.apply(&report)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	report.finalize()

	log.Info("automation sweep finished",
		slog.Int("candidates", len(candidates)),
		slog.Int("processed", report.ProcessedCount),
		slog.Int("skipped", report.SkippedCount),
		slog.Int("failed", report.FailedCount))
	return report, nil
}

type sweepOutcome struct {
	periodID int64
	result   *RunResult
	skipped  string
	failed   string
}

func (o sweepOutcome) apply(r *SweepReport) {
	switch {
	case o.failed != "":
		r.Failed = append(r.Failed, FailedItem{PeriodID: o.periodID, Error: o.failed})
	case o.skipped != "":
		r.Skipped = append(r.Skipped, SkippedItem{PeriodID: o.periodID, Reason: o.skipped})
	case o.result != nil:
		r.Processed = append(r.Processed, ProcessedItem{PeriodID: o.periodID, Result: *o.result})
	}
}

func (s *Scheduler) sweepOne(ctx context.Context, periodID int64) sweepOutcome {
	log := s.logger.With(slog.Int64("period_id", periodID))
	if defersRun(s.dispatcher) {
		return s.dispatch(ctx, periodID, log)
	}

	outcome := sweepOutcome{periodID: periodID}
	key := shared.ProcessingLockKey(periodID)

	acquired, err := s.locker.TryAcquire(ctx, key, s.lockTTL)
	if err != nil {
		log.Error("acquire processing lock", slog.Any("error", err))
		outcome.failed = err.Error()
		return outcome
	}
	if !acquired {
		log.Info("period already processing")
		outcome.skipped = ReasonAlreadyProcessing
		return outcome
	}
	defer func() {
		if err := s.locker.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Warn("release processing lock", slog.Any("error", err))
		}
	}()
	return s.dispatch(ctx, periodID, log)
}

// dispatch runs one period, recovering panics into a failed outcome. A
// skipped result from the dispatcher is reported as skipped.
func (s *Scheduler) dispatch(ctx context.Context, periodID int64, log *slog.Logger) (outcome sweepOutcome) {
	outcome.periodID = periodID
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("payroll run panicked", slog.Any("panic", rec))
			outcome = sweepOutcome{periodID: periodID, failed: fmt.Sprintf("panic: %v", rec)}
		}
	}()

	res, err := s.dispatcher.Dispatch(ctx, periodID)
	if err != nil {
		log.Error("payroll run failed", slog.Any("error", err))
		outcome.failed = err.Error()
		return outcome
	}
	if res.Status == RunSkipped {
		log.Info("period skipped by dispatcher", slog.String("reason", res.Message))
		outcome.skipped = res.Message
		return outcome
	}
	outcome.result = &res
	return outcome
}
