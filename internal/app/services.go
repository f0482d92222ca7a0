package app

import (
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	"github.com/rashid2003/jira-payroll-automation/internal/lock"
	"github.com/rashid2003/jira-payroll-automation/internal/payroll"
	"github.com/rashid2003/jira-payroll-automation/internal/periods"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/cache"
	"github.com/rashid2003/jira-payroll-automation/internal/shared"
	"github.com/rashid2003/jira-payroll-automation/jobs"
)

// Services holds the payroll components shared by every binary.
type Services struct {
	Config      *Config
	Logger      *slog.Logger
	PeriodStore *periods.Repository
	Periods     *periods.Service
	Processor   *payroll.Processor
	Runner      *automation.Runner
	Locker      *lock.RedisLocker
	Audit       *shared.AuditLogger
	QueueOpts   asynq.RedisClientOpt
	Queue       *jobs.Client
}

// NewServices wires storage, locking and the payroll processor.
func NewServices(cfg *Config, pool *pgxpool.Pool, redisClient *redis.Client, logger *slog.Logger) (*Services, error) {
	if logger == nil {
		logger = slog.Default()
	}
	store := periods.NewRepository(pool)
	processor := payroll.NewProcessor(payroll.NewRepository(pool), cfg.PayrollConfig(), logger)
	queueOpts := cache.QueueOpts(redisClient)
	queue, err := jobs.NewClient(queueOpts, cfg.RetryPolicy(), cfg.QueueUniqueTTL)
	if err != nil {
		return nil, err
	}
	return &Services{
		Config:      cfg,
		Logger:      logger,
		PeriodStore: store,
		Periods:     periods.NewService(store),
		Processor:   processor,
		Runner:      automation.NewRunner(store, processor, logger),
		Locker:      lock.NewRedisLocker(redisClient),
		Audit:       shared.NewAuditLogger(pool),
		QueueOpts:   queueOpts,
		Queue:       queue,
	}, nil
}

// Scheduler builds a sweep scheduler around the given dispatcher.
func (s *Services) Scheduler(dispatcher automation.Dispatcher) *automation.Scheduler {
	return automation.NewScheduler(s.PeriodStore, s.Locker, dispatcher, automation.SchedulerConfig{
		LockTTL:     s.Config.LockTTL,
		Concurrency: s.Config.SweepConcurrency,
		Location:    s.Config.Location(),
	}, s.Logger)
}

// Trigger builds the manual trigger used by the API and the CLI. Inline runs
// make a single attempt.
func (s *Services) Trigger() *automation.Trigger {
	return automation.NewTrigger(s.Scheduler(s.Runner), s.PeriodStore, s.Locker, s.Runner, s.Queue, s.Logger)
}

// SweepDispatcher picks how the worker sweep hands off due periods.
func (s *Services) SweepDispatcher() automation.Dispatcher {
	if s.Config.UsesQueueDispatch() {
		return jobs.QueueDispatcher{Queue: s.Queue}
	}
	return automation.NewRetrier(s.Runner, s.Config.RetryPolicy(), s.Logger)
}

// Close releases the queue client.
func (s *Services) Close() {
	if s == nil || s.Queue == nil {
		return
	}
	if err := s.Queue.Close(); err != nil {
		s.Logger.Warn("queue client close", slog.Any("error", err))
	}
}
