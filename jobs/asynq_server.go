package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/rashid2003/jira-payroll-automation/internal/automation"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/httpx"
)

// Worker wraps the Asynq server and optional scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// TaskHandler allows injecting custom Asynq handlers during worker setup.
type TaskHandler struct {
	Type    string
	Handler asynq.HandlerFunc
}

// CronRegistration wires a cron expression to a prepared task.
type CronRegistration struct {
	Spec    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Logger      *slog.Logger
	Concurrency int
	Location    *time.Location
	Retry       automation.RetryPolicy
	Handlers    []TaskHandler
	Cron        []CronRegistration
}

// NewWorker constructs a Worker instance.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 5
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			QueuePayroll: 6,
			QueueDefault: 1,
		},
		RetryDelayFunc:  retryDelay(cfg.Retry),
		IsFailure:       isFailure,
		Logger:          newAsynqLogger(cfg.Logger),
		ShutdownTimeout: 30 * time.Second,
	})
	mux := asynq.NewServeMux()
	for _, h := range cfg.Handlers {
		if h.Type == "" || h.Handler == nil {
			continue
		}
		mux.HandleFunc(h.Type, h.Handler)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: cfg.Location})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task, entry.Options...); err != nil {
				return nil, err
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// retryDelay spaces payroll retries by the policy delay and leaves every
// other task on the Asynq default backoff.
func retryDelay(policy automation.RetryPolicy) asynq.RetryDelayFunc {
	return func(n int, err error, task *asynq.Task) time.Duration {
		if task != nil && (task.Type() == TaskProcessPeriod || task.Type() == TaskSweep) && policy.Delay > 0 {
			return policy.Delay
		}
		return asynq.DefaultRetryDelayFunc(n, err, task)
	}
}

// isFailure keeps context cancellation during shutdown out of the failure
// statistics.
func isFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Run starts processing jobs until context cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("worker: not configured")
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			return err
		}
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.server.Run(w.mux)
	}()
	select {
	case <-ctx.Done():
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		w.server.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		if w.scheduler != nil {
			w.scheduler.Shutdown()
		}
		return err
	}
}

// ErrAlreadyQueued indicates an identical task is still waiting in the queue.
var ErrAlreadyQueued = errors.New("jobs: task already queued")

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
	policy automation.RetryPolicy
	unique time.Duration
}

// NewClient constructs an Asynq client. Period tasks are deduplicated for the
// unique window and retried according to policy.
func NewClient(redisOpts asynq.RedisClientOpt, policy automation.RetryPolicy, unique time.Duration) (*Client, error) {
	client := asynq.NewClient(redisOpts)
	return &Client{client: client, policy: policy, unique: unique}, nil
}

// EnqueuePeriod enqueues a single period run.
func (c *Client) EnqueuePeriod(ctx context.Context, periodID int64) (string, error) {
	opts := []asynq.Option{asynq.MaxRetry(c.policy.MaxRetries)}
	if c.unique > 0 {
		opts = append(opts, asynq.Unique(c.unique))
	}
	task, err := NewProcessPeriodTask(periodID, opts...)
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

// EnqueueSweep enqueues a manually requested sweep.
func (c *Client) EnqueueSweep(ctx context.Context) (string, error) {
	task, err := NewSweepTask(time.Now(), "manual", asynq.MaxRetry(c.policy.MaxRetries))
	if err != nil {
		return "", err
	}
	return c.enqueue(ctx, task)
}

func (c *Client) enqueue(ctx context.Context, task *asynq.Task) (string, error) {
	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
			return "", httpx.Mark(fmt.Errorf("%w: %s", ErrAlreadyQueued, task.Type()), httpx.ErrConflict)
		}
		return "", err
	}
	return info.ID, nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueDispatcher hands due periods found by a sweep to the worker pool
// instead of running them in the sweeping process.
type QueueDispatcher struct {
	Queue automation.Enqueuer
}

// DefersRun implements automation.DeferredDispatcher. The period task takes
// the processing lock when a worker picks it up.
func (d QueueDispatcher) DefersRun() bool { return true }

// Dispatch implements automation.Dispatcher. A period whose task is still
// queued or waiting to retry is reported as skipped.
func (d QueueDispatcher) Dispatch(ctx context.Context, periodID int64) (automation.RunResult, error) {
	taskID, err := d.Queue.EnqueuePeriod(ctx, periodID)
	if errors.Is(err, ErrAlreadyQueued) {
		return automation.RunResult{PeriodID: periodID, Status: automation.RunSkipped, Message: automation.ReasonAlreadyQueued}, nil
	}
	if err != nil {
		return automation.RunResult{PeriodID: periodID, Status: automation.RunError, Message: err.Error()}, err
	}
	return automation.RunResult{PeriodID: periodID, Status: automation.RunDispatched, TaskID: taskID}, nil
}

// QueueInspector reports queue depth.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

type queueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Available bool   `json:"available"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	queues := []string{QueuePayroll, QueueDefault}
	out := make([]queueHealth, 0, len(queues))
	for _, name := range queues {
		entry := queueHealth{Queue: name}
		if h.inspector == nil {
			out = append(out, entry)
			continue
		}
		info, err := h.inspector.GetQueueInfo(name)
		if err != nil {
			if errors.Is(err, asynq.ErrQueueNotFound) {
				entry.Available = true
				out = append(out, entry)
				continue
			}
			h.logger.Warn("jobs health", slog.String("queue", name), slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "queue inspection failed")
			return
		}
		entry.Available = true
		if info != nil {
			entry.Pending = info.Pending
			entry.Active = info.Active
			entry.Retry = info.Retry
			entry.Archived = info.Archived
		}
		out = append(out, entry)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"queues": out})
}
