package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/rashid2003/jira-payroll-automation/internal/app"
	jobmetrics "github.com/rashid2003/jira-payroll-automation/internal/jobs"
	"github.com/rashid2003/jira-payroll-automation/internal/observability"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/cache"
	"github.com/rashid2003/jira-payroll-automation/internal/platform/db"
	"github.com/rashid2003/jira-payroll-automation/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg, "payroll-worker")

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	services, err := app.NewServices(cfg, pool, redisClient, logger)
	if err != nil {
		logger.Error("init services", slog.Any("error", err))
		os.Exit(1)
	}
	defer services.Close()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	scheduler := services.Scheduler(services.SweepDispatcher())
	sweepJob := jobs.NewSweepJob(scheduler, services.Audit, logger, jobMetrics)
	processJob := jobs.NewProcessPeriodJob(services.Runner, services.Locker, services.Audit, logger, jobMetrics)
	processJob.LockTTL = cfg.LockTTL

	sweepTask, err := jobs.NewSweepTask(time.Now(), "cron")
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   services.QueueOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Location:    cfg.Location(),
		Retry:       cfg.RetryPolicy(),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskProcessPeriod, Handler: processJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.SweepCron, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("payroll worker configured",
		slog.String("sweep_cron", cfg.SweepCron),
		slog.String("dispatch_mode", cfg.DispatchMode),
		slog.Int("sweep_concurrency", cfg.SweepConcurrency))

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
