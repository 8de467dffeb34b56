package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/nomina/internal/app"
	jobmetrics "github.com/odyssey-erp/nomina/internal/jobs"
	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/payroll"
	"github.com/odyssey-erp/nomina/internal/platform/cache"
	"github.com/odyssey-erp/nomina/internal/platform/db"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
	"github.com/odyssey-erp/nomina/jobs"
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

	logger := app.NewLogger(cfg)

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

	clock := shared.Clock(shared.SystemClock)
	engine := rbac.NewEngine(rbac.DefaultCatalog)
	manager := lifecycle.NewManager(lifecycle.NewPGStore(pool, clock), engine, lifecycle.Config{
		Auditor: shared.NewAuditLogger(pool),
		Clock:   clock,
		Logger:  logger,
	})
	aggregator := payroll.NewAggregator(payroll.NewPGRepository(pool, clock), manager, payroll.Config{
		Concurrency: cfg.ReportConcurrency,
		Cache:       payroll.NewReportCache(redisClient, cfg.ReportCacheTTL),
		Metrics:     payroll.NewMetrics(nil),
		Clock:       clock,
		Logger:      logger,
	})

	reportJob := jobs.NewReportAggregationJob(aggregator, logger, jobmetrics.NewMetrics(nil))
	reportJob.Clock = clock

	reportCron, err := jobs.ReportCron()
	if err != nil {
		logger.Error("build report task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPayrollReportAggregate, Handler: reportJob.Handle},
		},
		Cron: []jobs.CronRegistration{reportCron},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
