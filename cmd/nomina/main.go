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
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/nomina/cmd/nomina/cli"
	"github.com/odyssey-erp/nomina/internal/app"
	"github.com/odyssey-erp/nomina/internal/audit"
	"github.com/odyssey-erp/nomina/internal/auth"
	"github.com/odyssey-erp/nomina/internal/lifecycle"
	"github.com/odyssey-erp/nomina/internal/observability"
	"github.com/odyssey-erp/nomina/internal/payroll"
	"github.com/odyssey-erp/nomina/internal/platform/cache"
	"github.com/odyssey-erp/nomina/internal/platform/db"
	"github.com/odyssey-erp/nomina/internal/rbac"
	"github.com/odyssey-erp/nomina/internal/shared"
	"github.com/odyssey-erp/nomina/internal/users"
	"github.com/odyssey-erp/nomina/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	if len(os.Args) > 1 && os.Args[1] == "jobs" {
		jobsCLI := cli.NewJobsCLI(cfg.RedisAddr)
		defer jobsCLI.Close()
		if err := jobsCLI.Run(ctx, os.Args[2:], os.Stdout); err != nil {
			logger.Error("jobs cli", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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
	rbacMiddleware := rbac.Middleware{Engine: engine, Logger: logger}
	metrics := observability.NewMetrics()

	issuer := auth.NewIssuer(cfg.SessionSecret, cfg.SessionTTL, clock)
	authService := auth.NewService(auth.NewRepository(dbpool), issuer)
	policy := auth.NewPolicy(authService, auth.NewRedisStore(redisClient), engine, auth.PolicyConfig{
		IdleTimeout: cfg.SessionIdleTimeout,
		Clock:       clock,
		Logger:      logger,
	})
	authHandler := auth.NewHandler(logger, authService, policy, cfg.IsProduction())

	reportCache := payroll.NewReportCache(redisClient, cfg.ReportCacheTTL)
	manager := lifecycle.NewManager(lifecycle.NewPGStore(dbpool, clock), engine, lifecycle.Config{
		Auditor:     shared.NewAuditLogger(dbpool),
		Invalidator: reportCache,
		Clock:       clock,
		Logger:      logger,
	})
	employeesHandler := lifecycle.NewHandler(logger, manager, rbacMiddleware, lifecycle.EntityEmployee)
	usersHandler := users.NewHandler(logger, users.NewService(manager, engine), rbacMiddleware)

	aggregator := payroll.NewAggregator(payroll.NewPGRepository(dbpool, clock), manager, payroll.Config{
		Concurrency: cfg.ReportConcurrency,
		Locker:      newLocker(cfg, redisClient),
		Cache:       reportCache,
		Metrics:     payroll.NewMetrics(metrics.Registerer()),
		Clock:       clock,
		Logger:      logger,
	})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	payrollHandler := payroll.NewHandler(logger, aggregator, rbacMiddleware, jobClient)

	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		Policy:             policy,
		AuthHandler:        authHandler,
		EmployeesHandler:   employeesHandler,
		UsersHandler:       usersHandler,
		PayrollHandler:     payrollHandler,
		PermissionsHandler: rbac.NewPermissionsHandler(engine),
		AuditHandler:       audit.NewHandler(logger, audit.NewService(audit.NewRepository(dbpool)), rbacMiddleware),
		JobHandler:         jobs.NewHandler(inspector, logger),
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

func newLocker(cfg *app.Config, client *redis.Client) payroll.KeyLocker {
	if cfg.PayrollLockBackend == app.LockBackendRedis {
		return payroll.NewRedisLocker(client, cfg.PayrollLockTTL)
	}
	return payroll.NewMemoryLocker()
}
