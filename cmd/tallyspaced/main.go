package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/tallyspace/tallyspace/pkg/accounts"
	"github.com/tallyspace/tallyspace/pkg/action"
	"github.com/tallyspace/tallyspace/pkg/api"
	"github.com/tallyspace/tallyspace/pkg/audit"
	"github.com/tallyspace/tallyspace/pkg/auth"
	"github.com/tallyspace/tallyspace/pkg/config"
	"github.com/tallyspace/tallyspace/pkg/customers"
	"github.com/tallyspace/tallyspace/pkg/expenses"
	"github.com/tallyspace/tallyspace/pkg/invoices"
	"github.com/tallyspace/tallyspace/pkg/jobs"
	"github.com/tallyspace/tallyspace/pkg/observability"
	"github.com/tallyspace/tallyspace/pkg/payments"
	"github.com/tallyspace/tallyspace/pkg/security"
	"github.com/tallyspace/tallyspace/pkg/storage"
	"github.com/tallyspace/tallyspace/pkg/tasks"
	"github.com/tallyspace/tallyspace/pkg/workspace"
)

const poolStatsInterval = 15 * time.Second

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).
			WithError(err).Error("failed to load configuration")
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.WithFields(map[string]interface{}{
		"port":        cfg.Server.Port,
		"health_port": cfg.Server.HealthPort,
	}).Info("Starting tallyspaced")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	logger.Info("Shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger *observability.Logger) error {
	// Tracing
	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		observability.ShutdownOTel(shutdownCtx, providers, logger)
	}()

	// Storage
	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.Migrate(ctx, db); err != nil {
		return err
	}
	logger.Info("Database migrations applied")

	redisClient, err := storage.ConnectRedis(ctx, cfg.Redis)
	if err != nil {
		// redis only backs rate limiting and the detector degrades open,
		// so a missing redis is a warning, not a startup failure
		logger.WithError(err).Warn("Redis unavailable, rate limiting disabled")
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	// Metrics
	registry := prometheus.NewRegistry()
	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(registry)
		go storage.PublishPoolStats(ctx, db, metrics, poolStatsInterval)
	}

	// Collaborators
	sessions := auth.NewSessionStore(db, cfg.Auth.SessionTTL)
	workspaces := workspace.NewPostgresService(db)

	recorder, err := audit.NewPostgresRecorder(db)
	if err != nil {
		return err
	}
	trail := audit.NewTrail(recorder, logger)

	var limiter action.RateLimiter
	if redisClient != nil {
		limiter = action.NewRedisRateLimiter(redisClient)
	}

	var detector *security.Detector
	if cfg.Security.DetectorEnabled {
		detector = security.NewDetector(recorder, cfg.Security.DetectorConfig())
	}

	executor := action.NewExecutor(action.Deps{
		Authenticator: sessions,
		Resolver:      workspaces,
		Trail:         trail,
		Limiter:       limiter,
		Detector:      detector,
		Logger:        logger,
		Metrics:       metrics,
	})

	// Stores and actions
	customerStore := customers.NewPostgresStore(db)
	invoiceStore := invoices.NewPostgresStore(db)
	expenseStore := expenses.NewPostgresStore(db)
	taskStore := tasks.NewPostgresStore(db)
	paymentStore := payments.NewPostgresStore(db, invoiceStore)
	accountStore := accounts.NewPostgresStore(db)

	reg := action.NewRegistry()
	reg.Register(accounts.Actions(accountStore, sessions, workspaces)...)
	reg.Register(workspace.Actions(workspaces)...)
	reg.Register(audit.Actions(recorder)...)
	reg.Register(customers.Actions(customerStore)...)
	reg.Register(invoices.Actions(invoiceStore)...)
	reg.Register(expenses.Actions(expenseStore)...)
	reg.Register(tasks.Actions(taskStore, workspaces)...)
	reg.Register(payments.Actions(paymentStore)...)
	logger.WithField("actions", len(reg.Names())).Info("Actions registered")

	// Background jobs
	var scheduler *jobs.Scheduler
	if cfg.Jobs.Enabled {
		scheduler, err = jobs.NewScheduler(sessions, workspaces, logger)
		if err != nil {
			return err
		}
		scheduler.Start()
	}

	// HTTP surfaces
	health := observability.NewHealthChecker(db, redisClient)
	server := api.NewServer(reg, executor, health, logger, metrics)

	appServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, health)
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Listeners drain first; the scheduler stops once no requests are in flight
	shutdown := observability.NewShutdownSequence(logger, cfg.Server.ShutdownTimeout)
	shutdown.Register("app listener", appServer.Shutdown)
	shutdown.Register("health listener", healthServer.Shutdown)
	if scheduler != nil {
		shutdown.Register("job scheduler", func(context.Context) error {
			scheduler.Stop()
			return nil
		})
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.WithField("addr", appServer.Addr).Info("App listener started")
		if err := appServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		logger.WithField("addr", healthServer.Addr).Info("Health listener started")
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return shutdown.Run()
	})

	return g.Wait()
}
