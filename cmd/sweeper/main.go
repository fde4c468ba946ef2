// Package sweeper runs the periodic consistency loops: reconciliation,
// health checks and notification dispatch. It shares the service layer with
// the HTTP API but is driven by tickers instead of cron requests.
package sweeper

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/health"
	"oxe-delivery/internal/metrics"
	"oxe-delivery/internal/notify"
	"oxe-delivery/internal/reconciler"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/db"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/rabbitmq"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func Main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	logger := logger.NewLogger("sweeper")
	logger.Info("startup", "service_started", "Sweeper starting")

	var cfg *config.Config
	var err error
	if *configPath != "" {
		cfg, err = config.LoadFile(*configPath)
	} else {
		cfg = config.LoadEnv()
	}
	if err != nil {
		logger.Error("startup", "config_load_failed", "Failed to load configuration", err)
		log.Fatal(err)
	}

	pool, err := db.ConnectDB(&cfg.Database, logger)
	if err != nil {
		logger.Error("startup", "db_connection_failed", "Failed to connect to database", err)
		log.Fatal(err)
	}
	defer pool.Close()

	rm, err := rabbitmq.ConnectRabbitMQ(&cfg.RabbitMQ, logger)
	if err != nil {
		logger.Error("startup", "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		log.Fatal(err)
	}
	defer rm.Close()

	metrics.Register()

	auditor := audit.NewRecorder(pool, logger)
	alertService := alerts.NewService(alerts.NewAlertDB(pool),
		cfg.Sweeps.AlertDedupWindow, cfg.Sweeps.NotifyMaxAttempts, logger)

	reconcilerService := reconciler.NewService(reconciler.NewReconcilerDB(pool), auditor, alertService, rm, cfg.Sweeps, logger)
	healthMonitor := health.NewMonitor(health.NewHealthDB(pool), alertService, cfg.Sweeps, logger)
	dispatcher := notify.NewDispatcher(notify.NewNotifyDB(pool),
		[]notify.Channel{notify.NewAlertChannel(rm)}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runLoop(ctx, cfg.Sweeps.ReconcileInterval, func(ctx context.Context, correlationID string) {
			if _, err := reconcilerService.Run(ctx, correlationID); err != nil {
				logger.Error(correlationID, "reconciliation_failed", "Reconciliation sweep reported errors", err)
			}
		})
	})

	g.Go(func() error {
		return runLoop(ctx, cfg.Sweeps.HealthInterval, func(ctx context.Context, correlationID string) {
			report, err := healthMonitor.Check(ctx, correlationID)
			if err != nil {
				logger.Error(correlationID, "health_check_failed", "Health check failed", err)
				return
			}
			if report.Status != health.StatusOK {
				logger.Warn(correlationID, "health_degraded", "Health status: "+report.Status)
			}
		})
	})

	g.Go(func() error {
		return runLoop(ctx, cfg.Sweeps.NotifyInterval, func(ctx context.Context, correlationID string) {
			if _, err := dispatcher.Sweep(ctx, correlationID); err != nil {
				logger.Error(correlationID, "notification_sweep_failed", "Notification sweep failed", err)
			}
		})
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		logger.Error("shutdown", "sweeper_stopped", "Sweeper exited with error", err)
		log.Fatal(err)
	}

	logger.Info("shutdown", "service_stopped", "Sweeper exiting")
}

// runLoop fires once immediately, then on every tick until the context is
// cancelled.
func runLoop(ctx context.Context, interval time.Duration, fn func(context.Context, string)) error {
	fn(ctx, uuid.New().String())

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			fn(ctx, uuid.New().String())
		}
	}
}
