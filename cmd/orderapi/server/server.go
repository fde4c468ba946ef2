package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"oxe-delivery/internal/alerts"
	"oxe-delivery/internal/api"
	"oxe-delivery/internal/audit"
	"oxe-delivery/internal/gateway"
	"oxe-delivery/internal/health"
	intakedb "oxe-delivery/internal/intake/db"
	"oxe-delivery/internal/intake/service"
	"oxe-delivery/internal/metrics"
	"oxe-delivery/internal/notify"
	"oxe-delivery/internal/payments"
	"oxe-delivery/internal/reconciler"
	"oxe-delivery/internal/webhook"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/db"
	"oxe-delivery/pkg/logger"
	"oxe-delivery/pkg/rabbitmq"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	port       int
	config     *config.Config
	logger     *logger.Logger
	httpServer *http.Server
	dbPool     *pgxpool.Pool
	rabbitMQ   *rabbitmq.RabbitMQ
}

func NewServer(port int, cfg *config.Config, log *logger.Logger) *Server {
	return &Server{
		port:   port,
		config: cfg,
		logger: log,
	}
}

func (s *Server) Start() error {
	// Connect to database
	pool, err := db.ConnectDB(&s.config.Database, s.logger)
	if err != nil {
		return err
	}
	s.dbPool = pool

	if err := db.RunMigrations(&s.config.Database, "migrations", s.logger); err != nil {
		return err
	}

	// Connect to RabbitMQ
	rm, err := rabbitmq.ConnectRabbitMQ(&s.config.RabbitMQ, s.logger)
	if err != nil {
		return err
	}
	s.rabbitMQ = rm

	metrics.Register()

	auditor := audit.NewRecorder(pool, s.logger)
	alertService := alerts.NewService(alerts.NewAlertDB(pool),
		s.config.Sweeps.AlertDedupWindow, s.config.Sweeps.NotifyMaxAttempts, s.logger)
	provider := gateway.NewMercadoPago(&s.config.Provider, s.logger)

	orderService := service.NewOrderService(intakedb.NewOrderDB(pool, s.logger), auditor, s.logger)
	paymentService := payments.NewPaymentService(payments.NewPaymentDB(pool), provider, s.config.Provider, auditor, s.logger)
	webhookService := webhook.NewService(webhook.NewWebhookDB(pool), provider, s.config.Provider.Name, auditor, alertService, rm, s.logger)
	reconcilerService := reconciler.NewService(reconciler.NewReconcilerDB(pool), auditor, alertService, rm, s.config.Sweeps, s.logger)
	healthMonitor := health.NewMonitor(health.NewHealthDB(pool), alertService, s.config.Sweeps, s.logger)
	dispatcher := notify.NewDispatcher(notify.NewNotifyDB(pool),
		[]notify.Channel{notify.NewAlertChannel(rm)}, s.logger)

	apiHandler := api.NewHandler(orderService, paymentService, webhookService,
		reconcilerService, healthMonitor, dispatcher, alertService, s.config, s.logger)

	// Setup HTTP server
	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("startup", "server_started", fmt.Sprintf("Order API started on port %d", s.port))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	// Close MQ
	if s.rabbitMQ != nil {
		s.rabbitMQ.Close()
	}
	// Close DB pool
	if s.dbPool != nil {
		s.dbPool.Close()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
