package orderapi

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"oxe-delivery/cmd/orderapi/server"
	"oxe-delivery/pkg/config"
	"oxe-delivery/pkg/logger"
)

func Main() {
	port := flag.Int("port", 0, "HTTP port for the API (overrides config)")
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	logger := logger.NewLogger("order-api")
	logger.Info("startup", "service_started", "Order API starting")

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("startup", "config_load_failed", "Failed to load configuration", err)
		log.Fatal(err)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	// Create server
	srv := server.NewServer(cfg.HTTP.Port, cfg, logger)

	// Start server in a goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Error("startup", "server_start_failed", "Failed to start server", err)
			log.Fatal(err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutdown", "graceful_shutdown", "Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown", "shutdown_failed", "Server forced to shutdown", err)
		log.Fatal(err)
	}

	logger.Info("shutdown", "service_stopped", "Server exiting")
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadEnv(), nil
}
