// Package cli provides the startup steps shared by cmd/lifedesk and
// cmd/lifedesk-worker.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"lifedesk/internal/amqp"
	"lifedesk/internal/backend"
	"lifedesk/internal/config"
	"lifedesk/internal/log"
	"lifedesk/internal/storage"
)

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// SetupLogger builds the process logger at the configured level and installs
// it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Component: component,
	})
	log.SetDefault(logger)
	return logger
}

// LoadConfig reads the environment, sets up logging and validates the
// configuration. The process exits when validation fails.
func LoadConfig(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err)
		os.Exit(1)
	}
	return cfg, logger
}

// OpenLocalStore opens the configured local store or exits the process.
func OpenLocalStore(cfg *config.Config, logger *log.Logger) storage.Store {
	store, err := storage.Open(cfg, logger)
	if err != nil {
		logger.Error("Failed to open local store", log.FieldError, err,
			"store", cfg.LocalStore,
			"path", cfg.LocalDBPath)
		os.Exit(1)
	}
	logger.Info("Local store ready", "store", cfg.LocalStore)
	return store
}

// CreateProvider builds the content backend named by DATA_BACKEND or exits
// the process.
func CreateProvider(ctx context.Context, cfg *config.Config, logger *log.Logger) *backend.BackendResult {
	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return result
}

// ConnectAMQP dials the broker. It returns nil when AMQP is not configured.
func ConnectAMQP(cfg *config.Config, logger *log.Logger) (*amqp.Client, error) {
	if !cfg.AMQPEnabled() {
		return nil, nil
	}
	return amqp.NewClient(amqp.Config{
		URL:          cfg.AMQPURL,
		ExchangeName: cfg.AMQPExchange,
		QueueName:    cfg.AMQPQueue,
		Prefetch:     cfg.AMQPPrefetch,
	}, logger)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that is closed once cleanup has finished or timed out.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		finished := make(chan struct{})
		go func() {
			if cleanup != nil {
				cleanup(shutdownCtx)
			}
			close(finished)
		}()

		select {
		case <-shutdownCtx.Done():
			logger.Warn("Shutdown timeout reached")
		case <-finished:
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup is over.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
