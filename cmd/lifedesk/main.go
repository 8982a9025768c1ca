package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"lifedesk/internal/app"
	"lifedesk/internal/auth"
	"lifedesk/internal/calendar"
	"lifedesk/internal/cli"
	apphttp "lifedesk/internal/http"
	"lifedesk/internal/log"
	"lifedesk/internal/services"
)

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentApp)
	ctx := context.Background()

	local := cli.OpenLocalStore(cfg, logger)
	defer local.Close()

	result := cli.CreateProvider(ctx, cfg, logger)
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	// A nil *amqp.Client must not reach the stores as a non-nil interface.
	var publisher services.ChangePublisher
	amqpClient, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Error("Failed to connect to AMQP", log.FieldError, err)
		os.Exit(1)
	}
	if amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
		logger.Info("Publishing transaction changes", "exchange", cfg.AMQPExchange)
	} else {
		logger.Info("AMQP disabled - transaction changes are not published")
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr: ":" + cfg.Port,
		Deps: app.Deps{
			Provider:  result.Provider,
			Local:     local,
			Calendar:  calendar.BusinessDay(cfg.DayOffsetHours),
			Clock:     time.Now,
			Publisher: publisher,
			Logger:    logger,
		},
		Guard: auth.Guard{
			Protected:  cfg.ProtectedRoutes,
			AuthRoutes: cfg.AuthRoutes,
			LoginPath:  cfg.LoginPath,
			HomePath:   cfg.HomePath,
		},
		SecureCookies:    cfg.IsProduction(),
		SessionCacheSize: cfg.SessionCacheSize,
		SessionTTL:       cfg.SessionTTL,
		Ready: func(ctx context.Context) error {
			_, err := local.Keys(ctx, "ready/")
			return err
		},
	})

	shutdownCtx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
	})

	logger.Info("Starting lifedesk server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"local_store", cfg.LocalStore,
		"day_offset_hours", cfg.DayOffsetHours)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
