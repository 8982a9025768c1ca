package main

import (
	"context"
	"errors"
	"os"
	"time"

	"lifedesk/internal/cli"
	"lifedesk/internal/log"
	"lifedesk/internal/sheets"
	gsheet "lifedesk/internal/sheets/google"
	"lifedesk/internal/worker"
)

func main() {
	cfg, logger := cli.LoadConfig(log.ComponentWorker)
	logger.Info("Starting lifedesk-worker")

	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	store := cli.OpenLocalStore(cfg, logger)
	defer store.Close()

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)

	result := cli.CreateProvider(ctx, cfg, logger)
	if result.Cleanup != nil {
		defer func() {
			if err := result.Cleanup(); err != nil {
				logger.Warn("Backend cleanup failed", log.FieldError, err)
			}
		}()
	}

	// Google Sheets export is optional; a nil *gsheet.Client must stay a nil interface.
	var exporter sheets.MonthExporter
	if cfg.SheetsEnabled() {
		client, err := gsheet.NewFromConfig(ctx, cfg, logger)
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", log.FieldError, err)
			os.Exit(1)
		}
		exporter = client
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	amqpClient, err := cli.ConnectAMQP(cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	statsWorker := worker.NewStatsWorker(result.Provider, store, exporter, cfg.SyncBatchSize, logger)

	logger.Info("Performing startup sync check...")
	if err := statsWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Failed startup sync check", log.FieldError, err)
	}

	go func() {
		err := amqpClient.ConsumeTransactionChanges(ctx, statsWorker.HandleTransactionChanged)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
		}
	}()

	// Periodic retry of months whose refresh failed.
	go func() {
		ticker := time.NewTicker(cfg.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := statsWorker.ProcessPending(ctx); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Periodic sync failed", log.FieldError, err)
				}
			}
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
