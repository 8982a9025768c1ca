package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lifedesk/internal/amqp"
	"lifedesk/internal/backend"
	"lifedesk/internal/log"
	"lifedesk/internal/services"
	"lifedesk/internal/sheets"
	"lifedesk/internal/storage"
)

const pendingPrefix = "pending/"

// PendingMonth is a user's month whose snapshot or export failed and is retried
// by ProcessPending.
type PendingMonth struct {
	UserID    string    `json:"userId"`
	YearMonth string    `json:"yearMonth"`
	Attempts  int       `json:"attempts"`
	LastError string    `json:"lastError"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatsWorker keeps month snapshots (and optionally a spreadsheet) in step with
// transaction changes. It reads the backend with the service credentials.
type StatsWorker struct {
	provider  backend.Provider
	snapshots storage.SnapshotStore
	pending   storage.LocalStore
	exporter  sheets.MonthExporter
	batchSize int
	logger    *log.Logger
	now       func() time.Time
}

// NewStatsWorker wires the worker. exporter may be nil when Sheets is disabled.
func NewStatsWorker(provider backend.Provider, store storage.Store, exporter sheets.MonthExporter, batchSize int, logger *log.Logger) *StatsWorker {
	if logger == nil {
		logger = log.Nop()
	}
	if batchSize < 1 {
		batchSize = 10
	}
	return &StatsWorker{
		provider:  provider,
		snapshots: store,
		pending:   storage.NewNamespaced(store, "worker"),
		exporter:  exporter,
		batchSize: batchSize,
		logger:    logger.WithComponent(log.ComponentWorker),
		now:       time.Now,
	}
}

// HandleTransactionChanged processes a single change message from AMQP.
func (w *StatsWorker) HandleTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error {
	w.logger.InfoContext(ctx, "Processing transaction change",
		log.FieldEntityID, msg.TransactionID,
		log.FieldUserID, msg.UserID,
		log.FieldYearMonth, msg.YearMonth,
		"action", msg.Action)

	if err := w.refresh(ctx, msg.UserID, msg.YearMonth); err != nil {
		w.markPending(ctx, msg.UserID, msg.YearMonth, err)
		return fmt.Errorf("refresh month: %w", err)
	}
	w.clearPending(ctx, msg.UserID, msg.YearMonth)
	return nil
}

// ProcessPending retries months that previously failed. This is a backup
// mechanism in case AMQP messages are lost or the export target was down.
func (w *StatsWorker) ProcessPending(ctx context.Context) error {
	_, _, err := w.processPending(ctx, w.batchSize)
	return err
}

// StartupSyncCheck retries a larger batch of pending months at worker startup.
func (w *StatsWorker) StartupSyncCheck(ctx context.Context) error {
	synced, failed, err := w.processPending(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("startup sync check: %w", err)
	}
	if synced+failed == 0 {
		w.logger.InfoContext(ctx, "No pending months found on startup")
		return nil
	}
	w.logger.InfoContext(ctx, "Startup sync completed",
		"synced", synced,
		"errors", failed)
	return nil
}

// Pending lists the months waiting for a retry.
func (w *StatsWorker) Pending(ctx context.Context) ([]PendingMonth, error) {
	keys, err := w.pending.Keys(ctx, pendingPrefix)
	if err != nil {
		return nil, fmt.Errorf("list pending months: %w", err)
	}
	out := make([]PendingMonth, 0, len(keys))
	for _, k := range keys {
		p, found, err := storage.GetJSON[PendingMonth](ctx, w.pending, k)
		if err != nil || !found {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (w *StatsWorker) processPending(ctx context.Context, limit int) (synced, failed int, err error) {
	months, err := w.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	if len(months) > limit {
		months = months[:limit]
	}
	if len(months) > 0 {
		w.logger.InfoContext(ctx, "Processing pending months", log.FieldCount, len(months))
	}
	for _, p := range months {
		if ctx.Err() != nil {
			return synced, failed, ctx.Err()
		}
		if err := w.refresh(ctx, p.UserID, p.YearMonth); err != nil {
			w.logger.ErrorContext(ctx, "Failed to refresh pending month",
				log.FieldUserID, p.UserID,
				log.FieldYearMonth, p.YearMonth,
				"attempts", p.Attempts+1,
				log.FieldError, err)
			w.markPending(ctx, p.UserID, p.YearMonth, err)
			failed++
			continue
		}
		w.clearPending(ctx, p.UserID, p.YearMonth)
		synced++
	}
	return synced, failed, nil
}

// refresh recomputes the month, stores the snapshot and exports it.
func (w *StatsWorker) refresh(ctx context.Context, userID, yearMonth string) error {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(yearMonth) == "" {
		return errors.New("message without user or month")
	}
	repo := w.provider.ForToken("")
	stats, txs, err := services.MonthReport(ctx, repo, userID, yearMonth)
	if err != nil {
		return err
	}
	if err := w.snapshots.SaveMonthSnapshot(ctx, userID, stats); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	ref := ""
	if w.exporter != nil {
		ref, err = w.exporter.ExportMonth(ctx, userID, stats, txs)
		if err != nil {
			return fmt.Errorf("export month: %w", err)
		}
	}

	w.logger.InfoContext(ctx, "Month refreshed",
		log.FieldOperation, log.OpSync,
		log.FieldUserID, userID,
		log.FieldYearMonth, yearMonth,
		log.FieldCount, len(txs),
		"balance", int64(stats.Total.Balance),
		log.FieldSheetsRef, ref)
	return nil
}

func (w *StatsWorker) markPending(ctx context.Context, userID, yearMonth string, cause error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(yearMonth) == "" {
		return
	}
	key := pendingKey(userID, yearMonth)
	p, _, err := storage.GetJSON[PendingMonth](ctx, w.pending, key)
	if err != nil {
		w.logger.WarnContext(ctx, "Failed to read pending month", log.FieldCacheKey, key, log.FieldError, err)
	}
	p.UserID = userID
	p.YearMonth = yearMonth
	p.Attempts++
	p.LastError = cause.Error()
	p.UpdatedAt = w.now()
	if err := storage.SetJSON(ctx, w.pending, key, p); err != nil {
		w.logger.ErrorContext(ctx, "Failed to mark month pending", log.FieldCacheKey, key, log.FieldError, err)
	}
}

func (w *StatsWorker) clearPending(ctx context.Context, userID, yearMonth string) {
	key := pendingKey(userID, yearMonth)
	if err := w.pending.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.WarnContext(ctx, "Failed to clear pending month", log.FieldCacheKey, key, log.FieldError, err)
	}
}

func pendingKey(userID, yearMonth string) string {
	return pendingPrefix + userID + "/" + yearMonth
}
