package worker

import (
	"context"
	"errors"
	"testing"

	"lifedesk/internal/amqp"
	"lifedesk/internal/backend"
	bmem "lifedesk/internal/backend/memory"
	"lifedesk/internal/core"
	smem "lifedesk/internal/sheets/memory"
	"lifedesk/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flakyExporter struct {
	*smem.Store
	err error
}

func (f *flakyExporter) ExportMonth(ctx context.Context, userID string, stats core.MonthlyStatistics, txs []core.Transaction) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.Store.ExportMonth(ctx, userID, stats, txs)
}

func seed(t *testing.T) *bmem.Store {
	t.Helper()
	repo := bmem.New(nil)
	inputs := []core.TransactionInput{
		{Type: core.Income, Amount: 5000, Category: "salary", Date: mustDate("2025-03-01"), UserID: "1"},
		{Type: core.Expense, Amount: 1200, Category: "food", Date: mustDate("2025-03-02"), UserID: "1"},
		{Type: core.Expense, Amount: 700, Category: "food", Date: mustDate("2025-04-01"), UserID: "1"},
		{Type: core.Expense, Amount: 999, Category: "rent", Date: mustDate("2025-03-02"), UserID: "2"},
	}
	for _, in := range inputs {
		_, err := repo.CreateTransaction(context.Background(), in)
		require.NoError(t, err)
	}
	return repo
}

func newWorker(t *testing.T, exporter *flakyExporter) (*StatsWorker, *storage.Memory) {
	t.Helper()
	store := storage.NewMemory()
	provider := backend.NewMemoryProvider(seed(t))
	if exporter == nil {
		return NewStatsWorker(provider, store, nil, 10, nil), store
	}
	return NewStatsWorker(provider, store, exporter, 10, nil), store
}

func TestHandleTransactionChangedStoresSnapshotAndExports(t *testing.T) {
	exporter := &flakyExporter{Store: smem.New()}
	w, store := newWorker(t, exporter)
	ctx := context.Background()

	msg := amqp.NewTransactionChangedMessage(amqp.ActionCreated, 2, "1", "2025-03")
	require.NoError(t, w.HandleTransactionChanged(ctx, msg))

	snap, err := store.MonthSnapshot(ctx, "1", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, core.Money(5000), snap.Total.TotalIncome)
	assert.Equal(t, core.Money(1200), snap.Total.TotalExpense)
	assert.Equal(t, core.Money(3800), snap.Total.Balance)

	rows, err := exporter.ReadMonth(ctx, "1", "2025-03")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-03-01", rows[0].Date)

	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestHandleTransactionChangedWithoutExporter(t *testing.T) {
	w, store := newWorker(t, nil)
	ctx := context.Background()

	require.NoError(t, w.HandleTransactionChanged(ctx, amqp.NewTransactionChangedMessage(amqp.ActionDeleted, 9, "2", "2025-03")))
	snap, err := store.MonthSnapshot(ctx, "2", "2025-03")
	require.NoError(t, err)
	assert.Equal(t, core.Money(999), snap.Total.TotalExpense)
	require.Len(t, snap.ExpenseByCategory, 1)
	assert.Equal(t, "rent", snap.ExpenseByCategory[0].Name)
}

func TestFailedExportIsRetried(t *testing.T) {
	exporter := &flakyExporter{Store: smem.New(), err: errors.New("sheets down")}
	w, _ := newWorker(t, exporter)
	ctx := context.Background()

	msg := amqp.NewTransactionChangedMessage(amqp.ActionUpdated, 2, "1", "2025-03")
	err := w.HandleTransactionChanged(ctx, msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sheets down")

	require.NoError(t, w.ProcessPending(ctx))
	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "1", pending[0].UserID)
	assert.Equal(t, "2025-03", pending[0].YearMonth)
	assert.Equal(t, 2, pending[0].Attempts)
	assert.Equal(t, "export month: sheets down", pending[0].LastError)

	exporter.err = nil
	require.NoError(t, w.StartupSyncCheck(ctx))
	pending, err = w.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	assert.Equal(t, 1, exporter.Exports())
}

func TestHandleRejectsMessageWithoutUser(t *testing.T) {
	w, _ := newWorker(t, nil)
	ctx := context.Background()

	err := w.HandleTransactionChanged(ctx, &amqp.TransactionChangedMessage{TransactionID: 1, YearMonth: "2025-03", Action: amqp.ActionCreated})
	require.Error(t, err)

	pending, err := w.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending, "nothing to retry without a user")
}

func TestStartupSyncCheckWithNothingPending(t *testing.T) {
	w, _ := newWorker(t, nil)
	assert.NoError(t, w.StartupSyncCheck(context.Background()))
}

// mustDate parses a YYYY-MM-DD literal known to be valid.
func mustDate(s string) core.Date {
	d, err := core.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}
