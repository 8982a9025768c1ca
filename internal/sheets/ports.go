package sheets

import (
	"context"
	"sort"

	"lifedesk/internal/core"
)

// Ports for outbound adapters.
type (
	// MonthExporter replaces one user's month in an external spreadsheet.
	MonthExporter interface {
		// ExportMonth writes the month's transactions and totals, replacing any
		// rows previously exported for the same user and month.
		ExportMonth(ctx context.Context, userID string, stats core.MonthlyStatistics, txs []core.Transaction) (ref string, err error)
	}

	// MonthReader returns what was last exported for a user's month.
	MonthReader interface {
		ReadMonth(ctx context.Context, userID, yearMonth string) ([]ExportedRow, error)
	}
)

// ExportedRow is one transaction line as written to the sheet.
type ExportedRow struct {
	UserID        string
	Date          string
	Type          core.TransactionType
	Category      string
	Amount        core.Money
	Memo          string
	TransactionID int64
}

// RowsFor converts transactions into sheet rows ordered by date then id.
func RowsFor(userID string, txs []core.Transaction) []ExportedRow {
	out := make([]ExportedRow, 0, len(txs))
	for _, tx := range txs {
		out = append(out, ExportedRow{
			UserID:        userID,
			Date:          tx.Attributes.Date.String(),
			Type:          tx.Attributes.Type,
			Category:      tx.Attributes.Category,
			Amount:        tx.Attributes.Amount,
			Memo:          tx.Attributes.Memo,
			TransactionID: tx.ID,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].TransactionID < out[j].TransactionID
	})
	return out
}
