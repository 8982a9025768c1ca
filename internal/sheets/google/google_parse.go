package google

import (
	"fmt"
	"strconv"
	"strings"

	"lifedesk/internal/core"
	ports "lifedesk/internal/sheets"
)

var (
	rowsHeader    = []any{"User", "Date", "Type", "Category", "Amount", "Memo", "Transaction ID"}
	summaryHeader = []any{"User", "Month", "Income", "Expense", "Balance"}
)

func encodeRows(rows []ports.ExportedRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{
			r.UserID,
			r.Date,
			string(r.Type),
			r.Category,
			int64(r.Amount),
			r.Memo,
			r.TransactionID,
		})
	}
	return out
}

func encodeSummary(userID string, stats core.MonthlyStatistics) []any {
	return []any{
		userID,
		stats.YearMonth,
		int64(stats.Total.TotalIncome),
		int64(stats.Total.TotalExpense),
		int64(stats.Total.Balance),
	}
}

// parseRows converts a values matrix (as returned by Sheets API) into rows.
// The header and rows with an unreadable amount or id are skipped.
func parseRows(values [][]any) []ports.ExportedRow {
	var out []ports.ExportedRow
	for i, raw := range values {
		cols := toStrings(raw)
		if len(cols) < 5 {
			continue
		}
		if i == 0 && isHeader(cols, rowsHeader) {
			continue
		}
		amount, err := core.ParseAmount(safeGet(cols, 4))
		if err != nil {
			continue
		}
		id, err := strconv.ParseInt(strings.ReplaceAll(safeGet(cols, 6), ",", ""), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, ports.ExportedRow{
			UserID:        cols[0],
			Date:          cols[1],
			Type:          core.TransactionType(cols[2]),
			Category:      cols[3],
			Amount:        amount,
			Memo:          safeGet(cols, 5),
			TransactionID: id,
		})
	}
	return out
}

// mergeRows rebuilds a block: header first, then every existing row that drop
// rejects in its original order, then fresh.
func mergeRows(existing [][]any, header []any, drop func(cols []string) bool, fresh [][]any) [][]any {
	out := [][]any{header}
	for i, row := range existing {
		cols := toStrings(row)
		if i == 0 && isHeader(cols, header) {
			continue
		}
		if isBlank(cols) || drop(cols) {
			continue
		}
		out = append(out, row)
	}
	return append(out, fresh...)
}

func isHeader(cols []string, header []any) bool {
	return len(cols) > 0 && strings.EqualFold(cols[0], fmt.Sprint(header[0]))
}

func isBlank(cols []string) bool {
	for _, c := range cols {
		if c != "" {
			return false
		}
	}
	return true
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}
