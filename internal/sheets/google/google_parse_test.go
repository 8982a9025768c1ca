package google

import (
	"testing"

	"lifedesk/internal/core"
	ports "lifedesk/internal/sheets"
)

func TestParseRows(t *testing.T) {
	values := [][]interface{}{
		{"User", "Date", "Type", "Category", "Amount", "Memo", "Transaction ID"},
		{"3", "2025-03-01", "expense", "food", "12,000", "lunch", "41"},
		{"3", "2025-03-02", "income", "salary", 2500000, "", 42},
		{"3", "2025-03-03", "expense", "broken", "n/a", "", "43"},
		{"", ""},
	}
	rows := parseRows(values)
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d: %+v", len(rows), rows)
	}
	if rows[0].Amount != 12000 || rows[0].TransactionID != 41 || rows[0].Memo != "lunch" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].Type != core.Income || rows[1].Amount != 2500000 || rows[1].TransactionID != 42 {
		t.Fatalf("unexpected second row: %+v", rows[1])
	}
}

func TestMergeRowsReplacesOnlyTargetMonth(t *testing.T) {
	existing := [][]interface{}{
		{"User", "Date", "Type", "Category", "Amount", "Memo", "Transaction ID"},
		{"3", "2025-02-28", "expense", "food", 100, "", 1},
		{"3", "2025-03-01", "expense", "food", 200, "", 2},
		{"4", "2025-03-01", "expense", "rent", 300, "", 3},
		{},
	}
	fresh := encodeRows([]ports.ExportedRow{
		{UserID: "3", Date: "2025-03-05", Type: core.Expense, Category: "taxi", Amount: 50, TransactionID: 9},
	})
	merged := mergeRows(existing, rowsHeader, func(cols []string) bool {
		return safeGet(cols, 0) == "3" && safeGet(cols, 1)[:7] == "2025-03"
	}, fresh)

	if len(merged) != 4 {
		t.Fatalf("expected header + 3 rows, got %d: %v", len(merged), merged)
	}
	if merged[0][0] != "User" {
		t.Fatalf("header missing: %v", merged[0])
	}
	got := parseRows(merged)
	ids := []int64{}
	for _, r := range got {
		ids = append(ids, r.TransactionID)
	}
	want := []int64{1, 3, 9}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("ids = %v, want %v", ids, want)
		}
	}
}

func TestMergeRowsWithoutHeader(t *testing.T) {
	existing := [][]interface{}{
		{"4", "2025-03", 10, 5, 5},
	}
	merged := mergeRows(existing, summaryHeader, func(cols []string) bool { return false }, nil)
	if len(merged) != 2 || merged[1][0] != "4" {
		t.Fatalf("unexpected merge: %v", merged)
	}
}

func TestEncodeSummary(t *testing.T) {
	stats := core.MonthlyStatistics{
		YearMonth: "2025-03",
		Total:     core.Summary{TotalIncome: 5000, TotalExpense: 1200, Balance: 3800},
	}
	row := encodeSummary("3", stats)
	if row[0] != "3" || row[1] != "2025-03" || row[2] != int64(5000) || row[4] != int64(3800) {
		t.Fatalf("unexpected summary row: %v", row)
	}
}
