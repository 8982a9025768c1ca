package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"lifedesk/internal/core"
	ports "lifedesk/internal/sheets"
)

// Store keeps exported months in memory, keyed by user and month.
type Store struct {
	mu      sync.Mutex
	rows    map[string][]ports.ExportedRow
	totals  map[string]core.Summary
	exports int
}

var (
	_ ports.MonthExporter = (*Store)(nil)
	_ ports.MonthReader   = (*Store)(nil)
)

func New() *Store {
	return &Store{
		rows:   map[string][]ports.ExportedRow{},
		totals: map[string]core.Summary{},
	}
}

// ExportMonth replaces the stored month and returns a synthetic reference.
func (s *Store) ExportMonth(_ context.Context, userID string, stats core.MonthlyStatistics, txs []core.Transaction) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", core.ErrEmptyUser
	}
	if len(stats.YearMonth) != 7 {
		return "", fmt.Errorf("invalid year-month %q", stats.YearMonth)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, stats.YearMonth)
	s.rows[k] = ports.RowsFor(userID, txs)
	s.totals[k] = stats.Total
	s.exports++
	return fmt.Sprintf("mem:%s:%d", k, s.exports), nil
}

// ReadMonth returns a copy of the last export for the month.
func (s *Store) ReadMonth(_ context.Context, userID, yearMonth string) ([]ports.ExportedRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ports.ExportedRow(nil), s.rows[key(userID, yearMonth)]...), nil
}

// Totals returns the summary written with the last export, if any.
func (s *Store) Totals(userID, yearMonth string) (core.Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum, ok := s.totals[key(userID, yearMonth)]
	return sum, ok
}

// Exports counts successful ExportMonth calls.
func (s *Store) Exports() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exports
}

func key(userID, yearMonth string) string {
	return userID + "|" + yearMonth
}
