package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bytedance/sonic"

	"lifedesk/internal/config"
	"lifedesk/internal/core"
	"lifedesk/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db     *sql.DB
	logger *log.Logger
}

func NewSQLiteStore(dbPath string, logger *log.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = log.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	logger = logger.WithComponent(log.ComponentStorage)
	logger.Debug("Local store schema ready", "path", dbPath, "version", version)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return value, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query, args := `SELECT key FROM kv ORDER BY key`, []any{}
	if prefix != "" {
		if upper, ok := prefixEnd(prefix); ok {
			query, args = `SELECT key FROM kv WHERE key >= ? AND key < ? ORDER BY key`, []any{prefix, upper}
		} else {
			query, args = `SELECT key FROM kv WHERE key >= ? ORDER BY key`, []any{prefix}
		}
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// prefixEnd returns the smallest string greater than every key starting with
// prefix, in byte order. ok is false when no such bound exists.
func prefixEnd(prefix string) (string, bool) {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return string(b[:i+1]), true
		}
	}
	return "", false
}

func (s *SQLiteStore) SaveMonthSnapshot(ctx context.Context, userID string, stats core.MonthlyStatistics) error {
	payload, err := sonic.ConfigDefault.MarshalToString(stats)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO month_snapshots (user_id, year_month, total_income, total_expense, payload, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(user_id, year_month) DO UPDATE SET
			total_income = excluded.total_income,
			total_expense = excluded.total_expense,
			payload = excluded.payload,
			updated_at = CURRENT_TIMESTAMP`,
		userID, stats.YearMonth, int64(stats.Total.TotalIncome), int64(stats.Total.TotalExpense), payload)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%s: %w", userID, stats.YearMonth, err)
	}

	s.logger.DebugContext(ctx, "Month snapshot saved",
		log.FieldUserID, userID,
		log.FieldYearMonth, stats.YearMonth)
	return nil
}

func (s *SQLiteStore) MonthSnapshot(ctx context.Context, userID, yearMonth string) (core.MonthlyStatistics, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM month_snapshots WHERE user_id = ? AND year_month = ?`,
		userID, yearMonth).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return core.MonthlyStatistics{}, ErrNotFound
	}
	if err != nil {
		return core.MonthlyStatistics{}, fmt.Errorf("get snapshot %s/%s: %w", userID, yearMonth, err)
	}

	var stats core.MonthlyStatistics
	if err := sonic.ConfigDefault.UnmarshalFromString(payload, &stats); err != nil {
		return core.MonthlyStatistics{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return stats, nil
}

// Open selects the local store named by the configuration.
func Open(cfg *config.Config, logger *log.Logger) (Store, error) {
	switch cfg.LocalStore {
	case config.LocalStoreMemory:
		return NewMemory(), nil
	case config.LocalStoreSQLite:
		return NewSQLiteStore(cfg.LocalDBPath, logger)
	default:
		return nil, fmt.Errorf("unsupported local store: %s", cfg.LocalStore)
	}
}
