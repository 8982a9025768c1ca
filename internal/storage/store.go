// Package storage persists the small amount of client state that survives a
// restart: store mirrors, the word-of-day cache, the selected level and the
// monthly statistics snapshots written by the worker.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/bytedance/sonic"

	"lifedesk/internal/core"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("key not found")

// LocalStore is a string-keyed blob store.
type LocalStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists keys starting with prefix in ascending order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// SnapshotStore keeps the latest statistics computed for a user's month.
type SnapshotStore interface {
	SaveMonthSnapshot(ctx context.Context, userID string, stats core.MonthlyStatistics) error
	MonthSnapshot(ctx context.Context, userID, yearMonth string) (core.MonthlyStatistics, error)
}

// Store is everything a local persistence backend provides.
type Store interface {
	LocalStore
	SnapshotStore
	Close() error
}

// GetJSON decodes the value at key into a T. found is false when the key is missing.
func GetJSON[T any](ctx context.Context, s LocalStore, key string) (value T, found bool, err error) {
	raw, err := s.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return value, false, nil
	}
	if err != nil {
		return value, false, err
	}
	if err := sonic.ConfigDefault.Unmarshal(raw, &value); err != nil {
		return value, false, fmt.Errorf("decode %s: %w", key, err)
	}
	return value, true, nil
}

// SetJSON encodes value and stores it at key.
func SetJSON(ctx context.Context, s LocalStore, key string, value any) error {
	raw, err := sonic.ConfigDefault.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return s.Set(ctx, key, raw)
}

// Namespaced scopes every key of an underlying store under prefix so several
// users can share one database. Keys returned by Keys have the prefix removed.
type Namespaced struct {
	inner  LocalStore
	prefix string
}

func NewNamespaced(inner LocalStore, namespace string) *Namespaced {
	return &Namespaced{inner: inner, prefix: namespace + "/"}
}

func (n *Namespaced) Get(ctx context.Context, key string) ([]byte, error) {
	return n.inner.Get(ctx, n.prefix+key)
}

func (n *Namespaced) Set(ctx context.Context, key string, value []byte) error {
	return n.inner.Set(ctx, n.prefix+key, value)
}

func (n *Namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.prefix+key)
}

func (n *Namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Keys(ctx, n.prefix+prefix)
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = strings.TrimPrefix(k, n.prefix)
	}
	return keys, nil
}

// Memory is a process-local Store.
type Memory struct {
	mu        sync.RWMutex
	values    map[string][]byte
	snapshots map[string]core.MonthlyStatistics
}

func NewMemory() *Memory {
	return &Memory{
		values:    make(map[string][]byte),
		snapshots: make(map[string]core.MonthlyStatistics),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0)
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) SaveMonthSnapshot(_ context.Context, userID string, stats core.MonthlyStatistics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[userID+"|"+stats.YearMonth] = stats
	return nil
}

func (m *Memory) MonthSnapshot(_ context.Context, userID, yearMonth string) (core.MonthlyStatistics, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats, ok := m.snapshots[userID+"|"+yearMonth]
	if !ok {
		return core.MonthlyStatistics{}, ErrNotFound
	}
	return stats, nil
}

func (m *Memory) Close() error { return nil }
