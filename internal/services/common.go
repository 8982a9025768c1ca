// Package services holds the four stores. Each store owns a state container,
// talks to the backend through its port and records a readable error message
// in state when an action fails.
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lifedesk/internal/amqp"
	"lifedesk/internal/calendar"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/storage"
	"lifedesk/internal/strapi"
)

// ChangePublisher announces transaction changes to background consumers.
type ChangePublisher interface {
	PublishTransactionChanged(ctx context.Context, msg *amqp.TransactionChangedMessage) error
}

// Options are the collaborators shared by every store.
type Options struct {
	Local     storage.LocalStore
	Calendar  calendar.Policy
	Clock     calendar.Clock
	Publisher ChangePublisher
	Logger    *log.Logger
}

func (o Options) withDefaults() Options {
	if o.Local == nil {
		o.Local = storage.NewMemory()
	}
	if o.Calendar == nil {
		o.Calendar = calendar.BusinessDay(calendar.DefaultOffsetHours)
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = log.Nop()
	}
	return o
}

func (o Options) today() core.Date {
	return o.Calendar.Today(o.Clock())
}

// KeyedMutex serializes work per key. Entries are dropped when no holder or
// waiter remains.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

// userMessage turns err into the text shown next to the failed action.
func userMessage(action string, err error) string {
	if err == nil {
		return ""
	}
	var apiErr *strapi.APIError
	var netErr *strapi.NetworkError
	switch {
	case errors.As(err, &netErr):
		return fmt.Sprintf("%s: the server could not be reached", action)
	case errors.As(err, &apiErr) && apiErr.Message != "":
		return fmt.Sprintf("%s: %s", action, apiErr.Message)
	case errors.As(err, &apiErr):
		return fmt.Sprintf("%s (status %d)", action, apiErr.Status)
	default:
		return fmt.Sprintf("%s: %v", action, err)
	}
}

// persist writes a local mirror. Local failures are logged and never fail
// the action that triggered them.
func persist(ctx context.Context, o Options, key string, value any) {
	if err := storage.SetJSON(ctx, o.Local, key, value); err != nil {
		o.Logger.WarnContext(ctx, "Failed to persist local state",
			log.FieldCacheKey, key,
			log.FieldError, err)
	}
}

func forget(ctx context.Context, o Options, key string) {
	if err := o.Local.Delete(ctx, key); err != nil {
		o.Logger.WarnContext(ctx, "Failed to remove local state",
			log.FieldCacheKey, key,
			log.FieldError, err)
	}
}
