// Package app composes the four stores for one signed-in user.
package app

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"lifedesk/internal/backend"
	"lifedesk/internal/calendar"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/services"
	"lifedesk/internal/storage"
)

// Deps are shared by every session of a process.
type Deps struct {
	Provider  backend.Provider
	Local     storage.LocalStore
	Calendar  calendar.Policy
	Clock     calendar.Clock
	Publisher services.ChangePublisher
	Logger    *log.Logger
}

// Session is the application root for one token: the stores act on the
// backend with that token and mirror into the user's own namespace of the
// local store.
type Session struct {
	User  core.User
	token string

	Todos        *services.TodoStore
	Moods        *services.MoodStore
	Words        *services.WordStore
	Transactions *services.TransactionStore

	logger *log.Logger
}

// Overview is what the home screen needs after sign-in.
type Overview struct {
	Todos     []core.Todo        `json:"todos"`
	TodayMood *core.Mood         `json:"todayMood"`
	Dashboard core.DashboardData `json:"dashboard"`
	Word      *core.Word         `json:"word"`
	NoWords   bool               `json:"noWords"`
}

// NewSession builds the stores for user and restores their local mirrors.
// Word-of-day entries left over from earlier days are pruned.
func NewSession(ctx context.Context, deps Deps, token string, user core.User) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = log.Nop()
	}
	local := deps.Local
	if local == nil {
		local = storage.NewMemory()
	}

	opts := services.Options{
		Local:     storage.NewNamespaced(local, "user/"+user.UserID()),
		Calendar:  deps.Calendar,
		Clock:     deps.Clock,
		Publisher: deps.Publisher,
		Logger:    logger.With(log.FieldUserID, user.UserID()),
	}
	repo := deps.Provider.ForToken(token)

	s := &Session{
		User:         user,
		token:        token,
		Todos:        services.NewTodoStore(repo, opts),
		Moods:        services.NewMoodStore(repo, opts),
		Words:        services.NewWordStore(repo, opts),
		Transactions: services.NewTransactionStore(repo, opts),
		logger:       logger.WithComponent(log.ComponentApp),
	}

	s.Todos.Restore(ctx)
	s.Words.Restore(ctx)
	if n, err := s.Words.PruneWordCache(ctx); err != nil {
		s.logger.WarnContext(ctx, "Failed to prune word cache", log.FieldUserID, s.UserID(), log.FieldError, err)
	} else if n > 0 {
		s.logger.DebugContext(ctx, "Pruned word cache", log.FieldUserID, s.UserID(), log.FieldCount, n)
	}
	return s
}

// UserID is the owner id the stores filter by.
func (s *Session) UserID() string {
	return s.User.UserID()
}

// Token is the bearer token the session acts with.
func (s *Session) Token() string {
	return s.token
}

// Refresh loads todos, today's mood, the dashboard and the word of the day
// concurrently. A level without words is not an error.
func (s *Session) Refresh(ctx context.Context) (Overview, error) {
	userID := s.UserID()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.Todos.List(gctx, userID)
	})
	g.Go(func() error {
		_, err := s.Moods.Today(gctx, userID)
		return err
	})
	g.Go(func() error {
		_, err := s.Transactions.Dashboard(gctx, userID)
		return err
	})
	g.Go(func() error {
		if _, err := s.Words.FetchWordOfDay(gctx); err != nil && !errors.Is(err, core.ErrNoWords) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.Words.SyncFavorites(gctx, userID)
	})

	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(ctx, "Refresh failed", log.FieldUserID, userID, log.FieldError, err)
		return s.Overview(), fmt.Errorf("refresh: %w", err)
	}
	return s.Overview(), nil
}

// Overview reads the current state of the stores without calling the backend.
func (s *Session) Overview() Overview {
	todos := s.Todos.State().Get()
	moods := s.Moods.State().Get()
	txs := s.Transactions.State().Get()
	words := s.Words.State().Get()

	out := Overview{
		Todos:     todos.Todos,
		TodayMood: moods.TodayMood,
		Word:      words.Word,
		NoWords:   words.NoData,
	}
	if txs.Dashboard != nil {
		out.Dashboard = *txs.Dashboard
	}
	return out
}

// Close clears the user's todo mirror on sign-out.
func (s *Session) Close(ctx context.Context) {
	s.Todos.Reset(ctx)
	s.logger.InfoContext(ctx, "Session closed", log.FieldUserID, s.UserID())
}
