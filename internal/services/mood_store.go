package services

import (
	"context"
	"fmt"

	"lifedesk/internal/backend"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/state"
)

type MoodState struct {
	state.Status
	// TodayMood is nil when the selected date has no entry yet.
	TodayMood *core.Mood      `json:"todayMood"`
	Moods     []core.Mood     `json:"moods"`
	Stats     *core.MoodStats `json:"stats"`
}

type MoodStore struct {
	repo  backend.MoodRepository
	opts  Options
	log   *log.Logger
	locks *KeyedMutex
	state *state.Container[MoodState]
}

func NewMoodStore(repo backend.MoodRepository, opts Options) *MoodStore {
	opts = opts.withDefaults()
	return &MoodStore{
		repo:  repo,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentMood),
		locks: NewKeyedMutex(),
		state: state.New(MoodState{Moods: []core.Mood{}}),
	}
}

func (s *MoodStore) State() *state.Container[MoodState] {
	return s.state
}

// GetByDate loads the user's entry for date. A missing entry is not an error.
func (s *MoodStore) GetByDate(ctx context.Context, date core.Date, userID string) (*core.Mood, error) {
	t := s.state.BeginLane("day")
	s.state.Dispatch(func(st *MoodState) { st.Start("day") })

	mood, err := s.repo.FindMoodByDate(ctx, userID, date)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load mood",
			log.FieldUserID, userID,
			log.FieldDate, date.String(),
			log.FieldError, err)
		s.state.Commit(t, func(st *MoodState) { st.Done("day", userMessage("Failed to load mood", err)) })
		return nil, fmt.Errorf("find mood %s: %w", date, err)
	}

	s.state.Commit(t, func(st *MoodState) {
		st.TodayMood = mood
		st.Done("day", "")
	})
	return mood, nil
}

// Today is GetByDate for the calendar's current day.
func (s *MoodStore) Today(ctx context.Context, userID string) (*core.Mood, error) {
	return s.GetByDate(ctx, s.opts.today(), userID)
}

// List loads every mood of userID, most recent date first.
func (s *MoodStore) List(ctx context.Context, userID string) ([]core.Mood, error) {
	t := s.state.BeginLane("list")
	s.state.Dispatch(func(st *MoodState) { st.Start("list") })

	moods, err := s.repo.ListMoods(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list moods", log.FieldUserID, userID, log.FieldError, err)
		s.state.Commit(t, func(st *MoodState) { st.Done("list", userMessage("Failed to load mood history", err)) })
		return nil, fmt.Errorf("list moods: %w", err)
	}

	moods = core.SortMoodsByDateDesc(moods)
	s.state.Commit(t, func(st *MoodState) {
		st.Moods = moods
		st.Done("list", "")
	})
	return moods, nil
}

// ComputeStats tallies the user's moods. No history yields Total 0.
func (s *MoodStore) ComputeStats(ctx context.Context, userID string) (core.MoodStats, error) {
	t := s.state.BeginLane("stats")
	s.state.Dispatch(func(st *MoodState) { st.Start("stats") })

	moods, err := s.repo.ListMoods(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load moods for stats", log.FieldUserID, userID, log.FieldError, err)
		s.state.Commit(t, func(st *MoodState) { st.Done("stats", userMessage("Failed to load mood statistics", err)) })
		return core.MoodStats{}, fmt.Errorf("mood stats: %w", err)
	}

	stats := core.MoodStatistics(moods)
	s.state.Commit(t, func(st *MoodState) {
		st.Stats = &stats
		st.Done("stats", "")
	})
	s.log.DebugContext(ctx, "Mood stats computed",
		log.FieldUserID, userID,
		log.FieldCount, stats.Total,
		log.FieldOperation, log.OpStats)
	return stats, nil
}

// Upsert records emoji and memo for the user's date: the existing entry is
// updated, otherwise one is created. Calls for the same user and date are
// serialized within this process; two processes can still race.
func (s *MoodStore) Upsert(ctx context.Context, emoji core.MoodEmoji, memo string, date core.Date, userID string) (core.Mood, error) {
	in := core.MoodInput{Emoji: emoji, Memo: memo, Date: date, UserID: userID}
	if err := in.Validate(); err != nil {
		s.state.Dispatch(func(st *MoodState) { st.Fail("day", userMessage("Failed to save mood", err)) })
		return core.Mood{}, err
	}

	unlock := s.locks.Lock(userID + "|" + date.String())
	defer unlock()

	// Any in-flight day fetch is older than this write.
	t := s.state.BeginLane("day")
	s.state.Dispatch(func(st *MoodState) { st.Start("day") })

	existing, err := s.repo.FindMoodByDate(ctx, userID, date)
	if err != nil {
		s.state.Commit(t, func(st *MoodState) { st.Done("day", userMessage("Failed to save mood", err)) })
		return core.Mood{}, fmt.Errorf("find mood %s: %w", date, err)
	}

	var (
		mood core.Mood
		op   = log.OpCreate
	)
	if existing != nil {
		op = log.OpUpdate
		mood, err = s.repo.UpdateMood(ctx, existing.ID, in)
	} else {
		mood, err = s.repo.CreateMood(ctx, in)
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to save mood",
			log.FieldUserID, userID,
			log.FieldDate, date.String(),
			log.FieldOperation, op,
			log.FieldError, err)
		s.state.Commit(t, func(st *MoodState) { st.Done("day", userMessage("Failed to save mood", err)) })
		return core.Mood{}, fmt.Errorf("%s mood: %w", op, err)
	}

	// A history fetched before the write would drop the saved entry.
	s.state.BeginLane("list")
	s.state.Commit(t, func(st *MoodState) {
		st.TodayMood = &mood
		next := make([]core.Mood, 0, len(st.Moods)+1)
		next = append(next, mood)
		for _, m := range st.Moods {
			if m.ID != mood.ID {
				next = append(next, m)
			}
		}
		st.Moods = core.SortMoodsByDateDesc(next)
		st.Done("day", "")
	})
	s.log.InfoContext(ctx, "Mood saved",
		log.FieldUserID, userID,
		log.FieldDate, date.String(),
		log.FieldOperation, op)
	return mood, nil
}
