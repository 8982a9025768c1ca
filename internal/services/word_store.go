package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"

	"golang.org/x/sync/singleflight"

	"lifedesk/internal/backend"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/state"
	"lifedesk/internal/storage"
)

// WordStorageKey holds the selected level and the favorites mirror.
const WordStorageKey = "word-store"

type WordState struct {
	state.Status
	Level core.Level `json:"level"`
	// Word is the word of the day; nil until fetched or when NoData is set.
	Word *core.Word `json:"word"`
	// NoData is set when the selected level has no words at all.
	NoData    bool        `json:"noData"`
	Words     []core.Word `json:"words"`
	Favorites []int64     `json:"favorites"`
}

type wordMirror struct {
	Level     core.Level `json:"level"`
	Favorites []int64    `json:"favorites"`
}

type WordStore struct {
	repo   backend.WordRepository
	opts   Options
	log    *log.Logger
	locks  *KeyedMutex
	flight singleflight.Group
	pick   func(n int) int
	state  *state.Container[WordState]
}

func NewWordStore(repo backend.WordRepository, opts Options) *WordStore {
	opts = opts.withDefaults()
	return &WordStore{
		repo:  repo,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentWord),
		locks: NewKeyedMutex(),
		pick:  rand.IntN,
		state: state.New(WordState{
			Level:     core.Easy,
			Words:     []core.Word{},
			Favorites: []int64{},
		}),
	}
}

// WithPicker replaces the uniform random choice of the word of the day.
func (s *WordStore) WithPicker(pick func(n int) int) *WordStore {
	s.pick = pick
	return s
}

func (s *WordStore) State() *state.Container[WordState] {
	return s.state
}

// WordCacheKey is the day-cache key for level on day, e.g. "easy-2025-04-10".
func WordCacheKey(level core.Level, day core.Date) string {
	return strings.ToLower(string(level)) + "-" + day.String()
}

// Restore loads the selected level and favorites mirror.
func (s *WordStore) Restore(ctx context.Context) {
	m, found, err := storage.GetJSON[wordMirror](ctx, s.opts.Local, WordStorageKey)
	if err != nil {
		s.log.WarnContext(ctx, "Ignoring unreadable word mirror", log.FieldError, err)
		return
	}
	if !found {
		return
	}
	s.state.Dispatch(func(st *WordState) {
		if m.Level.Validate() == nil {
			st.Level = m.Level
		}
		if m.Favorites != nil {
			st.Favorites = m.Favorites
		}
	})
}

// SetLevel selects the difficulty used by FetchWordOfDay.
func (s *WordStore) SetLevel(ctx context.Context, level core.Level) error {
	if err := level.Validate(); err != nil {
		return err
	}
	s.state.Dispatch(func(st *WordState) { st.Level = level })
	s.persistMirror(ctx)
	return nil
}

// FetchWordOfDay returns the word cached for the selected level and today's
// date, picking and caching one when the day has none yet. Concurrent calls
// for the same day share one fetch, which keeps running when the caller that
// started it goes away.
func (s *WordStore) FetchWordOfDay(ctx context.Context) (core.Word, error) {
	level := s.state.Get().Level
	key := WordCacheKey(level, s.opts.today())

	t := s.state.BeginLane("word")
	s.state.Dispatch(func(st *WordState) { st.Start("word") })

	// The shared fetch outlives any single caller; each caller only stops
	// waiting when its own context ends.
	shared := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (any, error) {
		return s.wordOfDay(shared, level, key)
	})
	var res singleflight.Result
	select {
	case <-ctx.Done():
		s.state.Commit(t, func(st *WordState) { st.Done("word", "") })
		return core.Word{}, ctx.Err()
	case res = <-ch:
	}
	v, err := res.Val, res.Err
	if errors.Is(err, core.ErrNoWords) {
		s.log.WarnContext(ctx, "No words for level", log.FieldLevel, string(level))
		s.state.Commit(t, func(st *WordState) {
			st.Word = nil
			st.NoData = true
			st.Done("word", "")
		})
		return core.Word{}, err
	}
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to fetch word of the day",
			log.FieldLevel, string(level),
			log.FieldError, err)
		s.state.Commit(t, func(st *WordState) { st.Done("word", userMessage("Failed to load today's word", err)) })
		return core.Word{}, fmt.Errorf("word of the day: %w", err)
	}

	word := v.(core.Word)
	s.state.Commit(t, func(st *WordState) {
		st.Word = &word
		st.NoData = false
		st.Done("word", "")
	})
	return word, nil
}

func (s *WordStore) wordOfDay(ctx context.Context, level core.Level, key string) (core.Word, error) {
	cached, found, err := storage.GetJSON[core.Word](ctx, s.opts.Local, key)
	if err != nil {
		s.log.WarnContext(ctx, "Ignoring unreadable word cache", log.FieldCacheKey, key, log.FieldError, err)
	}
	if found {
		return cached, nil
	}

	words, err := s.repo.ListWordsByLevel(ctx, level)
	if err != nil {
		return core.Word{}, err
	}
	if len(words) == 0 {
		return core.Word{}, fmt.Errorf("%w %s", core.ErrNoWords, level)
	}

	word := words[s.pick(len(words))]
	persist(ctx, s.opts, key, word)
	s.log.InfoContext(ctx, "Picked word of the day",
		log.FieldCacheKey, key,
		log.FieldEntityID, word.ID)
	return word, nil
}

// FetchWordsByLevel loads the selected level's full list for browsing.
func (s *WordStore) FetchWordsByLevel(ctx context.Context) ([]core.Word, error) {
	level := s.state.Get().Level
	t := s.state.BeginLane("words")
	s.state.Dispatch(func(st *WordState) { st.Start("words") })

	words, err := s.repo.ListWordsByLevel(ctx, level)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list words", log.FieldLevel, string(level), log.FieldError, err)
		s.state.Commit(t, func(st *WordState) { st.Done("words", userMessage("Failed to load words", err)) })
		return nil, fmt.Errorf("list words: %w", err)
	}

	s.state.Commit(t, func(st *WordState) {
		st.Words = words
		st.Done("words", "")
	})
	return words, nil
}

// IsFavorite is a local lookup; it never calls the backend.
func (s *WordStore) IsFavorite(wordID int64) bool {
	return slices.Contains(s.state.Get().Favorites, wordID)
}

// ToggleFavorite flips the favorite flag of wordID for userID and reports the
// new value. The local set only changes after the backend call succeeds.
func (s *WordStore) ToggleFavorite(ctx context.Context, userID string, wordID int64) (bool, error) {
	unlock := s.locks.Lock(fmt.Sprintf("%s|%d", userID, wordID))
	defer unlock()

	s.state.Dispatch(func(st *WordState) { st.Start("toggle") })

	if s.IsFavorite(wordID) {
		if err := s.removeFavorite(ctx, userID, wordID); err != nil {
			s.log.ErrorContext(ctx, "Failed to remove favorite",
				log.FieldUserID, userID,
				log.FieldEntityID, wordID,
				log.FieldError, err)
			s.state.Dispatch(func(st *WordState) { st.Done("toggle", userMessage("Failed to update favorites", err)) })
			return true, err
		}
		s.state.Dispatch(func(st *WordState) {
			st.Favorites = slices.DeleteFunc(slices.Clone(st.Favorites), func(id int64) bool { return id == wordID })
			st.Done("toggle", "")
		})
		s.persistMirror(ctx)
		return false, nil
	}

	if _, err := s.repo.CreateFavorite(ctx, userID, wordID); err != nil {
		s.log.ErrorContext(ctx, "Failed to add favorite",
			log.FieldUserID, userID,
			log.FieldEntityID, wordID,
			log.FieldError, err)
		s.state.Dispatch(func(st *WordState) { st.Done("toggle", userMessage("Failed to update favorites", err)) })
		return false, fmt.Errorf("create favorite: %w", err)
	}
	s.state.Dispatch(func(st *WordState) {
		st.Favorites = append(slices.Clone(st.Favorites), wordID)
		st.Done("toggle", "")
	})
	s.persistMirror(ctx)
	return true, nil
}

// removeFavorite deletes the join record. A record already gone on the
// server counts as removed.
func (s *WordStore) removeFavorite(ctx context.Context, userID string, wordID int64) error {
	fav, err := s.repo.FindFavorite(ctx, userID, wordID)
	if err != nil {
		return fmt.Errorf("find favorite: %w", err)
	}
	if fav == nil {
		return nil
	}
	if err := s.repo.DeleteFavorite(ctx, fav.ID); err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	return nil
}

// SyncFavorites rebuilds the local favorites mirror from the backend.
func (s *WordStore) SyncFavorites(ctx context.Context, userID string) error {
	t := s.state.BeginLane("favorites")
	s.state.Dispatch(func(st *WordState) { st.Start("favorites") })

	favs, err := s.repo.ListFavorites(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to sync favorites", log.FieldUserID, userID, log.FieldError, err)
		s.state.Commit(t, func(st *WordState) { st.Done("favorites", userMessage("Failed to load favorites", err)) })
		return fmt.Errorf("list favorites: %w", err)
	}

	ids := make([]int64, 0, len(favs))
	for _, f := range favs {
		if id := f.Attributes.Word.Int64(); id != 0 && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	if s.state.Commit(t, func(st *WordState) {
		st.Favorites = ids
		st.Done("favorites", "")
	}) {
		s.persistMirror(ctx)
	}
	s.log.DebugContext(ctx, "Favorites synced",
		log.FieldUserID, userID,
		log.FieldCount, len(ids),
		log.FieldOperation, log.OpSync)
	return nil
}

// PruneWordCache removes day-cache entries for any day other than today and
// returns how many were dropped.
func (s *WordStore) PruneWordCache(ctx context.Context) (int, error) {
	today := s.opts.today().String()
	keys, err := s.opts.Local.Keys(ctx, "")
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}

	removed := 0
	for _, key := range keys {
		day, ok := wordCacheDay(key)
		if !ok || day == today {
			continue
		}
		if err := s.opts.Local.Delete(ctx, key); err != nil {
			return removed, fmt.Errorf("delete %s: %w", key, err)
		}
		removed++
		s.log.DebugContext(ctx, "Pruned stale word cache", log.FieldCacheKey, key)
	}
	return removed, nil
}

// wordCacheDay extracts the date of a day-cache key. The first segment must
// be a level; the last three form the date.
func wordCacheDay(key string) (string, bool) {
	parts := strings.Split(key, "-")
	if len(parts) < 4 {
		return "", false
	}
	if _, err := core.ParseLevel(parts[0]); err != nil {
		return "", false
	}
	return strings.Join(parts[len(parts)-3:], "-"), true
}

func (s *WordStore) persistMirror(ctx context.Context) {
	st := s.state.Get()
	persist(ctx, s.opts, WordStorageKey, wordMirror{Level: st.Level, Favorites: st.Favorites})
}
