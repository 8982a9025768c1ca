package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedesk/internal/backend"
	"lifedesk/internal/backend/memory"
	"lifedesk/internal/core"
	"lifedesk/internal/storage"
)

type countingWords struct {
	backend.WordRepository
	calls atomic.Int32
	delay time.Duration
}

func (c *countingWords) ListWordsByLevel(ctx context.Context, level core.Level) ([]core.Word, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.WordRepository.ListWordsByLevel(ctx, level)
}

type gatedWords struct {
	backend.WordRepository
	calls     atomic.Int32
	words     *gate
	wordsErr  error
	favorites *gate
}

func (g *gatedWords) ListWordsByLevel(ctx context.Context, level core.Level) ([]core.Word, error) {
	g.calls.Add(1)
	if err := g.words.wait(ctx); err != nil {
		return nil, err
	}
	if g.wordsErr != nil {
		return nil, g.wordsErr
	}
	return g.WordRepository.ListWordsByLevel(ctx, level)
}

func (g *gatedWords) ListFavorites(ctx context.Context, userID string) ([]core.Favorite, error) {
	if err := g.favorites.wait(ctx); err != nil {
		return nil, err
	}
	return g.WordRepository.ListFavorites(ctx, userID)
}

type movableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *movableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *movableClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func seededWords(t *testing.T) *memory.Store {
	return memory.NewFromFiles(t.TempDir())
}

func cyclingPicker() func(int) int {
	var n int
	return func(size int) int {
		i := n % size
		n++
		return i
	}
}

func TestWordOfDayIsStableWithinTheDay(t *testing.T) {
	ctx := context.Background()
	// 23:59:59 on 2025-04-09 in the +9h calendar
	clock := &movableClock{now: time.Date(2025, 4, 9, 14, 59, 59, 0, time.UTC)}
	local := storage.NewMemory()
	store := NewWordStore(seededWords(t), Options{Local: local, Clock: clock.Now}).WithPicker(cyclingPicker())

	first, err := store.FetchWordOfDay(ctx)
	require.NoError(t, err)
	again, err := store.FetchWordOfDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	_, err = local.Get(ctx, "easy-2025-04-09")
	require.NoError(t, err, "word is cached under the level-date key")

	// a fresh store over the same local cache still returns the same word
	reloaded := NewWordStore(seededWords(t), Options{Local: local, Clock: clock.Now}).WithPicker(cyclingPicker())
	cached, err := reloaded.FetchWordOfDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Attributes.Word, cached.Attributes.Word)

	clock.Set(time.Date(2025, 4, 9, 15, 0, 0, 0, time.UTC))
	next, err := store.FetchWordOfDay(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.Attributes.Word, next.Attributes.Word)
	_, err = local.Get(ctx, "easy-2025-04-10")
	assert.NoError(t, err)
}

func TestWordOfDayEmptyLevelIsNoData(t *testing.T) {
	ctx := context.Background()
	store := NewWordStore(memory.New(nil), Options{})

	_, err := store.FetchWordOfDay(ctx)
	assert.ErrorIs(t, err, core.ErrNoWords)
	st := store.State().Get()
	assert.True(t, st.NoData)
	assert.Nil(t, st.Word)
	assert.Empty(t, st.Error)
	assert.False(t, st.Loading)
}

func TestWordOfDayCollapsesConcurrentFetches(t *testing.T) {
	ctx := context.Background()
	repo := &countingWords{WordRepository: seededWords(t), delay: 20 * time.Millisecond}
	store := NewWordStore(repo, Options{})

	var wg sync.WaitGroup
	words := make([]core.Word, 8)
	for i := range words {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := store.FetchWordOfDay(ctx)
			assert.NoError(t, err)
			words[i] = w
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, repo.calls.Load(), int32(2))
	for _, w := range words[1:] {
		assert.Equal(t, words[0].ID, w.ID)
	}
}

func TestWordOfDaySurvivesCancelledFirstCaller(t *testing.T) {
	words := newGate()
	repo := &gatedWords{WordRepository: seededWords(t), words: words}
	store := NewWordStore(repo, Options{})

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	errA := make(chan error, 1)
	go func() {
		_, err := store.FetchWordOfDay(ctxA)
		errA <- err
	}()
	<-words.entered

	type result struct {
		word core.Word
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		w, err := store.FetchWordOfDay(context.Background())
		resB <- result{w, err}
	}()
	// give the second caller time to join the running fetch
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)

	close(words.release)
	b := <-resB
	require.NoError(t, b.err)
	assert.NotZero(t, b.word.ID)
	assert.Equal(t, int32(1), repo.calls.Load(), "both callers shared one fetch")

	st := store.State().Get()
	require.NotNil(t, st.Word)
	assert.Equal(t, b.word.ID, st.Word.ID)
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)
}

func TestWordStoreKeepsFailureOfConcurrentLane(t *testing.T) {
	ctx := context.Background()
	words, favorites := newGate(), newGate()
	repo := &gatedWords{
		WordRepository: seededWords(t),
		words:          words,
		wordsErr:       errors.New("offline"),
		favorites:      favorites,
	}
	store := NewWordStore(repo, Options{})

	fetchErr := make(chan error, 1)
	go func() {
		_, err := store.FetchWordOfDay(ctx)
		fetchErr <- err
	}()
	<-words.entered

	syncErr := make(chan error, 1)
	go func() { syncErr <- store.SyncFavorites(ctx, "1") }()
	<-favorites.entered

	close(words.release)
	require.Error(t, <-fetchErr)
	assert.True(t, store.State().Get().Loading, "the favorites sync is still running")

	close(favorites.release)
	require.NoError(t, <-syncErr)

	st := store.State().Get()
	assert.False(t, st.Loading)
	assert.Contains(t, st.Error, "Failed to load today's word")
	assert.Empty(t, st.LaneError("favorites"))
}

func TestSetLevelChangesCacheKey(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	opts := Options{Local: local, Clock: fixedClock(time.Date(2025, 4, 9, 0, 0, 0, 0, time.UTC))}
	store := NewWordStore(seededWords(t), opts)

	assert.ErrorIs(t, store.SetLevel(ctx, "EXPERT"), core.ErrInvalidLevel)
	require.NoError(t, store.SetLevel(ctx, core.Hard))
	w, err := store.FetchWordOfDay(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.Hard, w.Attributes.Level)
	_, err = local.Get(ctx, "hard-2025-04-09")
	assert.NoError(t, err)

	restored := NewWordStore(seededWords(t), opts)
	restored.Restore(ctx)
	assert.Equal(t, core.Hard, restored.State().Get().Level)
}

func TestToggleFavoriteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := seededWords(t)
	store := NewWordStore(repo, Options{})

	assert.False(t, store.IsFavorite(3))
	on, err := store.ToggleFavorite(ctx, "1", 3)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, store.IsFavorite(3))

	favs, err := repo.ListFavorites(ctx, "1")
	require.NoError(t, err)
	require.Len(t, favs, 1)

	off, err := store.ToggleFavorite(ctx, "1", 3)
	require.NoError(t, err)
	assert.False(t, off)
	assert.False(t, store.IsFavorite(3))

	favs, err = repo.ListFavorites(ctx, "1")
	require.NoError(t, err)
	assert.Empty(t, favs)
}

func TestToggleFavoriteFailureLeavesSetUntouched(t *testing.T) {
	ctx := context.Background()
	repo := seededWords(t)
	store := NewWordStore(repo, Options{})

	repo.FailNext("CreateFavorite", errors.New("offline"))
	_, err := store.ToggleFavorite(ctx, "1", 3)
	require.Error(t, err)
	assert.False(t, store.IsFavorite(3))
	assert.NotEmpty(t, store.State().Get().Error)

	_, err = store.ToggleFavorite(ctx, "1", 3)
	require.NoError(t, err)

	repo.FailNext("DeleteFavorite", errors.New("offline"))
	still, err := store.ToggleFavorite(ctx, "1", 3)
	require.Error(t, err)
	assert.True(t, still)
	assert.True(t, store.IsFavorite(3))
}

func TestSyncFavoritesRebuildsMirror(t *testing.T) {
	ctx := context.Background()
	repo := seededWords(t)
	local := storage.NewMemory()
	for _, id := range []int64{2, 5, 2} {
		_, err := repo.CreateFavorite(ctx, "1", id)
		require.NoError(t, err)
	}

	store := NewWordStore(repo, Options{Local: local})
	require.NoError(t, store.SyncFavorites(ctx, "1"))
	assert.Equal(t, []int64{2, 5}, store.State().Get().Favorites)

	restored := NewWordStore(repo, Options{Local: local})
	restored.Restore(ctx)
	assert.True(t, restored.IsFavorite(5))
}

func TestPruneWordCache(t *testing.T) {
	ctx := context.Background()
	local := storage.NewMemory()
	for _, k := range []string{
		"easy-2025-04-10",
		"easy-2025-04-09",
		"hard-13-2025-04-08",
		"medium-2025-04-10",
		"todo-storage",
		"word-store",
		"other-2025-04-01",
	} {
		require.NoError(t, local.Set(ctx, k, []byte("{}")))
	}

	// 2025-04-10 in the +9h calendar
	opts := Options{Local: local, Clock: fixedClock(time.Date(2025, 4, 9, 20, 0, 0, 0, time.UTC))}
	store := NewWordStore(newBackend(), opts)

	removed, err := store.PruneWordCache(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	keys, err := local.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"easy-2025-04-10", "medium-2025-04-10", "other-2025-04-01", "todo-storage", "word-store"}, keys)
}
