package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lifedesk/internal/backend"
	"lifedesk/internal/core"
	"lifedesk/internal/storage"
)

// heldTodos answers ListTodos with the rows read before the gate opens.
type heldTodos struct {
	backend.TodoRepository
	list *gate
}

func (h *heldTodos) ListTodos(ctx context.Context, userID string) ([]core.Todo, error) {
	todos, err := h.TodoRepository.ListTodos(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := h.list.wait(ctx); err != nil {
		return nil, err
	}
	return todos, nil
}

func TestTodoStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newBackend()
	opts, local := testOptions(time.Now())
	store := NewTodoStore(repo, opts)

	first, err := store.Add(ctx, core.TodoInput{Content: "buy milk", UserID: "1"})
	require.NoError(t, err)
	second, err := store.Add(ctx, core.TodoInput{Content: "call mom", UserID: "1"})
	require.NoError(t, err)

	st := store.State().Get()
	require.Len(t, st.Todos, 2)
	assert.Equal(t, second.ID, st.Todos[0].ID, "new items are prepended")
	assert.False(t, st.Loading)
	assert.Empty(t, st.Error)

	done := true
	updated, err := store.Update(ctx, first.ID, core.TodoPatch{IsCompleted: &done})
	require.NoError(t, err)
	assert.True(t, updated.Attributes.IsCompleted)
	assert.True(t, store.State().Get().Todos[1].Attributes.IsCompleted)

	require.NoError(t, store.Delete(ctx, second.ID))
	require.Len(t, store.State().Get().Todos, 1)

	mirror, found, err := storage.GetJSON[[]core.Todo](ctx, local, TodoStorageKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, mirror, 1)

	store.Reset(ctx)
	assert.Empty(t, store.State().Get().Todos)
	_, err = local.Get(ctx, TodoStorageKey)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestTodoStoreListSortsNewestFirst(t *testing.T) {
	ctx := context.Background()
	repo := newBackend()
	for _, c := range []string{"a", "b", "c"} {
		_, err := repo.CreateTodo(ctx, core.TodoInput{Content: c, UserID: "1"})
		require.NoError(t, err)
	}
	_, err := repo.CreateTodo(ctx, core.TodoInput{Content: "not mine", UserID: "2"})
	require.NoError(t, err)

	opts, _ := testOptions(time.Now())
	store := NewTodoStore(repo, opts)
	require.NoError(t, store.List(ctx, "1"))

	var got []string
	for _, todo := range store.State().Get().Todos {
		got = append(got, todo.Attributes.Content)
	}
	assert.Equal(t, []string{"c", "b", "a"}, got)

	restored := NewTodoStore(repo, opts)
	restored.Restore(ctx)
	assert.Len(t, restored.State().Get().Todos, 3)
}

func TestTodoStoreRejectsBlankContentWithoutCallingBackend(t *testing.T) {
	ctx := context.Background()
	repo := newBackend()
	repo.FailNext("CreateTodo", errors.New("must not be called"))
	opts, _ := testOptions(time.Now())
	store := NewTodoStore(repo, opts)

	_, err := store.Add(ctx, core.TodoInput{Content: "   ", UserID: "1"})
	assert.ErrorIs(t, err, core.ErrEmptyContent)
	st := store.State().Get()
	assert.NotEmpty(t, st.Error)
	assert.False(t, st.Loading)

	// the injected failure is still pending, proving no request was made
	_, err = store.Add(ctx, core.TodoInput{Content: "real", UserID: "1"})
	assert.Error(t, err)
}

func TestTodoStoreFailureKeepsListAndResetsLoading(t *testing.T) {
	ctx := context.Background()
	repo := newBackend()
	opts, _ := testOptions(time.Now())
	store := NewTodoStore(repo, opts)
	todo, err := store.Add(ctx, core.TodoInput{Content: "x", UserID: "1"})
	require.NoError(t, err)

	repo.FailNext("DeleteTodo", errors.New("offline"))
	err = store.Delete(ctx, todo.ID)
	require.Error(t, err)

	st := store.State().Get()
	assert.Len(t, st.Todos, 1)
	assert.False(t, st.Loading)
	assert.Contains(t, st.Error, "Failed to delete todo")

	repo.FailNext("ListTodos", errors.New("offline"))
	assert.Error(t, store.List(ctx, "1"))
	assert.False(t, store.State().Get().Loading)
}

func TestTodoListFetchedBeforeAddKeepsNewItem(t *testing.T) {
	ctx := context.Background()
	list := newGate()
	repo := &heldTodos{TodoRepository: newBackend(), list: list}
	opts, _ := testOptions(time.Now())
	store := NewTodoStore(repo, opts)

	listed := make(chan error, 1)
	go func() { listed <- store.List(ctx, "1") }()
	<-list.entered

	todo, err := store.Add(ctx, core.TodoInput{Content: "written while listing", UserID: "1"})
	require.NoError(t, err)

	close(list.release)
	require.NoError(t, <-listed)

	st := store.State().Get()
	require.Len(t, st.Todos, 1)
	assert.Equal(t, todo.ID, st.Todos[0].ID)
	assert.False(t, st.Loading)
}
