package services

import (
	"context"
	"fmt"

	"lifedesk/internal/backend"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/state"
	"lifedesk/internal/storage"
)

// TodoStorageKey is the local mirror of the last known todo list.
const TodoStorageKey = "todo-storage"

type TodoState struct {
	state.Status
	Todos []core.Todo `json:"todos"`
}

type TodoStore struct {
	repo  backend.TodoRepository
	opts  Options
	log   *log.Logger
	state *state.Container[TodoState]
}

func NewTodoStore(repo backend.TodoRepository, opts Options) *TodoStore {
	opts = opts.withDefaults()
	return &TodoStore{
		repo:  repo,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentTodo),
		state: state.New(TodoState{Todos: []core.Todo{}}),
	}
}

func (s *TodoStore) State() *state.Container[TodoState] {
	return s.state
}

// Restore loads the local mirror so the list renders before the first fetch.
func (s *TodoStore) Restore(ctx context.Context) {
	todos, found, err := storage.GetJSON[[]core.Todo](ctx, s.opts.Local, TodoStorageKey)
	if err != nil {
		s.log.WarnContext(ctx, "Ignoring unreadable todo mirror", log.FieldError, err)
		return
	}
	if !found {
		return
	}
	s.state.Dispatch(func(st *TodoState) { st.Todos = todos })
}

// List fetches every todo of userID, newest first.
func (s *TodoStore) List(ctx context.Context, userID string) error {
	t := s.state.BeginLane("list")
	s.state.Dispatch(func(st *TodoState) { st.Start("list") })

	todos, err := s.repo.ListTodos(ctx, userID)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list todos", log.FieldUserID, userID, log.FieldError, err)
		s.state.Commit(t, func(st *TodoState) { st.Done("list", userMessage("Failed to load todos", err)) })
		return fmt.Errorf("list todos: %w", err)
	}

	todos = core.SortTodosByCreatedDesc(todos)
	if s.state.Commit(t, func(st *TodoState) {
		st.Todos = todos
		st.Done("list", "")
	}) {
		persist(ctx, s.opts, TodoStorageKey, todos)
	}
	return nil
}

// Add creates a todo and prepends the server's copy. Blank content is
// rejected before any request is made.
func (s *TodoStore) Add(ctx context.Context, in core.TodoInput) (core.Todo, error) {
	s.state.Dispatch(func(st *TodoState) { st.Start("add") })
	if err := in.Validate(); err != nil {
		s.state.Dispatch(func(st *TodoState) { st.Done("add", userMessage("Failed to add todo", err)) })
		return core.Todo{}, err
	}

	todo, err := s.repo.CreateTodo(ctx, in)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create todo", log.FieldUserID, in.UserID, log.FieldError, err)
		s.state.Dispatch(func(st *TodoState) { st.Done("add", userMessage("Failed to add todo", err)) })
		return core.Todo{}, fmt.Errorf("create todo: %w", err)
	}

	// A list fetched before the create would drop the new item.
	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TodoState) {
		st.Todos = append([]core.Todo{todo}, st.Todos...)
		st.Done("add", "")
	})
	persist(ctx, s.opts, TodoStorageKey, s.state.Get().Todos)
	return todo, nil
}

// Update applies patch and replaces the local item with the server's copy.
func (s *TodoStore) Update(ctx context.Context, id int64, patch core.TodoPatch) (core.Todo, error) {
	s.state.Dispatch(func(st *TodoState) { st.Start("update") })
	if err := patch.Validate(); err != nil {
		s.state.Dispatch(func(st *TodoState) { st.Done("update", userMessage("Failed to update todo", err)) })
		return core.Todo{}, err
	}

	todo, err := s.repo.UpdateTodo(ctx, id, patch)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to update todo", log.FieldEntityID, id, log.FieldError, err)
		s.state.Dispatch(func(st *TodoState) { st.Done("update", userMessage("Failed to update todo", err)) })
		return core.Todo{}, fmt.Errorf("update todo %d: %w", id, err)
	}

	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TodoState) {
		next := make([]core.Todo, len(st.Todos))
		for i, t := range st.Todos {
			if t.ID == id {
				t = todo
			}
			next[i] = t
		}
		st.Todos = next
		st.Done("update", "")
	})
	persist(ctx, s.opts, TodoStorageKey, s.state.Get().Todos)
	return todo, nil
}

// Delete removes the todo remotely, then locally.
func (s *TodoStore) Delete(ctx context.Context, id int64) error {
	s.state.Dispatch(func(st *TodoState) { st.Start("delete") })

	if err := s.repo.DeleteTodo(ctx, id); err != nil {
		s.log.ErrorContext(ctx, "Failed to delete todo", log.FieldEntityID, id, log.FieldError, err)
		s.state.Dispatch(func(st *TodoState) { st.Done("delete", userMessage("Failed to delete todo", err)) })
		return fmt.Errorf("delete todo %d: %w", id, err)
	}

	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TodoState) {
		next := make([]core.Todo, 0, len(st.Todos))
		for _, t := range st.Todos {
			if t.ID != id {
				next = append(next, t)
			}
		}
		st.Todos = next
		st.Done("delete", "")
	})
	persist(ctx, s.opts, TodoStorageKey, s.state.Get().Todos)
	return nil
}

// Reset clears the state and the local mirror.
func (s *TodoStore) Reset(ctx context.Context) {
	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TodoState) { *st = TodoState{Todos: []core.Todo{}} })
	forget(ctx, s.opts, TodoStorageKey)
}
