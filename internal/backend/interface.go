package backend

import (
	"context"

	"lifedesk/internal/core"
)

// Ports the stores depend on. Every method is scoped by the ids passed in;
// the implementation decides how the caller is authenticated.
type (
	TodoRepository interface {
		ListTodos(ctx context.Context, userID string) ([]core.Todo, error)
		CreateTodo(ctx context.Context, in core.TodoInput) (core.Todo, error)
		UpdateTodo(ctx context.Context, id int64, patch core.TodoPatch) (core.Todo, error)
		DeleteTodo(ctx context.Context, id int64) error
	}

	MoodRepository interface {
		ListMoods(ctx context.Context, userID string) ([]core.Mood, error)
		// FindMoodByDate returns nil, nil when the user has no entry for date.
		FindMoodByDate(ctx context.Context, userID string, date core.Date) (*core.Mood, error)
		CreateMood(ctx context.Context, in core.MoodInput) (core.Mood, error)
		UpdateMood(ctx context.Context, id int64, in core.MoodInput) (core.Mood, error)
	}

	WordRepository interface {
		ListWordsByLevel(ctx context.Context, level core.Level) ([]core.Word, error)
		ListFavorites(ctx context.Context, userID string) ([]core.Favorite, error)
		// FindFavorite returns nil, nil when the word is not a favorite.
		FindFavorite(ctx context.Context, userID string, wordID int64) (*core.Favorite, error)
		CreateFavorite(ctx context.Context, userID string, wordID int64) (core.Favorite, error)
		DeleteFavorite(ctx context.Context, id int64) error
	}

	TransactionRepository interface {
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
		// GetTransaction wraps core.ErrNotFound when id does not exist.
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, id int64) error
	}

	// Backend is the full set of record collections for one caller.
	Backend interface {
		TodoRepository
		MoodRepository
		WordRepository
		TransactionRepository
	}

	// Authenticator exchanges credentials for a token and resolves tokens to users.
	Authenticator interface {
		Login(ctx context.Context, identifier, password string) (core.AuthResult, error)
		CurrentUser(ctx context.Context, token string) (core.User, error)
	}

	// Provider hands out a Backend acting on behalf of a token. An empty token
	// means the service credentials.
	Provider interface {
		Authenticator
		ForToken(token string) Backend
	}
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the provider and optional cleanup function
type BackendResult struct {
	Provider Provider
	Cleanup  CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}
