package strapi

import (
	"context"
	"errors"

	"lifedesk/internal/core"
)

const (
	todosPath        = "/todos"
	moodsPath        = "/moods"
	wordsPath        = "/words"
	favoritesPath    = "/favorites"
	transactionsPath = "/transactions"

	transactionOwner = "users_permissions_user"
)

// Repository exposes the record collections over one authenticated client.
type Repository struct {
	client *Client
}

func NewRepository(c *Client) *Repository {
	return &Repository{client: c}
}

// Todos

func (r *Repository) ListTodos(ctx context.Context, userID string) ([]core.Todo, error) {
	q := NewQuery().Eq("userId", userID).Sort("createdAt", "desc")
	return ListAll[core.Todo](ctx, r.client, todosPath, q)
}

func (r *Repository) CreateTodo(ctx context.Context, in core.TodoInput) (core.Todo, error) {
	return CreateOne[core.Todo](ctx, r.client, todosPath, in)
}

func (r *Repository) UpdateTodo(ctx context.Context, id int64, patch core.TodoPatch) (core.Todo, error) {
	return UpdateOne[core.Todo](ctx, r.client, todosPath, id, patch)
}

func (r *Repository) DeleteTodo(ctx context.Context, id int64) error {
	return DeleteOne(ctx, r.client, todosPath, id)
}

// Moods

func (r *Repository) ListMoods(ctx context.Context, userID string) ([]core.Mood, error) {
	q := NewQuery().Sort("date", "desc").Eq("userId", userID)
	return ListAll[core.Mood](ctx, r.client, moodsPath, q)
}

// FindMoodByDate returns nil without error when the user has no entry that day.
func (r *Repository) FindMoodByDate(ctx context.Context, userID string, date core.Date) (*core.Mood, error) {
	q := NewQuery().Eq("date", date.String()).Eq("userId", userID).Sort("id", "asc")
	moods, err := ListAll[core.Mood](ctx, r.client, moodsPath, q)
	if err != nil || len(moods) == 0 {
		return nil, err
	}
	return &moods[0], nil
}

func (r *Repository) CreateMood(ctx context.Context, in core.MoodInput) (core.Mood, error) {
	return CreateOne[core.Mood](ctx, r.client, moodsPath, in)
}

func (r *Repository) UpdateMood(ctx context.Context, id int64, in core.MoodInput) (core.Mood, error) {
	return UpdateOne[core.Mood](ctx, r.client, moodsPath, id, in)
}

// Words and favorites

func (r *Repository) ListWordsByLevel(ctx context.Context, level core.Level) ([]core.Word, error) {
	q := NewQuery().Eq("level", string(level))
	return ListAll[core.Word](ctx, r.client, wordsPath, q)
}

func (r *Repository) ListFavorites(ctx context.Context, userID string) ([]core.Favorite, error) {
	q := NewQuery().RelationEq("user", userID).Populate("word")
	return ListAll[core.Favorite](ctx, r.client, favoritesPath, q)
}

// FindFavorite returns the join record for (user, word) or nil when absent.
func (r *Repository) FindFavorite(ctx context.Context, userID string, wordID int64) (*core.Favorite, error) {
	q := NewQuery().
		RelationEq("user", userID).
		RelationEq("word", core.RefOf(wordID).String()).
		Populate("word")
	favs, err := ListAll[core.Favorite](ctx, r.client, favoritesPath, q)
	if err != nil || len(favs) == 0 {
		return nil, err
	}
	return &favs[0], nil
}

type favoriteBody struct {
	Word core.Ref `json:"word"`
	User core.Ref `json:"user"`
}

func (r *Repository) CreateFavorite(ctx context.Context, userID string, wordID int64) (core.Favorite, error) {
	return CreateOne[core.Favorite](ctx, r.client, favoritesPath,
		favoriteBody{Word: core.RefOf(wordID), User: core.Ref(userID)})
}

func (r *Repository) DeleteFavorite(ctx context.Context, id int64) error {
	return DeleteOne(ctx, r.client, favoritesPath, id)
}

// Transactions

// transactionBody sends the owner as a relation id rather than a string.
type transactionBody struct {
	Type     core.TransactionType `json:"type"`
	Amount   core.Money           `json:"amount"`
	Category string               `json:"category"`
	Memo     string               `json:"memo"`
	Date     core.Date            `json:"date"`
	User     core.Ref             `json:"users_permissions_user"`
}

func newTransactionBody(in core.TransactionInput) transactionBody {
	return transactionBody{
		Type:     in.Type,
		Amount:   in.Amount,
		Category: in.Category,
		Memo:     in.Memo,
		Date:     in.Date,
		User:     core.Ref(in.UserID),
	}
}

func (r *Repository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	q := NewQuery().RelationEq(transactionOwner, f.UserID)
	switch {
	case !f.From.IsZero() && !f.To.IsZero() && f.From.Equal(f.To.Time):
		q.Eq("date", f.From.String())
	default:
		if !f.From.IsZero() {
			q.Gte("date", f.From.String())
		}
		if !f.To.IsZero() {
			q.Lte("date", f.To.String())
		}
	}
	if f.Type != "" {
		q.Eq("type", string(f.Type))
	}
	q.Sort("date", "desc").Populate(transactionOwner)

	txs, err := ListAll[core.Transaction](ctx, r.client, transactionsPath, q)
	if err != nil {
		return nil, err
	}
	// The owner relation is only present when populated; fill it from the filter.
	for i := range txs {
		if txs[i].Attributes.User == "" {
			txs[i].Attributes.User = core.Ref(f.UserID)
		}
	}
	return txs, nil
}

func (r *Repository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	tx, err := GetOne[core.Transaction](ctx, r.client, transactionsPath, id, NewQuery().Populate(transactionOwner))
	if IsNotFound(err) {
		return tx, errors.Join(core.ErrNotFound, err)
	}
	return tx, err
}

func (r *Repository) CreateTransaction(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	return CreateOne[core.Transaction](ctx, r.client, transactionsPath, newTransactionBody(in))
}

func (r *Repository) UpdateTransaction(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	return UpdateOne[core.Transaction](ctx, r.client, transactionsPath, id, newTransactionBody(in))
}

func (r *Repository) DeleteTransaction(ctx context.Context, id int64) error {
	return DeleteOne(ctx, r.client, transactionsPath, id)
}
