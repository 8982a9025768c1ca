// Package memory is an in-process implementation of every record collection.
// It honors the same filters and error shapes as the content API and backs
// tests and offline demos.
package memory

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"lifedesk/internal/core"
	"lifedesk/internal/strapi"
)

type user struct {
	core.User
	password string
}

type Store struct {
	mu       sync.Mutex
	nextID   int64
	now      func() time.Time
	lastTime time.Time

	users        map[int64]user
	tokens       map[string]int64
	todos        []core.Todo
	moods        []core.Mood
	words        []core.Word
	favorites    []core.Favorite
	transactions []core.Transaction

	failures map[string]error
}

// New creates an empty store seeded with words.
func New(words []core.WordAttributes) *Store {
	s := &Store{
		now:      time.Now,
		users:    make(map[int64]user),
		tokens:   make(map[string]int64),
		failures: make(map[string]error),
	}
	for _, w := range words {
		s.nextID++
		created := s.stamp()
		w.Timestamps = core.Timestamps{CreatedAt: created, UpdatedAt: created}
		s.words = append(s.words, core.Word{ID: s.nextID, Attributes: w})
	}
	return s
}

// NewFromFiles seeds words from base/seed_words.txt, one per line:
// LEVEL|word|phonetic|partOfSpeech|definition|example
func NewFromFiles(base string) *Store {
	var words []core.WordAttributes
	for _, line := range readLines(filepath.Join(base, "seed_words.txt")) {
		if w, ok := parseWordLine(line); ok {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		words = defaultWords()
	}
	s := New(words)
	s.AddUser("demo", "demo@example.com", "demo")
	return s
}

// WithClock replaces the time source used for createdAt/updatedAt.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
	return s
}

// FailNext makes the next call to op (a method name such as "CreateFavorite")
// return err.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = err
}

// AddUser registers a user that can log in with email or username.
func (s *Store) AddUser(username, email, password string) core.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	u := core.User{ID: s.nextID, Username: username, Email: email}
	s.users[u.ID] = user{User: u, password: password}
	return u
}

// IssueToken returns a token for an existing user without a password check.
func (s *Store) IssueToken(userID int64) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	token := "mem-" + uuid.NewString()
	s.tokens[token] = userID
	return token
}

// Auth

func (s *Store) Login(_ context.Context, identifier, password string) (core.AuthResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("Login"); err != nil {
		return core.AuthResult{}, err
	}
	for _, u := range s.users {
		if (u.Email == identifier || u.Username == identifier) && u.password == password {
			token := "mem-" + uuid.NewString()
			s.tokens[token] = u.ID
			return core.AuthResult{JWT: token, User: u.User}, nil
		}
	}
	return core.AuthResult{}, &strapi.APIError{Status: http.StatusBadRequest, Message: "Invalid identifier or password"}
}

func (s *Store) CurrentUser(_ context.Context, token string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.tokens[token]
	if !ok {
		return core.User{}, &strapi.APIError{Status: http.StatusUnauthorized, Message: "Missing or invalid credentials"}
	}
	return s.users[id].User, nil
}

// Todos

func (s *Store) ListTodos(_ context.Context, userID string) ([]core.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListTodos"); err != nil {
		return nil, err
	}
	out := make([]core.Todo, 0)
	for _, t := range s.todos {
		if t.Attributes.UserID == userID {
			out = append(out, t)
		}
	}
	return core.SortTodosByCreatedDesc(out), nil
}

func (s *Store) CreateTodo(_ context.Context, in core.TodoInput) (core.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("CreateTodo"); err != nil {
		return core.Todo{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Todo{}, badRequest(err)
	}
	s.nextID++
	created := s.stamp()
	t := core.Todo{ID: s.nextID, Attributes: core.TodoAttributes{
		Content:     in.Content,
		IsCompleted: in.IsCompleted,
		UserID:      in.UserID,
		Timestamps:  core.Timestamps{CreatedAt: created, UpdatedAt: created},
	}}
	s.todos = append(s.todos, t)
	return t, nil
}

func (s *Store) UpdateTodo(_ context.Context, id int64, patch core.TodoPatch) (core.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("UpdateTodo"); err != nil {
		return core.Todo{}, err
	}
	for i := range s.todos {
		if s.todos[i].ID != id {
			continue
		}
		if patch.Content != nil {
			s.todos[i].Attributes.Content = *patch.Content
		}
		if patch.IsCompleted != nil {
			s.todos[i].Attributes.IsCompleted = *patch.IsCompleted
		}
		s.todos[i].Attributes.UpdatedAt = s.stamp()
		return s.todos[i], nil
	}
	return core.Todo{}, notFound("todos", id)
}

func (s *Store) DeleteTodo(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("DeleteTodo"); err != nil {
		return err
	}
	for i := range s.todos {
		if s.todos[i].ID == id {
			s.todos = append(s.todos[:i], s.todos[i+1:]...)
			return nil
		}
	}
	return notFound("todos", id)
}

// Moods

func (s *Store) ListMoods(_ context.Context, userID string) ([]core.Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListMoods"); err != nil {
		return nil, err
	}
	out := make([]core.Mood, 0)
	for _, m := range s.moods {
		if m.Attributes.UserID == userID {
			out = append(out, m)
		}
	}
	return core.SortMoodsByDateDesc(out), nil
}

func (s *Store) FindMoodByDate(_ context.Context, userID string, date core.Date) (*core.Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("FindMoodByDate"); err != nil {
		return nil, err
	}
	for _, m := range s.moods {
		if m.Attributes.UserID == userID && m.Attributes.Date.String() == date.String() {
			found := m
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateMood(_ context.Context, in core.MoodInput) (core.Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("CreateMood"); err != nil {
		return core.Mood{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Mood{}, badRequest(err)
	}
	s.nextID++
	created := s.stamp()
	m := core.Mood{ID: s.nextID, Attributes: core.MoodAttributes{
		Emoji:      in.Emoji,
		Memo:       in.Memo,
		Date:       in.Date,
		UserID:     in.UserID,
		Timestamps: core.Timestamps{CreatedAt: created, UpdatedAt: created},
	}}
	s.moods = append(s.moods, m)
	return m, nil
}

func (s *Store) UpdateMood(_ context.Context, id int64, in core.MoodInput) (core.Mood, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("UpdateMood"); err != nil {
		return core.Mood{}, err
	}
	for i := range s.moods {
		if s.moods[i].ID != id {
			continue
		}
		a := &s.moods[i].Attributes
		a.Emoji = in.Emoji
		a.Memo = in.Memo
		if !in.Date.IsZero() {
			a.Date = in.Date
		}
		a.UpdatedAt = s.stamp()
		return s.moods[i], nil
	}
	return core.Mood{}, notFound("moods", id)
}

// MoodCount returns how many mood records exist for user on date.
func (s *Store) MoodCount(userID string, date core.Date) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.moods {
		if m.Attributes.UserID == userID && m.Attributes.Date.String() == date.String() {
			n++
		}
	}
	return n
}

// Words and favorites

func (s *Store) ListWordsByLevel(_ context.Context, level core.Level) ([]core.Word, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListWordsByLevel"); err != nil {
		return nil, err
	}
	out := make([]core.Word, 0)
	for _, w := range s.words {
		if w.Attributes.Level == level {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) ListFavorites(_ context.Context, userID string) ([]core.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListFavorites"); err != nil {
		return nil, err
	}
	out := make([]core.Favorite, 0)
	for _, f := range s.favorites {
		if string(f.Attributes.User) == userID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *Store) FindFavorite(_ context.Context, userID string, wordID int64) (*core.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("FindFavorite"); err != nil {
		return nil, err
	}
	for _, f := range s.favorites {
		if string(f.Attributes.User) == userID && f.Attributes.Word.Int64() == wordID {
			found := f
			return &found, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateFavorite(_ context.Context, userID string, wordID int64) (core.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("CreateFavorite"); err != nil {
		return core.Favorite{}, err
	}
	s.nextID++
	created := s.stamp()
	f := core.Favorite{ID: s.nextID, Attributes: core.FavoriteAttributes{
		Word:       core.RefOf(wordID),
		User:       core.Ref(userID),
		Timestamps: core.Timestamps{CreatedAt: created, UpdatedAt: created},
	}}
	s.favorites = append(s.favorites, f)
	return f, nil
}

func (s *Store) DeleteFavorite(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("DeleteFavorite"); err != nil {
		return err
	}
	for i := range s.favorites {
		if s.favorites[i].ID == id {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			return nil
		}
	}
	return notFound("favorites", id)
}

// Transactions

func (s *Store) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("ListTransactions"); err != nil {
		return nil, err
	}
	out := make([]core.Transaction, 0)
	for _, tx := range s.transactions {
		if f.Match(tx) {
			out = append(out, tx)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Attributes.Date.After(out[j].Attributes.Date.Time)
	})
	return out, nil
}

func (s *Store) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("GetTransaction"); err != nil {
		return core.Transaction{}, err
	}
	for _, tx := range s.transactions {
		if tx.ID == id {
			return tx, nil
		}
	}
	return core.Transaction{}, errors.Join(core.ErrNotFound, notFound("transactions", id))
}

func (s *Store) CreateTransaction(_ context.Context, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("CreateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, badRequest(err)
	}
	s.nextID++
	created := s.stamp()
	tx := core.Transaction{ID: s.nextID, Attributes: transactionAttributes(in)}
	tx.Attributes.Timestamps = core.Timestamps{CreatedAt: created, UpdatedAt: created}
	s.transactions = append(s.transactions, tx)
	return tx, nil
}

func (s *Store) UpdateTransaction(_ context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("UpdateTransaction"); err != nil {
		return core.Transaction{}, err
	}
	if err := in.Validate(); err != nil {
		return core.Transaction{}, badRequest(err)
	}
	for i := range s.transactions {
		if s.transactions[i].ID != id {
			continue
		}
		ts := s.transactions[i].Attributes.Timestamps
		ts.UpdatedAt = s.stamp()
		s.transactions[i].Attributes = transactionAttributes(in)
		s.transactions[i].Attributes.Timestamps = ts
		return s.transactions[i], nil
	}
	return core.Transaction{}, notFound("transactions", id)
}

func (s *Store) DeleteTransaction(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.takeFailure("DeleteTransaction"); err != nil {
		return err
	}
	for i := range s.transactions {
		if s.transactions[i].ID == id {
			s.transactions = append(s.transactions[:i], s.transactions[i+1:]...)
			return nil
		}
	}
	return notFound("transactions", id)
}

func transactionAttributes(in core.TransactionInput) core.TransactionAttributes {
	return core.TransactionAttributes{
		Type:     in.Type,
		Amount:   in.Amount,
		Category: in.Category,
		Memo:     in.Memo,
		Date:     in.Date,
		User:     core.Ref(in.UserID),
	}
}

// stamp returns a strictly increasing timestamp so createdAt ordering is total.
// Must be called with mu held.
func (s *Store) stamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.lastTime) {
		t = s.lastTime.Add(time.Millisecond)
	}
	s.lastTime = t
	return t
}

// takeFailure must be called with mu held.
func (s *Store) takeFailure(op string) error {
	err, ok := s.failures[op]
	if !ok {
		return nil
	}
	delete(s.failures, op)
	return err
}

func notFound(collection string, id int64) error {
	return &strapi.APIError{Status: http.StatusNotFound, Message: fmt.Sprintf("%s/%d not found", collection, id)}
}

func badRequest(err error) error {
	return fmt.Errorf("%w: %w", err, &strapi.APIError{Status: http.StatusBadRequest, Message: err.Error()})
}

func parseWordLine(line string) (core.WordAttributes, bool) {
	parts := strings.Split(line, "|")
	if len(parts) < 5 {
		return core.WordAttributes{}, false
	}
	level, err := core.ParseLevel(parts[0])
	if err != nil {
		return core.WordAttributes{}, false
	}
	def := core.Definition{Definition: strings.TrimSpace(parts[4])}
	if len(parts) > 5 {
		def.Example = strings.TrimSpace(parts[5])
	}
	return core.WordAttributes{
		Word:     strings.TrimSpace(parts[1]),
		Phonetic: strings.TrimSpace(parts[2]),
		Level:    level,
		Meanings: []core.Meaning{{
			PartOfSpeech: strings.TrimSpace(parts[3]),
			Definitions:  []core.Definition{def},
		}},
	}, true
}

func defaultWords() []core.WordAttributes {
	mk := func(level core.Level, word, phonetic, pos, def, example string) core.WordAttributes {
		return core.WordAttributes{
			Word: word, Phonetic: phonetic, Level: level,
			Meanings: []core.Meaning{{PartOfSpeech: pos, Definitions: []core.Definition{{Definition: def, Example: example}}}},
		}
	}
	return []core.WordAttributes{
		mk(core.Easy, "bright", "/braɪt/", "adjective", "full of light", "The room is bright in the morning."),
		mk(core.Easy, "gather", "/ˈɡæðər/", "verb", "to come together", "We gather for dinner on Sundays."),
		mk(core.Medium, "diligent", "/ˈdɪlɪdʒənt/", "adjective", "showing care and effort in work", "She is a diligent student."),
		mk(core.Medium, "reluctant", "/rɪˈlʌktənt/", "adjective", "unwilling and hesitant", "He was reluctant to leave."),
		mk(core.Hard, "serendipity", "/ˌserənˈdɪpəti/", "noun", "the occurrence of events by chance in a happy or beneficial way", "Finding this cafe was pure serendipity."),
		mk(core.Hard, "ephemeral", "/ɪˈfemərəl/", "adjective", "lasting for a very short time", "Fame is ephemeral."),
	}
}

func readLines(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out
}
