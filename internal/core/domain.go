package core

import (
	"errors"
	"strings"
	"time"
)

const (
	Income  TransactionType = "income"
	Expense TransactionType = "expense"
)

const (
	Laugh MoodEmoji = "laugh"
	Smile MoodEmoji = "smile"
	Meh   MoodEmoji = "meh"
	Frown MoodEmoji = "frown"
	Angry MoodEmoji = "angry"
)

const (
	Easy   Level = "EASY"
	Medium Level = "MEDIUM"
	Hard   Level = "HARD"
)

type (
	TransactionType string
	MoodEmoji       string
	Level           string

	// Entity is a server-owned record: an integer id plus an attributes payload.
	Entity[A any] struct {
		ID         int64 `json:"id"`
		Attributes A     `json:"attributes"`
	}

	Timestamps struct {
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	TodoAttributes struct {
		Content     string `json:"content"`
		IsCompleted bool   `json:"isCompleted"`
		UserID      string `json:"userId"`
		Timestamps
	}

	TodoInput struct {
		Content     string `json:"content"`
		IsCompleted bool   `json:"isCompleted"`
		UserID      string `json:"userId"`
	}

	// TodoPatch carries only the fields being changed.
	TodoPatch struct {
		Content     *string `json:"content,omitempty"`
		IsCompleted *bool   `json:"isCompleted,omitempty"`
	}

	MoodAttributes struct {
		Emoji  MoodEmoji `json:"emoji"`
		Memo   string    `json:"memo"`
		Date   Date      `json:"date"`
		UserID string    `json:"userId"`
		Timestamps
	}

	MoodInput struct {
		Emoji  MoodEmoji `json:"emoji"`
		Memo   string    `json:"memo"`
		Date   Date      `json:"date"`
		UserID string    `json:"userId"`
	}

	Definition struct {
		Definition string `json:"definition"`
		Example    string `json:"example,omitempty"`
	}

	Meaning struct {
		PartOfSpeech string       `json:"partOfSpeech"`
		Definitions  []Definition `json:"definitions"`
	}

	WordAttributes struct {
		Word     string    `json:"word"`
		Phonetic string    `json:"phonetic"`
		Meanings []Meaning `json:"meanings"`
		Level    Level     `json:"level"`
		AudioURL string    `json:"audioUrl,omitempty"`
		Timestamps
	}

	// FavoriteAttributes is the join record linking a user to a word.
	FavoriteAttributes struct {
		Word Ref `json:"word"`
		User Ref `json:"user"`
		Timestamps
	}

	TransactionAttributes struct {
		Type     TransactionType `json:"type"`
		Amount   Money           `json:"amount"`
		Category string          `json:"category"`
		Memo     string          `json:"memo"`
		Date     Date            `json:"date"`
		User     Ref             `json:"users_permissions_user,omitempty"`
		Timestamps
	}

	TransactionInput struct {
		Type     TransactionType `json:"type"`
		Amount   Money           `json:"amount"`
		Category string          `json:"category"`
		Memo     string          `json:"memo"`
		Date     Date            `json:"date"`
		UserID   string          `json:"users_permissions_user"`
	}

	Todo        = Entity[TodoAttributes]
	Mood        = Entity[MoodAttributes]
	Word        = Entity[WordAttributes]
	Favorite    = Entity[FavoriteAttributes]
	Transaction = Entity[TransactionAttributes]

	// User is the profile returned alongside a login token.
	User struct {
		ID       int64  `json:"id"`
		Username string `json:"username"`
		Email    string `json:"email"`
	}
)

var (
	ErrEmptyContent           = errors.New("empty content")
	ErrEmptyUser              = errors.New("empty user id")
	ErrInvalidEmoji           = errors.New("invalid mood emoji")
	ErrInvalidLevel           = errors.New("invalid word level")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrEmptyCategory          = errors.New("empty category")
	ErrInvalidDate            = errors.New("invalid date")
	ErrMissingDate            = errors.New("missing date for date-filtered view")
	ErrNoWords                = errors.New("no words for level")
	ErrNotFound               = errors.New("record not found")
)

func (t TransactionType) Validate() error {
	switch t {
	case Income, Expense:
		return nil
	}
	return ErrInvalidTransactionType
}

func (e MoodEmoji) Validate() error {
	switch e {
	case Laugh, Smile, Meh, Frown, Angry:
		return nil
	}
	return ErrInvalidEmoji
}

// Emojis lists every mood in display order, best first.
func Emojis() []MoodEmoji {
	return []MoodEmoji{Laugh, Smile, Meh, Frown, Angry}
}

func (l Level) Validate() error {
	switch l {
	case Easy, Medium, Hard:
		return nil
	}
	return ErrInvalidLevel
}

// ParseLevel accepts any casing of EASY, MEDIUM or HARD.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if err := l.Validate(); err != nil {
		return "", err
	}
	return l, nil
}

func (in TodoInput) Validate() error {
	if strings.TrimSpace(in.Content) == "" {
		return ErrEmptyContent
	}
	if strings.TrimSpace(in.UserID) == "" {
		return ErrEmptyUser
	}
	return nil
}

func (p TodoPatch) Validate() error {
	if p.Content != nil && strings.TrimSpace(*p.Content) == "" {
		return ErrEmptyContent
	}
	return nil
}

func (in MoodInput) Validate() error {
	if err := in.Emoji.Validate(); err != nil {
		return err
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(in.UserID) == "" {
		return ErrEmptyUser
	}
	return nil
}

func (in TransactionInput) Validate() error {
	if err := in.Type.Validate(); err != nil {
		return err
	}
	if err := in.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(in.Category) == "" {
		return ErrEmptyCategory
	}
	if in.Date.IsZero() {
		return ErrInvalidDate
	}
	if strings.TrimSpace(in.UserID) == "" {
		return ErrEmptyUser
	}
	return nil
}

// MoodLabel returns the short display label for a mood.
func MoodLabel(e MoodEmoji) string {
	switch e {
	case Laugh:
		return "Great"
	case Smile:
		return "Good"
	case Meh:
		return "Okay"
	case Frown:
		return "Bad"
	case Angry:
		return "Awful"
	}
	return ""
}

// AuthResult is the login response: a bearer token and the profile it belongs to.
type AuthResult struct {
	JWT  string `json:"jwt"`
	User User   `json:"user"`
}

// UserID returns the id in the string form used by owner fields.
func (u User) UserID() string {
	if u.ID == 0 {
		return ""
	}
	return RefOf(u.ID).String()
}

// TransactionFilter narrows a transaction listing. Zero dates are unbounded
// and an empty Type matches both kinds.
type TransactionFilter struct {
	UserID string
	From   Date
	To     Date
	Type   TransactionType
}

// Match reports whether tx satisfies every condition of the filter.
func (f TransactionFilter) Match(tx Transaction) bool {
	a := tx.Attributes
	if f.UserID != "" && string(a.User) != f.UserID {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if !f.From.IsZero() && a.Date.Before(f.From.Time) {
		return false
	}
	if !f.To.IsZero() && a.Date.After(f.To.Time) {
		return false
	}
	return true
}
