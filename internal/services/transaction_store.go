package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lifedesk/internal/amqp"
	"lifedesk/internal/backend"
	"lifedesk/internal/calendar"
	"lifedesk/internal/core"
	"lifedesk/internal/log"
	"lifedesk/internal/state"
)

type ViewMode string

const (
	ViewAll     ViewMode = "all"
	ViewMonthly ViewMode = "monthly"
	ViewDaily   ViewMode = "daily"
)

var ErrInvalidView = errors.New("invalid view mode")

// ListFilter selects the transactions shown in the list view. Date holds
// "YYYY-MM" for the monthly view and "YYYY-MM-DD" for the daily view.
type ListFilter struct {
	View ViewMode             `json:"view"`
	Date string               `json:"date,omitempty"`
	Type core.TransactionType `json:"type,omitempty"`
}

// Resolve turns the view into a backend filter for userID.
func (f ListFilter) Resolve(userID string) (core.TransactionFilter, error) {
	out := core.TransactionFilter{UserID: userID}
	if f.Type != "" {
		if err := f.Type.Validate(); err != nil {
			return out, err
		}
		out.Type = f.Type
	}

	date := strings.TrimSpace(f.Date)
	switch f.View {
	case ViewAll, "":
		return out, nil
	case ViewMonthly:
		if date == "" {
			return out, fmt.Errorf("%w: monthly view needs a year-month", core.ErrMissingDate)
		}
		first, last, err := calendar.MonthRange(date)
		if err != nil {
			return out, err
		}
		out.From, out.To = first, last
		return out, nil
	case ViewDaily:
		if date == "" {
			return out, fmt.Errorf("%w: daily view needs a date", core.ErrMissingDate)
		}
		day, err := core.ParseDate(date)
		if err != nil {
			return out, err
		}
		out.From, out.To = day, day
		return out, nil
	default:
		return out, fmt.Errorf("%w: %q", ErrInvalidView, f.View)
	}
}

type TransactionState struct {
	state.Status
	Dashboard    *core.DashboardData     `json:"dashboard"`
	Transactions []core.Transaction      `json:"transactions"`
	Filter       ListFilter              `json:"filter"`
	Detail       *core.Transaction       `json:"detail"`
	Statistics   *core.MonthlyStatistics `json:"statistics"`
}

type TransactionStore struct {
	repo  backend.TransactionRepository
	opts  Options
	log   *log.Logger
	state *state.Container[TransactionState]
}

func NewTransactionStore(repo backend.TransactionRepository, opts Options) *TransactionStore {
	opts = opts.withDefaults()
	return &TransactionStore{
		repo:  repo,
		opts:  opts,
		log:   opts.Logger.WithComponent(log.ComponentTransaction),
		state: state.New(TransactionState{
			Transactions: []core.Transaction{},
			Filter:       ListFilter{View: ViewAll},
		}),
	}
}

func (s *TransactionStore) State() *state.Container[TransactionState] {
	return s.state
}

// Dashboard loads every transaction of userID and derives today's summary,
// the all-time balance and the latest activity.
func (s *TransactionStore) Dashboard(ctx context.Context, userID string) (core.DashboardData, error) {
	t := s.state.BeginLane("dashboard")
	s.state.Dispatch(func(st *TransactionState) { st.Start("dashboard") })

	all, err := s.repo.ListTransactions(ctx, core.TransactionFilter{UserID: userID})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to load dashboard", log.FieldUserID, userID, log.FieldError, err)
		s.state.Commit(t, func(st *TransactionState) { st.Done("dashboard", userMessage("Failed to load dashboard", err)) })
		return core.DashboardData{}, fmt.Errorf("dashboard: %w", err)
	}

	data := core.BuildDashboard(all, s.opts.today())
	s.state.Commit(t, func(st *TransactionState) {
		st.Dashboard = &data
		st.Done("dashboard", "")
	})
	return data, nil
}

// List loads the transactions matching filter and remembers the filter.
func (s *TransactionStore) List(ctx context.Context, userID string, filter ListFilter) ([]core.Transaction, error) {
	t := s.state.BeginLane("list")
	s.state.Dispatch(func(st *TransactionState) {
		st.Start("list")
		st.Filter = filter
	})

	f, err := filter.Resolve(userID)
	if err != nil {
		s.state.Commit(t, func(st *TransactionState) { st.Done("list", userMessage("Invalid filter", err)) })
		return nil, err
	}

	txs, err := s.repo.ListTransactions(ctx, f)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to list transactions",
			log.FieldUserID, userID,
			"view", string(filter.View),
			log.FieldError, err)
		s.state.Commit(t, func(st *TransactionState) { st.Done("list", userMessage("Failed to load transactions", err)) })
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	s.state.Commit(t, func(st *TransactionState) {
		st.Transactions = txs
		st.Done("list", "")
	})
	return txs, nil
}

// Detail fetches one transaction for an edit form. Any failure yields nil.
func (s *TransactionStore) Detail(ctx context.Context, id int64) *core.Transaction {
	t := s.state.BeginLane("detail")
	s.state.Dispatch(func(st *TransactionState) { st.Start("detail") })

	tx, err := s.repo.GetTransaction(ctx, id)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			s.log.WarnContext(ctx, "Failed to load transaction", log.FieldEntityID, id, log.FieldError, err)
		}
		s.state.Commit(t, func(st *TransactionState) {
			st.Detail = nil
			st.Done("detail", "")
		})
		return nil
	}

	s.state.Commit(t, func(st *TransactionState) {
		st.Detail = &tx
		st.Done("detail", "")
	})
	return &tx
}

// Create saves a new transaction. The error is returned as well as recorded
// so a form can decide whether to leave.
func (s *TransactionStore) Create(ctx context.Context, in core.TransactionInput) (core.Transaction, error) {
	s.state.Dispatch(func(st *TransactionState) { st.Start("create") })
	if err := in.Validate(); err != nil {
		s.state.Dispatch(func(st *TransactionState) { st.Done("create", userMessage("Failed to save transaction", err)) })
		return core.Transaction{}, err
	}

	tx, err := s.repo.CreateTransaction(ctx, in)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to create transaction", log.FieldUserID, in.UserID, log.FieldError, err)
		s.state.Dispatch(func(st *TransactionState) { st.Done("create", userMessage("Failed to save transaction", err)) })
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}
	if tx.Attributes.User == "" {
		tx.Attributes.User = core.Ref(in.UserID)
	}

	// Any list fetched before the save is older than this change.
	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TransactionState) {
		st.Transactions = append([]core.Transaction{tx}, st.Transactions...)
		st.Done("create", "")
	})
	s.logChange(ctx, log.OpCreate, tx)
	s.publish(ctx, amqp.ActionCreated, tx.ID, in.UserID, tx.Attributes.Date)
	return tx, nil
}

// Update replaces transaction id with in.
func (s *TransactionStore) Update(ctx context.Context, id int64, in core.TransactionInput) (core.Transaction, error) {
	s.state.Dispatch(func(st *TransactionState) { st.Start("update") })
	if err := in.Validate(); err != nil {
		s.state.Dispatch(func(st *TransactionState) { st.Done("update", userMessage("Failed to update transaction", err)) })
		return core.Transaction{}, err
	}

	previous, hadPrevious := s.local(id)
	tx, err := s.repo.UpdateTransaction(ctx, id, in)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to update transaction", log.FieldEntityID, id, log.FieldError, err)
		s.state.Dispatch(func(st *TransactionState) { st.Done("update", userMessage("Failed to update transaction", err)) })
		return core.Transaction{}, fmt.Errorf("update transaction %d: %w", id, err)
	}
	if tx.Attributes.User == "" {
		tx.Attributes.User = core.Ref(in.UserID)
	}

	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TransactionState) {
		next := make([]core.Transaction, len(st.Transactions))
		for i, x := range st.Transactions {
			if x.ID == id {
				x = tx
			}
			next[i] = x
		}
		st.Transactions = next
		if st.Detail != nil && st.Detail.ID == id {
			st.Detail = &tx
		}
		st.Done("update", "")
	})
	s.logChange(ctx, log.OpUpdate, tx)
	s.publish(ctx, amqp.ActionUpdated, id, in.UserID, tx.Attributes.Date)
	if hadPrevious && calendar.YearMonth(previous.Attributes.Date) != calendar.YearMonth(tx.Attributes.Date) {
		s.publish(ctx, amqp.ActionUpdated, id, in.UserID, previous.Attributes.Date)
	}
	return tx, nil
}

// Delete removes transaction id remotely, then from the local list.
func (s *TransactionStore) Delete(ctx context.Context, id int64) error {
	s.state.Dispatch(func(st *TransactionState) { st.Start("delete") })

	previous, hadPrevious := s.local(id)
	if !hadPrevious && s.opts.Publisher != nil {
		if tx, err := s.repo.GetTransaction(ctx, id); err == nil {
			previous, hadPrevious = tx, true
		}
	}

	if err := s.repo.DeleteTransaction(ctx, id); err != nil {
		s.log.ErrorContext(ctx, "Failed to delete transaction", log.FieldEntityID, id, log.FieldError, err)
		s.state.Dispatch(func(st *TransactionState) { st.Done("delete", userMessage("Failed to delete transaction", err)) })
		return fmt.Errorf("delete transaction %d: %w", id, err)
	}

	s.state.BeginLane("list")
	s.state.Dispatch(func(st *TransactionState) {
		next := make([]core.Transaction, 0, len(st.Transactions))
		for _, x := range st.Transactions {
			if x.ID != id {
				next = append(next, x)
			}
		}
		st.Transactions = next
		if st.Detail != nil && st.Detail.ID == id {
			st.Detail = nil
		}
		st.Done("delete", "")
	})
	s.log.InfoContext(ctx, "Transaction deleted", log.FieldEntityID, id, log.FieldOperation, log.OpDelete)
	if hadPrevious {
		s.publish(ctx, amqp.ActionDeleted, id, string(previous.Attributes.User), previous.Attributes.Date)
	}
	return nil
}

// Statistics ranks the categories of one month, top five per type.
func (s *TransactionStore) Statistics(ctx context.Context, userID, yearMonth string) (core.MonthlyStatistics, error) {
	t := s.state.BeginLane("statistics")
	s.state.Dispatch(func(st *TransactionState) { st.Start("statistics") })

	stats, err := MonthStatistics(ctx, s.repo, userID, yearMonth)
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to compute statistics",
			log.FieldUserID, userID,
			log.FieldYearMonth, yearMonth,
			log.FieldError, err)
		s.state.Commit(t, func(st *TransactionState) { st.Done("statistics", userMessage("Failed to load statistics", err)) })
		return core.MonthlyStatistics{}, err
	}

	s.state.Commit(t, func(st *TransactionState) {
		st.Statistics = &stats
		st.Done("statistics", "")
	})
	return stats, nil
}

// MonthStatistics loads the month's transactions of userID and ranks them
// by category.
func MonthStatistics(ctx context.Context, repo backend.TransactionRepository, userID, yearMonth string) (core.MonthlyStatistics, error) {
	stats, _, err := MonthReport(ctx, repo, userID, yearMonth)
	return stats, err
}

// MonthReport is MonthStatistics plus the transactions it was computed from.
func MonthReport(ctx context.Context, repo backend.TransactionRepository, userID, yearMonth string) (core.MonthlyStatistics, []core.Transaction, error) {
	if strings.TrimSpace(yearMonth) == "" {
		return core.MonthlyStatistics{}, nil, fmt.Errorf("%w: statistics need a year-month", core.ErrMissingDate)
	}
	first, last, err := calendar.MonthRange(yearMonth)
	if err != nil {
		return core.MonthlyStatistics{}, nil, err
	}
	txs, err := repo.ListTransactions(ctx, core.TransactionFilter{UserID: userID, From: first, To: last})
	if err != nil {
		return core.MonthlyStatistics{}, nil, fmt.Errorf("list month transactions: %w", err)
	}
	return core.CategoryStatistics(calendar.YearMonth(first), txs), txs, nil
}

func (s *TransactionStore) local(id int64) (core.Transaction, bool) {
	st := s.state.Get()
	for _, x := range st.Transactions {
		if x.ID == id {
			return x, true
		}
	}
	if st.Detail != nil && st.Detail.ID == id {
		return *st.Detail, true
	}
	return core.Transaction{}, false
}

func (s *TransactionStore) logChange(ctx context.Context, op string, tx core.Transaction) {
	a := tx.Attributes
	s.log.InfoContext(ctx, "Transaction saved", log.NewFields().
		WithOperation(op).
		WithUser(string(a.User)).
		WithEntity("transaction", tx.ID).
		WithTransaction(string(a.Type), int64(a.Amount), a.Category, a.Date.String()).
		ToSlice()...)
}

// publish announces a change. Broker failures are logged only; the record is
// already saved.
func (s *TransactionStore) publish(ctx context.Context, action amqp.ChangeAction, id int64, userID string, date core.Date) {
	if s.opts.Publisher == nil || userID == "" || date.IsZero() {
		return
	}
	msg := amqp.NewTransactionChangedMessage(action, id, userID, calendar.YearMonth(date))
	if err := s.opts.Publisher.PublishTransactionChanged(ctx, msg); err != nil {
		s.log.WarnContext(ctx, "Failed to publish transaction change",
			log.FieldEntityID, id,
			log.FieldYearMonth, msg.YearMonth,
			log.FieldError, err)
	}
}
