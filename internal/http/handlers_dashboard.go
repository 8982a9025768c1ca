package http

import (
	"errors"
	"net/http"
	"strings"

	"lifedesk/internal/app"
	"lifedesk/internal/core"
	"lifedesk/internal/services"
)

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	data, err := sess.Transactions.Dashboard(r.Context(), sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(data).Write(w)
}

// handleStatistics ranks the categories of ?month=YYYY-MM (default: this month).
func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	month, err := ParseMonthParam(r.URL.Query(), s.today())
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := sess.Transactions.Statistics(r.Context(), sess.UserID(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(stats).Write(w)
}

// handleListTransactions serves ?view=all|monthly|daily&date=...&type=...
func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	q := r.URL.Query()
	filter := services.ListFilter{
		View: services.ViewMode(strings.ToLower(strings.TrimSpace(q.Get("view")))),
		Date: strings.TrimSpace(q.Get("date")),
		Type: core.TransactionType(strings.ToLower(strings.TrimSpace(q.Get("type")))),
	}
	txs, err := sess.Transactions.List(r.Context(), sess.UserID(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(txs).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	in, err := s.transactionInput(r, sess.UserID())
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	tx, err := sess.Transactions.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Data(tx).Write(w)
}

// handleTransactionDetail answers 404 for any failure; Detail does not
// distinguish a missing record from an unreachable server.
func (s *Server) handleTransactionDetail(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	tx := sess.Transactions.Detail(r.Context(), id)
	if tx == nil {
		NotFoundError("transaction not found").Write(w)
		return
	}
	NewResponse().Data(tx).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	in, err := s.transactionInput(r, sess.UserID())
	if err != nil {
		writeBodyError(w, r, err)
		return
	}
	tx, err := sess.Transactions.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(tx).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := sess.Transactions.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}

type bodyError struct{ err error }

func (e bodyError) Error() string { return e.err.Error() }

// writeBodyError answers 400 for an unreadable body and maps field errors
// like any other store error.
func writeBodyError(w http.ResponseWriter, r *http.Request, err error) {
	var be bodyError
	if errors.As(err, &be) {
		BadRequestError("invalid request body: " + be.Error()).Write(w)
		return
	}
	writeError(w, r, err)
}

// transactionInput reads a JSON or form body. Amounts may carry digit
// grouping ("12,000"); a missing date means today.
func (s *Server) transactionInput(r *http.Request, userID string) (core.TransactionInput, error) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		return core.TransactionInput{}, bodyError{err}
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.TransactionInput{}, err
	}
	date := s.today()
	if raw := p.Get("date"); raw != "" {
		if date, err = core.ParseDate(raw); err != nil {
			return core.TransactionInput{}, err
		}
	}
	return core.TransactionInput{
		Type:     core.TransactionType(strings.ToLower(p.Get("type"))),
		Amount:   amount,
		Category: p.Get("category"),
		Memo:     p.Get("memo"),
		Date:     date,
		UserID:   userID,
	}, nil
}
