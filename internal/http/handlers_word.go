package http

import (
	"errors"
	"net/http"
	"strings"

	"lifedesk/internal/app"
	"lifedesk/internal/core"
)

type wordOfDayResponse struct {
	Level  core.Level `json:"level"`
	Word   *core.Word `json:"word"`
	NoData bool       `json:"noData"`
}

// handleListWords returns every word of the selected level; ?level= switches
// the level first.
func (s *Server) handleListWords(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
		level, err := core.ParseLevel(raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if err := sess.Words.SetLevel(r.Context(), level); err != nil {
			writeError(w, r, err)
			return
		}
	}
	words, err := sess.Words.FetchWordsByLevel(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(words).Write(w)
}

// handleWordOfDay answers noData rather than an error when the level is empty.
func (s *Server) handleWordOfDay(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	word, err := sess.Words.FetchWordOfDay(r.Context())
	level := sess.Words.State().Get().Level
	if errors.Is(err, core.ErrNoWords) {
		NewResponse().Data(wordOfDayResponse{Level: level, NoData: true}).Write(w)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(wordOfDayResponse{Level: level, Word: &word}).Write(w)
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	level, err := core.ParseLevel(p.Get("level"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := sess.Words.SetLevel(r.Context(), level); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(map[string]core.Level{"level": level}).Write(w)
}

func (s *Server) handleFavorites(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if err := sess.Words.SyncFavorites(r.Context(), sess.UserID()); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(map[string][]int64{"favorites": sess.Words.State().Get().Favorites}).Write(w)
}

type favoriteResponse struct {
	WordID   int64 `json:"wordId"`
	Favorite bool  `json:"favorite"`
}

func (s *Server) handleToggleFavorite(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	fav, err := sess.Words.ToggleFavorite(r.Context(), sess.UserID(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(favoriteResponse{WordID: id, Favorite: fav}).Write(w)
}
