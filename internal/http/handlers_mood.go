package http

import (
	"net/http"

	"lifedesk/internal/app"
	"lifedesk/internal/core"
)

type moodDayResponse struct {
	Date  core.Date  `json:"date"`
	Mood  *core.Mood `json:"mood"`
	Label string     `json:"label,omitempty"`
}

func dayResponse(date core.Date, mood *core.Mood) moodDayResponse {
	out := moodDayResponse{Date: date, Mood: mood}
	if mood != nil {
		out.Label = core.MoodLabel(mood.Attributes.Emoji)
	}
	return out
}

func (s *Server) handleListMoods(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	moods, err := sess.Moods.List(r.Context(), sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(moods).Write(w)
}

func (s *Server) handleTodayMood(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	today := s.today()
	mood, err := sess.Moods.GetByDate(r.Context(), today, sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(dayResponse(today, mood)).Write(w)
}

func (s *Server) handleMoodByDate(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	date, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	mood, err := sess.Moods.GetByDate(r.Context(), date, sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(dayResponse(date, mood)).Write(w)
}

func (s *Server) handleMoodStats(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	stats, err := sess.Moods.ComputeStats(r.Context(), sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(stats).Write(w)
}

// handleUpsertMood records the mood of a day, replacing an earlier entry.
func (s *Server) handleUpsertMood(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	date, err := core.ParseDate(r.PathValue("date"))
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	mood, err := sess.Moods.Upsert(r.Context(), core.MoodEmoji(p.Get("emoji")), p.Get("memo"), date, sess.UserID())
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(dayResponse(date, &mood)).Write(w)
}
