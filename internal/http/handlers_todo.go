package http

import (
	"net/http"
	"strconv"

	"lifedesk/internal/app"
	"lifedesk/internal/core"
)

func (s *Server) handleListTodos(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	if err := sess.Todos.List(r.Context(), sess.UserID()); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(sess.Todos.State().Get().Todos).Write(w)
}

func (s *Server) handleAddTodo(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	todo, err := sess.Todos.Add(r.Context(), core.TodoInput{
		Content: p.Get("content"),
		UserID:  sess.UserID(),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusCreated).Data(todo).Write(w)
}

// handleUpdateTodo applies only the fields present in the body.
func (s *Server) handleUpdateTodo(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	var patch core.TodoPatch
	if p.Has("content") {
		content := p.Get("content")
		patch.Content = &content
	}
	if p.Has("isCompleted") {
		done, err := strconv.ParseBool(p.Get("isCompleted"))
		if err != nil {
			BadRequestError("isCompleted must be true or false").Write(w)
			return
		}
		patch.IsCompleted = &done
	}
	if patch.Content == nil && patch.IsCompleted == nil {
		UnprocessableEntityError("nothing to update").Write(w)
		return
	}

	todo, err := sess.Todos.Update(r.Context(), id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Data(todo).Write(w)
}

func (s *Server) handleDeleteTodo(w http.ResponseWriter, r *http.Request, sess *app.Session) {
	id, err := pathID(r, "id")
	if err != nil {
		BadRequestError(err.Error()).Write(w)
		return
	}
	if err := sess.Todos.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	NewResponse().Status(http.StatusNoContent).Write(w)
}
