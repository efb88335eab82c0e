package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanlulong/stata-mcp/internal/session"
)

type sessionResponse struct {
	ID             string `json:"id"`
	Kind           string `json:"kind"`
	State          string `json:"state"`
	CreatedAt      string `json:"created_at"`
	LastActivityAt string `json:"last_activity_at"`
}

func toSessionResponse(v session.SessionView) sessionResponse {
	return sessionResponse{
		ID:             v.ID,
		Kind:           v.Kind,
		State:          v.State,
		CreatedAt:      v.CreatedAt.Format(timeLayout),
		LastActivityAt: v.LastActivityAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, err := s.manager.CreateSession(r.Context())
	switch err {
	case nil:
		view, _ := s.manager.Lookup(id)
		writeJSON(w, http.StatusCreated, toSessionResponse(view))
	case session.ErrPoolFull:
		writeError(w, http.StatusServiceUnavailable, "max_sessions reached")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	views := s.manager.ListSessions()
	out := make([]sessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, toSessionResponse(v))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := s.manager.Lookup(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(view))
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := s.manager.DestroySession(r.Context(), id)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStopSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	handle, err := s.manager.Peek(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": sendBreak(handle)})
}
