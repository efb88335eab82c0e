package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hanlulong/stata-mcp/internal/stream"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// handleViewData dispatches a view_data command and relays the worker's
// JSON-encoded {columns, rows, index, dtypes, data} payload unmodified.
func (s *Server) handleViewData(w http.ResponseWriter, r *http.Request) {
	lease, ok := s.acquireOrWriteError(w, r)
	if !ok {
		return
	}
	defer s.manager.Release(lease)

	cmd := worker.Command{
		CommandID:       newCommandID(),
		Kind:            worker.KindViewData,
		IfCondition:     r.URL.Query().Get("if_condition"),
		DeadlineSeconds: s.cfgHolder.Get().CommandTimeout.Seconds(),
	}
	reqCtx := &stream.RequestContext{
		Transport: stream.TransportRestSSE,
		RequestID: cmd.CommandID,
		Sink:      stream.Discard,
	}

	res, err := s.ctrl.Run(r.Context(), lease, cmd, reqCtx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if res.Status != worker.StatusOk {
		writeError(w, http.StatusUnprocessableEntity, res.ErrorMessage)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if !json.Valid([]byte(res.OutputText)) {
		writeError(w, http.StatusInternalServerError, "worker returned malformed dataset payload")
		return
	}
	_, _ = w.Write([]byte(res.OutputText))
}

// handleGraph serves a previously exported graph image for the session's
// most recent command, looked up by name in Server.lastArtefacts.
func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	sessionID := r.URL.Query().Get("session_id")

	path, ok := s.lookupArtefact(sessionID, name)
	if !ok {
		writeError(w, http.StatusNotFound, "graph not found")
		return
	}
	http.ServeFile(w, r, path)
}
