package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/hanlulong/stata-mcp/internal/artefact"
	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/stream"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// prepareArtefactCapture stamps cmd.ArtefactDir when reqCtx opts into graph
// capture, logging and continuing without capture on a directory failure
// rather than failing the whole command.
func (s *Server) prepareArtefactCapture(cmd worker.Command, sessionID string, capture bool) worker.Command {
	if !capture {
		return cmd
	}
	cmd, err := artefact.PrepareDispatch(s.artefactRoot, sessionID, cmd)
	if err != nil {
		log.WithComponent("api").Warn().Err(err).Msg("failed to prepare artefact directory, continuing without graph capture")
	}
	return cmd
}

func (s *Server) acquireOrWriteError(w http.ResponseWriter, r *http.Request) (*session.Lease, bool) {
	sessionID := r.URL.Query().Get("session_id")
	lease, err := s.manager.Acquire(r.Context(), sessionID)
	switch {
	case err == nil:
		return lease, true
	case errors.Is(err, session.ErrBusy):
		writeError(w, http.StatusConflict, "session busy")
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusRequestTimeout, "timed out waiting for the default session")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
	return nil, false
}

func (s *Server) handleRunFile(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	lease, ok := s.acquireOrWriteError(w, r)
	if !ok {
		return
	}
	defer s.manager.Release(lease)

	cmd := worker.Command{
		CommandID:       newCommandID(),
		Kind:            worker.KindRunFile,
		FilePath:        filePath,
		DeadlineSeconds: deadlineSeconds(r, s.cfgHolder.Get().CommandTimeout),
	}
	reqCtx := &stream.RequestContext{
		Transport:        stream.TransportRestSSE,
		RequestID:        cmd.CommandID,
		Sink:             stream.Discard,
		CaptureArtefacts: true,
	}
	cmd = s.prepareArtefactCapture(cmd, lease.SessionID, reqCtx.CaptureArtefacts)

	res, err := s.ctrl.Run(r.Context(), lease, cmd, reqCtx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rememberArtefacts(lease.SessionID, res)
	writeText(w, http.StatusOK, s.filterResult(res, cmd.CommandID))
}

func (s *Server) handleRunSelection(w http.ResponseWriter, r *http.Request) {
	code, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	lease, ok := s.acquireOrWriteError(w, r)
	if !ok {
		return
	}
	defer s.manager.Release(lease)

	cmd := worker.Command{
		CommandID:       newCommandID(),
		Kind:            worker.KindRunCode,
		Code:            code,
		DeadlineSeconds: deadlineSeconds(r, s.cfgHolder.Get().CommandTimeout),
	}
	reqCtx := &stream.RequestContext{
		Transport:        stream.TransportRestSSE,
		RequestID:        cmd.CommandID,
		Sink:             stream.Discard,
		CaptureArtefacts: true,
	}
	cmd = s.prepareArtefactCapture(cmd, lease.SessionID, reqCtx.CaptureArtefacts)

	res, err := s.ctrl.Run(r.Context(), lease, cmd, reqCtx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.rememberArtefacts(lease.SessionID, res)
	writeText(w, http.StatusOK, s.filterResult(res, cmd.CommandID))
}

func (s *Server) handleRunFileStream(w http.ResponseWriter, r *http.Request) {
	filePath := r.URL.Query().Get("file_path")
	if filePath == "" {
		writeError(w, http.StatusBadRequest, "file_path is required")
		return
	}

	lease, ok := s.acquireOrWriteError(w, r)
	if !ok {
		return
	}
	defer s.manager.Release(lease)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	sink := stream.NewChanSink(stream.TransportRestSSE, 64)
	cmd := worker.Command{
		CommandID:        newCommandID(),
		Kind:             worker.KindRunFile,
		FilePath:         filePath,
		DeadlineSeconds:  deadlineSeconds(r, s.cfgHolder.Get().CommandTimeout),
		StreamingEnabled: true,
	}
	reqCtx := &stream.RequestContext{
		Transport:        stream.TransportRestSSE,
		RequestID:        cmd.CommandID,
		Sink:             sink,
		CaptureArtefacts: true,
	}
	cmd = s.prepareArtefactCapture(cmd, lease.SessionID, reqCtx.CaptureArtefacts)

	done := make(chan struct{})
	var res worker.Result
	var runErr error
	go func() {
		res, runErr = s.ctrl.Run(r.Context(), lease, cmd, reqCtx)
		sink.Close()
		close(done)
	}()

	for {
		select {
		case chunk, chunkOK := <-sink.C():
			if !chunkOK {
				continue
			}
			writeSSEFrame(w, chunk.PayloadText)
			flusher.Flush()
		case <-done:
			drainRemaining(sink, w, flusher)
			if runErr != nil {
				writeSSEFrame(w, "error: "+runErr.Error())
			} else {
				writeSSEFrame(w, s.filterResult(res, cmd.CommandID))
			}
			flusher.Flush()
			s.rememberArtefacts(lease.SessionID, res)
			return
		case <-r.Context().Done():
			return
		}
	}
}

func drainRemaining(sink *stream.ChanSink, w http.ResponseWriter, flusher http.Flusher) {
	for {
		select {
		case chunk, ok := <-sink.C():
			if !ok {
				return
			}
			writeSSEFrame(w, chunk.PayloadText)
			flusher.Flush()
		default:
			return
		}
	}
}

func (s *Server) handleStopExecution(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	handle, err := s.manager.Peek(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": sendBreak(handle)})
}

func (s *Server) handleExecutionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	view, err := s.manager.Lookup(sessionID)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	resp := map[string]any{"state": view.State}
	if view.State == "busy" {
		resp["elapsed_seconds"] = time.Since(view.LastActivityAt).Seconds()
	}
	writeJSON(w, http.StatusOK, resp)
}
