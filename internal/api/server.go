// Package api implements the REST/SSE transport adapter for the editor
// surface: session CRUD, run_file/run_selection/stop_execution, streaming,
// dataset preview, and graph retrieval. Grounded on the teacher's
// internal/api/server_routes.go router composition and internal/api/v3
// handler-delegation shape, narrowed to this domain's small closed endpoint
// list.
package api

import (
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/hanlulong/stata-mcp/internal/config"
	"github.com/hanlulong/stata-mcp/internal/controller"
	"github.com/hanlulong/stata-mcp/internal/filter"
	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// Server binds the Session Manager and Execution Controller to the REST/SSE
// surface. EngineAvailable reports liveness for /health without needing a
// worker round trip.
type Server struct {
	cfgHolder *config.Holder
	manager   *session.Manager
	ctrl      *controller.Controller

	artefactRoot    string
	engineAvailable func() bool

	artefactMu    sync.Mutex
	lastArtefacts map[string][]worker.Artefact
}

// NewServer builds a Server. artefactRoot is the directory graph exports are
// written under (see internal/artefact); engineAvailable reports whether the
// embeddable engine binary was found at startup.
func NewServer(cfgHolder *config.Holder, manager *session.Manager, ctrl *controller.Controller, artefactRoot string, engineAvailable func() bool) *Server {
	return &Server{
		cfgHolder:       cfgHolder,
		manager:         manager,
		ctrl:            ctrl,
		artefactRoot:    artefactRoot,
		engineAvailable: engineAvailable,
		lastArtefacts:   make(map[string][]worker.Artefact),
	}
}

// Routes builds the chi router for the REST/SSE surface. It is returned as
// *chi.Mux (not http.Handler) so the composition root can Mount the MCP
// adapter's handlers onto the same listener at /mcp and /mcp-streamable, per
// spec.md §6's single configurable host/port for both transports.
func (s *Server) Routes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RequestID)
	r.Use(log.Middleware())
	r.Use(httpMetrics)
	r.Use(httprate.LimitByIP(600, time.Minute))

	r.Get("/health", s.handleHealth)

	r.Get("/run_file", s.handleRunFile)
	r.Get("/run_file/stream", s.handleRunFileStream)
	r.Post("/run_selection", s.handleRunSelection)
	r.Post("/stop_execution", s.handleStopExecution)
	r.Get("/execution_status", s.handleExecutionStatus)
	r.Get("/view_data", s.handleViewData)
	r.Get("/graphs/{name}", s.handleGraph)

	r.Post("/sessions", s.handleCreateSession)
	r.Get("/sessions", s.handleListSessions)
	r.Get("/sessions/{id}", s.handleGetSession)
	r.Delete("/sessions/{id}", s.handleDeleteSession)
	r.Post("/sessions/{id}/stop", s.handleStopSession)

	return r
}

func (s *Server) filterPolicy() filter.Policy {
	if s.cfgHolder.Get().ResultDisplayMode == config.DisplayModeCompact {
		return filter.PolicyCompact
	}
	return filter.PolicyFull
}

// filterResult applies the configured result_display_mode and token bound to
// a terminal Result's output, falling back to the unfiltered text on a
// filter/spill failure per spec.md §7's non-fatal SpillFailed/FilterFailed
// handling.
func (s *Server) filterResult(res worker.Result, commandID string) string {
	if res.Status == worker.StatusError && res.ErrorMessage != "" && res.OutputText == "" {
		return res.ErrorMessage
	}
	cfg := s.cfgHolder.Get()
	text, _, err := filter.Run(res.OutputText, s.filterPolicy(), commandID, cfg.MaxOutputTokens, filterSpillDir())
	if err != nil {
		log.WithComponent("api").Warn().Err(err).Str("command_id", commandID).Msg("output filter failed, returning unfiltered text")
		return res.OutputText + "\nwarning: output filtering failed, showing raw output"
	}
	return text
}

func (s *Server) rememberArtefacts(sessionID string, res worker.Result) {
	if len(res.Artefacts) == 0 {
		return
	}
	s.artefactMu.Lock()
	s.lastArtefacts[sessionID] = res.Artefacts
	s.artefactMu.Unlock()
}

func (s *Server) lookupArtefact(sessionID, name string) (string, bool) {
	s.artefactMu.Lock()
	defer s.artefactMu.Unlock()
	for _, a := range s.lastArtefacts[sessionID] {
		if a.Name == name {
			return a.Path, true
		}
	}
	return "", false
}
