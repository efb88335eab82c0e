package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanlulong/stata-mcp/internal/config"
	"github.com/hanlulong/stata-mcp/internal/controller"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

type fakeConn struct {
	results chan worker.Result
	streamC chan worker.StreamChunk
	stopped atomic.Bool
	onSend  func(cmd worker.Command)
}

func newFakeConn() *fakeConn {
	return &fakeConn{results: make(chan worker.Result, 4), streamC: make(chan worker.StreamChunk, 16)}
}

func (f *fakeConn) Send(cmd worker.Command) error {
	if f.onSend != nil {
		f.onSend(cmd)
	}
	return nil
}
func (f *fakeConn) Results() <-chan worker.Result     { return f.results }
func (f *fakeConn) Stream() <-chan worker.StreamChunk { return f.streamC }
func (f *fakeConn) Stop(_ context.Context) error      { f.stopped.Store(true); return nil }
func (f *fakeConn) Alive() bool                       { return !f.stopped.Load() }

type fakeSpawner struct{ conn *fakeConn }

func (s *fakeSpawner) Spawn(_ context.Context) (session.WorkerHandle, error) { return s.conn, nil }

func newTestServer(t *testing.T) (*Server, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	mgr := session.NewManager(session.Config{MaxSessions: 3, SessionTimeout: time.Minute}, &fakeSpawner{conn: conn})
	require.NoError(t, mgr.Bootstrap(context.Background()))
	ctrl := controller.New(mgr)

	holder := config.NewHolder(config.AppConfig{
		CommandTimeout:    5 * time.Second,
		ResultDisplayMode: config.DisplayModeFull,
	}, nil, config.CLIOverrides{}, "")

	srv := NewServer(holder, mgr, ctrl, t.TempDir(), func() bool { return true })
	return srv, conn
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestHandleRunSelectionReturnsFinalOutput(t *testing.T) {
	srv, conn := newTestServer(t)
	conn.onSend = func(cmd worker.Command) {
		go func() {
			conn.results <- worker.Result{CommandID: cmd.CommandID, Status: worker.StatusOk, OutputText: "4"}
		}()
	}

	req := httptest.NewRequest(http.MethodPost, "/run_selection", strings.NewReader("display 2+2"))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "4", w.Body.String())
}

func TestHandleRunSelectionBusySessionReturns409(t *testing.T) {
	srv, _ := newTestServer(t)
	id, err := srv.manager.CreateSession(context.Background())
	require.NoError(t, err)
	lease, err := srv.manager.Acquire(context.Background(), id)
	require.NoError(t, err)
	defer srv.manager.Release(lease)

	req := httptest.NewRequest(http.MethodPost, "/run_selection?session_id="+id, strings.NewReader("display 1"))
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestHandleStopExecutionSendsBreak(t *testing.T) {
	srv, conn := newTestServer(t)
	var gotKind worker.CommandKind
	conn.onSend = func(cmd worker.Command) { gotKind = cmd.Kind }

	req := httptest.NewRequest(http.MethodPost, "/stop_execution", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, worker.KindBreak, gotKind)
}

func TestSessionCRUDRoundTrip(t *testing.T) {
	srv, _ := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/sessions", nil))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sessions", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), session.DefaultSessionID)
}

func TestHandleExecutionStatusUnknownSessionReturns404(t *testing.T) {
	srv, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/execution_status?session_id=nope", nil)
	w := httptest.NewRecorder()
	srv.Routes().ServeHTTP(w, req)
	require.Equal(t, http.StatusNotFound, w.Code)
}
