package controller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/stream"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

type fakeConn struct {
	results chan worker.Result
	streamC chan worker.StreamChunk
	stopped atomic.Bool

	onSend func(cmd worker.Command)
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		results: make(chan worker.Result, 4),
		streamC: make(chan worker.StreamChunk, 16),
	}
}

func (f *fakeConn) Send(cmd worker.Command) error {
	if f.onSend != nil {
		f.onSend(cmd)
	}
	return nil
}
func (f *fakeConn) Results() <-chan worker.Result       { return f.results }
func (f *fakeConn) Stream() <-chan worker.StreamChunk   { return f.streamC }
func (f *fakeConn) Stop(_ context.Context) error        { f.stopped.Store(true); return nil }
func (f *fakeConn) Alive() bool                         { return !f.stopped.Load() }

type fakeSpawner struct {
	conn *fakeConn
}

func (s *fakeSpawner) Spawn(_ context.Context) (session.WorkerHandle, error) {
	return s.conn, nil
}

func newTestSetup(t *testing.T) (*Controller, *session.Manager, *fakeConn) {
	t.Helper()
	conn := newFakeConn()
	mgr := session.NewManager(session.Config{MaxSessions: 2, SessionTimeout: time.Minute}, &fakeSpawner{conn: conn})
	require.NoError(t, mgr.Bootstrap(context.Background()))
	return New(mgr), mgr, conn
}

func newSink() *stream.ChanSink {
	return stream.NewChanSink(stream.TransportRestSSE, 32)
}

func TestRunReturnsResultOnSuccess(t *testing.T) {
	ctrl, mgr, conn := newTestSetup(t)
	lease, err := mgr.Acquire(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)

	conn.onSend = func(cmd worker.Command) {
		go func() {
			conn.results <- worker.Result{CommandID: cmd.CommandID, Status: worker.StatusOk, OutputText: "4"}
		}()
	}

	reqCtx := &stream.RequestContext{Transport: stream.TransportRestSSE, Sink: newSink()}
	res, err := ctrl.Run(context.Background(), lease, worker.Command{CommandID: "c1", Kind: worker.KindRunCode, DeadlineSeconds: 5}, reqCtx)
	require.NoError(t, err)
	require.Equal(t, worker.StatusOk, res.Status)
	require.Equal(t, "4", res.OutputText)
}

func TestRunTimesOutAndKillsWorker(t *testing.T) {
	ctrl, mgr, conn := newTestSetup(t)
	lease, err := mgr.Acquire(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)

	// Never reply; the command must time out through the ladder.
	reqCtx := &stream.RequestContext{Transport: stream.TransportRestSSE, Sink: newSink()}
	res, err := ctrl.Run(context.Background(), lease, worker.Command{CommandID: "c2", Kind: worker.KindRunCode, DeadlineSeconds: 0.1}, reqCtx)
	require.NoError(t, err)
	require.Equal(t, worker.StatusTimeout, res.Status)
	require.True(t, conn.stopped.Load())
}

func TestRunZeroDeadlineTimesOutImmediately(t *testing.T) {
	ctrl, mgr, _ := newTestSetup(t)
	lease, err := mgr.Acquire(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)

	reqCtx := &stream.RequestContext{Transport: stream.TransportRestSSE, Sink: newSink()}
	start := time.Now()
	res, err := ctrl.Run(context.Background(), lease, worker.Command{CommandID: "c3", Kind: worker.KindRunCode, DeadlineSeconds: 0}, reqCtx)
	require.NoError(t, err)
	require.Equal(t, worker.StatusTimeout, res.Status)
	require.Empty(t, res.OutputText)
	require.Less(t, time.Since(start), 3*time.Second)
}

func TestRunResultRacingLadderBeforeForcefulWinsOk(t *testing.T) {
	ctrl, mgr, conn := newTestSetup(t)
	lease, err := mgr.Acquire(context.Background(), session.DefaultSessionID)
	require.NoError(t, err)

	conn.onSend = func(cmd worker.Command) {
		// No reply to any sent command, so the ladder starts; the goroutine
		// below delivers the late-but-before-stage-3 Result.
	}

	go func() {
		// Land inside the ladder's stage-1 (graceful) wait window, which
		// opens once the first tick observes the deadline has passed.
		time.Sleep(600 * time.Millisecond)
		conn.results <- worker.Result{CommandID: "c4", Status: worker.StatusOk, OutputText: "late but ok"}
	}()

	reqCtx := &stream.RequestContext{Transport: stream.TransportRestSSE, Sink: newSink()}
	res, err := ctrl.Run(context.Background(), lease, worker.Command{CommandID: "c4", Kind: worker.KindRunCode, DeadlineSeconds: 0.1}, reqCtx)
	require.NoError(t, err)
	require.Equal(t, worker.StatusOk, res.Status)
	require.False(t, conn.stopped.Load())
}
