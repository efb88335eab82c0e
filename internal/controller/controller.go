// Package controller implements the Execution Controller: the per-session
// state machine that dispatches one Command to its worker, supervises it
// with an adaptive-cadence ticker, enforces the deadline through a
// graceful→aggressive→forceful Termination Ladder, and streams heartbeats
// and log-tail excerpts to the RequestContext's sink.
package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/metrics"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/stream"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// WorkerConn is the subset of a worker connection the controller drives.
// session.Lease.Worker only promises session.WorkerHandle (Stop/Alive); the
// controller asserts it also satisfies WorkerConn, which every worker this
// repo spawns does (*worker.Worker).
type WorkerConn interface {
	session.WorkerHandle
	Send(cmd worker.Command) error
	Results() <-chan worker.Result
	Stream() <-chan worker.StreamChunk
}

// ErrNotAWorkerConn is returned when a lease's worker handle does not
// implement WorkerConn (only possible with a non-conforming test fake).
var ErrNotAWorkerConn = fmt.Errorf("session worker does not implement controller.WorkerConn")

// Controller runs commands against sessions.
type Controller struct {
	manager *session.Manager
}

// New builds a Controller bound to a Session Manager, used to mark sessions
// Stopped when the termination ladder reaches its forceful stage.
func New(manager *session.Manager) *Controller {
	return &Controller{manager: manager}
}

// tickerInterval implements the adaptive supervisory-loop cadence: 0.5s for
// the first 60s, 20s up to 5 minutes, 30s thereafter.
func tickerInterval(elapsed time.Duration) time.Duration {
	switch {
	case elapsed < 60*time.Second:
		return 500 * time.Millisecond
	case elapsed < 5*time.Minute:
		return 20 * time.Second
	default:
		return 30 * time.Second
	}
}

// Run executes cmd against lease's worker, honouring cmd.DeadlineSeconds via
// the Termination Ladder, and returns the terminal Result.
func (c *Controller) Run(ctx context.Context, lease *session.Lease, cmd worker.Command, reqCtx *stream.RequestContext) (worker.Result, error) {
	wc, ok := lease.Worker.(WorkerConn)
	if !ok {
		return worker.Result{}, ErrNotAWorkerConn
	}

	logger := log.WithComponent("controller")
	t0 := time.Now()
	deadline := time.Duration(cmd.DeadlineSeconds * float64(time.Second))

	reqCtx.Sink.Publish(worker.StreamChunk{
		CommandID: cmd.CommandID, Kind: worker.StreamHeartbeat, Timestamp: t0, ElapsedSeconds: 0,
	})
	reqCtx.Sink.Publish(worker.StreamChunk{
		CommandID: cmd.CommandID, Kind: worker.StreamInfo, Timestamp: t0,
		PayloadText: fmt.Sprintf("dispatching %s", cmd.Kind),
	})

	if deadline <= 0 {
		res, err := c.runLadder(ctx, lease.SessionID, wc, cmd.CommandID, nil)
		metrics.ObserveCommandDuration(string(res.Status), t0)
		return res, err
	}

	if err := wc.Send(cmd); err != nil {
		return worker.Result{}, fmt.Errorf("dispatch command: %w", err)
	}

	ticker := time.NewTicker(tickerInterval(0))
	defer ticker.Stop()

	for {
		select {
		case res, resultOK := <-wc.Results():
			if !resultOK {
				return c.onWorkerDeath(lease.SessionID, cmd.CommandID, t0)
			}
			metrics.ObserveCommandDuration(string(res.Status), t0)
			return res, nil

		case chunk, chunkOK := <-wc.Stream():
			if chunkOK {
				reqCtx.Sink.Publish(chunk)
			}

		case <-ticker.C:
			elapsed := time.Since(t0)
			if elapsed > deadline {
				res, err := c.runLadder(ctx, lease.SessionID, wc, cmd.CommandID, wc.Results())
				metrics.ObserveCommandDuration(string(res.Status), t0)
				return res, err
			}
			reqCtx.Sink.Publish(worker.StreamChunk{
				CommandID: cmd.CommandID, Kind: worker.StreamHeartbeat,
				Timestamp: time.Now(), ElapsedSeconds: elapsed.Seconds(),
			})
			ticker.Reset(tickerInterval(elapsed))

		case <-ctx.Done():
			logger.Info().Str("command_id", cmd.CommandID).Msg("transport cancellation observed, entering termination ladder")
			res, err := c.runLadder(context.Background(), lease.SessionID, wc, cmd.CommandID, wc.Results())
			metrics.ObserveCommandDuration(string(res.Status), t0)
			return res, err
		}
	}
}

func (c *Controller) onWorkerDeath(sessionID, commandID string, t0 time.Time) (worker.Result, error) {
	c.manager.MarkDead(sessionID)
	log.AuditInfo("session.worker_died", "worker died mid-command", map[string]any{
		"session_id": sessionID,
		"command_id": commandID,
	})
	return worker.Result{
		CommandID:    commandID,
		Status:       worker.StatusError,
		ErrorMessage: "session terminated",
		DurationMs:   time.Since(t0).Milliseconds(),
	}, nil
}
