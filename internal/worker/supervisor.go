package worker

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"time"

	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/metrics"
	"github.com/hanlulong/stata-mcp/internal/procgroup"
	"github.com/hanlulong/stata-mcp/internal/session"
)

// Config bounds worker process spawn and lifecycle behaviour.
type Config struct {
	// EnginePath is the worker executable itself, launched directly as the
	// child's argv[0]; a directory is not accepted here.
	EnginePath    string
	EngineEdition string

	// StartTimeout bounds how long Spawn waits for the child's ready frame.
	StartTimeout time.Duration
	// KillTimeout bounds the grace period between SIGTERM and SIGKILL.
	KillTimeout time.Duration

	// DisplayCapable hosts ask the child to run headless with no dock/menu
	// bar icon; the worker binary interprets this flag itself.
	DisplayCapable bool

	// StreamInterval is the cadence of the child's own log-tail heartbeat
	// task, passed through as a flag since the wire Command carries no
	// server-side configuration.
	StreamInterval time.Duration
}

// Supervisor implements session.Spawner by launching a clean-slate child
// process per session, matching the engine's fork-unsafety and Windows'
// spawn-only process model.
type Supervisor struct {
	cfg Config
}

// NewSupervisor builds a Supervisor bound to cfg.
func NewSupervisor(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Spawn starts one worker process and blocks until it reports ready or
// StartTimeout elapses.
func (s *Supervisor) Spawn(ctx context.Context) (session.WorkerHandle, error) {
	startedAt := time.Now()

	streamInterval := s.cfg.StreamInterval
	if streamInterval <= 0 {
		streamInterval = 6 * time.Second
	}
	cmd := exec.CommandContext(ctx, s.cfg.EnginePath,
		"--edition", s.cfg.EngineEdition,
		"--headless="+boolFlag(s.cfg.DisplayCapable),
		"--stream-interval", streamInterval.String(),
	)
	procgroup.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("worker stderr pipe: %w", err)
	}

	w := newWorker(cmd, s.cfg.KillTimeout)
	w.stdin = stdin

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("worker start: %w", err)
	}
	metrics.WorkersSpawnedTotal.Inc()

	go captureStderr(stderr, w.stderr)
	go monitorExit(w)

	ready := make(chan error, 1)
	go w.readLoop(stdout, ready)

	startTimeout := s.cfg.StartTimeout
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}

	select {
	case err := <-ready:
		if err != nil {
			_ = w.Stop(context.Background())
			return nil, err
		}
	case <-time.After(startTimeout):
		_ = w.Stop(context.Background())
		return nil, ErrStartTimeout
	case <-ctx.Done():
		_ = w.Stop(context.Background())
		return nil, ctx.Err()
	}

	metrics.WorkerStartDuration.Observe(time.Since(startedAt).Seconds())
	log.WithComponent("worker").Info().
		Int("pid", cmd.Process.Pid).
		Dur("start_duration", time.Since(startedAt)).
		Msg("worker ready")

	return w, nil
}

func captureStderr(stderr interface{ Read([]byte) (int, error) }, ring *lineRing) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		_, _ = ring.Write(scanner.Bytes())
		_, _ = ring.Write([]byte("\n"))
	}
}

// monitorExit is the sole caller of cmd.Wait() for a worker's process; it
// closes w.exited once the process has fully exited, for Stop to observe,
// and records the exit cause.
func monitorExit(w *Worker) {
	err := w.cmd.Wait()
	w.alive.Store(false)
	close(w.exited)

	cause := "clean"
	if err != nil {
		cause = "crashed"
	}
	metrics.WorkersExitedTotal.WithLabelValues(cause).Inc()
}

func boolFlag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
