package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/procgroup"
)

const maxFrameBytes = 8 * 1024 * 1024

// Worker is the parent-side handle to one child process hosting one
// embedded-engine instance. It owns the command/result/stream queues
// described by the protocol and the process supervision primitives
// (graceful SIGTERM, forceful SIGKILL) borrowed from the teacher's ffmpeg
// runner.
type Worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *lineRing

	results chan Result
	stream  chan StreamChunk
	exited  chan struct{} // closed once cmd.Wait() returns

	killTimeout time.Duration

	mu      sync.Mutex
	current string // command_id currently in flight, "" if idle
	alive   atomic.Bool

	writeMu sync.Mutex
}

func newWorker(cmd *exec.Cmd, killTimeout time.Duration) *Worker {
	w := &Worker{
		cmd:         cmd,
		stderr:      newLineRing(256),
		results:     make(chan Result, 4),
		stream:      make(chan StreamChunk, 64),
		exited:      make(chan struct{}),
		killTimeout: killTimeout,
	}
	w.alive.Store(true)
	return w
}

// Results returns the channel of terminal Results, one per dispatched
// Command.
func (w *Worker) Results() <-chan Result { return w.results }

// Stream returns the channel of StreamChunks emitted while a command is in
// flight.
func (w *Worker) Stream() <-chan StreamChunk { return w.stream }

// Send writes a Command frame to the worker's stdin. Only one command may
// be outstanding at a time; callers are responsible for that invariant
// (enforced above this layer by the session lease).
func (w *Worker) Send(cmd Command) error {
	if !w.alive.Load() {
		return ErrDead
	}
	w.mu.Lock()
	w.current = cmd.CommandID
	w.mu.Unlock()

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	buf, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := w.stdin.Write(buf); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Alive reports whether the worker process is still running.
func (w *Worker) Alive() bool { return w.alive.Load() }

// LastStderrLines returns the n most recent stderr lines, for diagnostics
// when a worker dies unexpectedly.
func (w *Worker) LastStderrLines(n int) []string { return w.stderr.lastN(n) }

// Stop escalates through SIGTERM (cooperative) then, if the process has not
// exited within killTimeout, SIGKILL via the process group. Matches the
// parent's forceful termination-ladder stage 3. cmd.Wait() itself is only
// ever called by the exit-monitoring goroutine started in Spawn; Stop only
// waits on the exited channel it closes.
func (w *Worker) Stop(ctx context.Context) error {
	if !w.alive.Load() {
		return nil
	}
	if w.cmd == nil || w.cmd.Process == nil {
		return nil
	}

	logger := log.WithComponent("worker")
	logger.Debug().Int("pid", w.cmd.Process.Pid).Msg("sending SIGTERM to worker")
	if err := procgroup.Kill(w.cmd, syscall.SIGTERM); err != nil {
		return err
	}

	killTimeout := w.killTimeout
	if killTimeout <= 0 {
		killTimeout = 5 * time.Second
	}
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-w.exited:
		return nil
	case <-time.After(killTimeout):
	case <-ctx.Done():
	}

	logger.Warn().Int("pid", w.cmd.Process.Pid).Msg("worker did not exit after SIGTERM, sending SIGKILL")
	_ = procgroup.Kill(w.cmd, syscall.SIGKILL)
	<-w.exited
	return nil
}

// readLoop blocks for the child's one-time ready frame, signalling ready,
// then demultiplexes every subsequent frame into results/stream until
// stdout closes.
func (w *Worker) readLoop(stdout io.Reader, ready chan<- error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)

	if !scanner.Scan() {
		ready <- fmt.Errorf("worker closed stdout before becoming ready: %w", scanner.Err())
		close(w.results)
		close(w.stream)
		return
	}
	var first envelope
	if err := json.Unmarshal(scanner.Bytes(), &first); err != nil || first.Type != envReady {
		ready <- fmt.Errorf("worker's first frame was not a ready notice")
		close(w.results)
		close(w.stream)
		return
	}
	ready <- nil

	for scanner.Scan() {
		var env envelope
		if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
			continue
		}
		switch env.Type {
		case envResult:
			if env.Result == nil {
				continue
			}
			w.mu.Lock()
			w.current = ""
			w.mu.Unlock()
			w.results <- *env.Result
		case envStream:
			if env.Stream != nil {
				w.stream <- *env.Stream
			}
		}
	}
	close(w.results)
	close(w.stream)
}
