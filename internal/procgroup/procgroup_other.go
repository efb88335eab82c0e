//go:build !unix && !windows

package procgroup

import (
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/hanlulong/stata-mcp/internal/log"
)

// Set is a best-effort no-op on platforms without process groups.
func Set(cmd *exec.Cmd) {
}

// Kill signals the command's process directly; there is no process group to
// target on this platform.
func Kill(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Signal(sig)
}

// KillGroup falls back to interrupt-then-kill on the single process since no
// process-group semantics are available.
func KillGroup(pid int, grace, timeout time.Duration) error {
	if pid <= 0 {
		return nil
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}

	log.L().Debug().Int("pid", pid).Msg("sending interrupt to root process (fallback)")
	_ = proc.Signal(os.Interrupt)

	done := make(chan struct{})
	go func() {
		_, _ = proc.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(grace):
		_ = proc.Kill()
	}

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return ErrKillFailed
	}
}
