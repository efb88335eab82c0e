package engine

import (
	"bytes"
	"io"
	"sync"
)

// Capture is the Output Capture component: it redirects the engine's
// standard output to an in-memory buffer for the duration of one command,
// tee-ing to the engine's log file when one is configured. Safe for the
// heartbeat task to read concurrently with the engine writing to it.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
	tee io.Writer
}

// NewCapture builds a Capture that also tees every write to tee, which may
// be nil if no log file is configured.
func NewCapture(tee io.Writer) *Capture {
	return &Capture{tee: tee}
}

// Write implements io.Writer, appending p to the in-memory buffer and, if
// configured, the tee.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	c.buf.Write(p)
	c.mu.Unlock()
	if c.tee != nil {
		return c.tee.Write(p)
	}
	return len(p), nil
}

// Bytes returns a snapshot of everything captured so far.
func (c *Capture) Bytes() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.buf.Len())
	copy(out, c.buf.Bytes())
	return out
}

// String returns a snapshot of everything captured so far as a string.
func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}
