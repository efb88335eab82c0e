package worker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Encoder writes ready/result/stream frames in the wire form readLoop
// expects, for use by a worker child process. The parent never encodes
// frames; it only decodes them.
type Encoder struct {
	mu sync.Mutex
	w  *bufio.Writer
}

// NewEncoder wraps w for frame writes, flushing after every frame so each
// line reaches the parent's pipe promptly.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Ready writes the one-time frame a worker child emits once its engine has
// finished initialising.
func (e *Encoder) Ready(n ReadyNotice) error {
	return e.write(envelope{Type: envReady, Ready: &n})
}

// Result writes the terminal frame for one Command.
func (e *Encoder) Result(r Result) error {
	return e.write(envelope{Type: envResult, Result: &r})
}

// Stream writes one StreamChunk frame.
func (e *Encoder) Stream(c StreamChunk) error {
	return e.write(envelope{Type: envStream, Stream: &c})
}

func (e *Encoder) write(env envelope) error {
	buf, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}
	buf = append(buf, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return e.w.Flush()
}

// DecodeCommand parses one line of the parent's raw Command JSON; see
// Worker.Send, which writes Commands unwrapped by any envelope.
func DecodeCommand(line []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(line, &cmd); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}
