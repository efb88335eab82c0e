// Package worker spawns one OS process per session to host the embedded
// statistical engine and speaks a newline-delimited JSON protocol with it
// over the child's stdin/stdout, mirroring the teacher's exec.Cmd pipe
// wiring for an external media process.
package worker

import "time"

// CommandKind enumerates the command types a worker accepts.
type CommandKind string

const (
	KindRunCode  CommandKind = "run_code"
	KindRunFile  CommandKind = "run_file"
	KindViewData CommandKind = "view_data"
	KindBreak    CommandKind = "break"
	KindShutdown CommandKind = "shutdown"
	KindHealth   CommandKind = "health"
)

// Status is the terminal outcome of a Command.
type Status string

const (
	StatusOk        Status = "ok"
	StatusError     Status = "error"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
)

// StreamKind enumerates the chunk types a worker may emit while a command
// is in flight.
type StreamKind string

const (
	StreamHeartbeat StreamKind = "heartbeat"
	StreamLogTail   StreamKind = "log_tail"
	StreamInfo      StreamKind = "info"
)

// Command is sent parent→child. Exactly one is in flight at a time; the
// worker echoes CommandID on every Result/StreamChunk belonging to it.
type Command struct {
	CommandID        string      `json:"command_id"`
	Kind             CommandKind `json:"kind"`
	Code             string      `json:"code,omitempty"`
	FilePath         string      `json:"file_path,omitempty"`
	WorkingDirHint   string      `json:"working_dir_hint,omitempty"`
	DeadlineSeconds  float64     `json:"deadline_seconds,omitempty"`
	StreamingEnabled bool        `json:"streaming_enabled,omitempty"`
	IfCondition      string      `json:"if_condition,omitempty"`
	ArtefactDir      string      `json:"artefact_dir,omitempty"`
}

// Artefact is one graph exported during a command (editor transport only).
type Artefact struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Result is sent child→parent, exactly one per Command.
type Result struct {
	CommandID    string     `json:"command_id"`
	Status       Status     `json:"status"`
	OutputText   string     `json:"output_text"`
	ErrorMessage string     `json:"error_message,omitempty"`
	DurationMs   int64      `json:"duration_ms"`
	Artefacts    []Artefact `json:"artefacts,omitempty"`
}

// StreamChunk is sent child→parent, any number of times per Command.
type StreamChunk struct {
	CommandID      string     `json:"command_id"`
	Sequence       uint64     `json:"sequence"`
	Kind           StreamKind `json:"kind"`
	Timestamp      time.Time  `json:"timestamp"`
	ElapsedSeconds float64    `json:"elapsed_seconds"`
	PayloadText    string     `json:"payload_text,omitempty"`
}

// ReadyNotice is the one-time frame a worker emits once its engine has
// finished initialising (including the graphics warm-up, where applicable)
// and is ready to accept its first Command.
type ReadyNotice struct {
	PID int `json:"pid"`
}

// envelope is the wire discriminator wrapping exactly one of the payload
// types below. Only one field is ever populated per line.
type envelope struct {
	Type    string       `json:"type"`
	Ready   *ReadyNotice `json:"ready,omitempty"`
	Result  *Result      `json:"result,omitempty"`
	Stream  *StreamChunk `json:"stream,omitempty"`
}

const (
	envReady  = "ready"
	envResult = "result"
	envStream = "stream"
)
