// Command statengine is the worker-child process a Supervisor spawns per
// session: it hosts one STATISTICAL ENGINE instance, speaks the parent's
// newline-delimited JSON protocol on its own stdin/stdout, and implements
// the RunCode/RunFile execution contract plus a worker-local log-tail
// heartbeat. Grounded on the teacher's cmd/daemon/main.go flag-to-runtime
// wiring shape and internal/pipeline/exec/ffmpeg/runner.go's child-process
// stdout scanning idiom, mirrored here on the child side of the same pipe.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/hanlulong/stata-mcp/internal/artefact"
	"github.com/hanlulong/stata-mcp/internal/engine"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

const maxFrameBytes = 8 * 1024 * 1024
const tailLines = 3

func main() {
	edition := flag.String("edition", "", "engine edition to initialise")
	headless := flag.Bool("headless", false, "run with no visible window, background process only")
	streamInterval := flag.Duration("stream-interval", 6*time.Second, "log-tail heartbeat cadence")
	flag.Parse()

	eng := engine.NewStub()
	if err := eng.Init(*edition); err != nil {
		fmt.Fprintf(os.Stderr, "engine init failed: %s\n", err)
		os.Exit(1)
	}
	if err := eng.WarmUpGraphics(); err != nil {
		fmt.Fprintf(os.Stderr, "graphics warm-up failed, continuing: %s\n", err)
	}
	if *headless {
		if err := eng.RunHeadless(); err != nil {
			fmt.Fprintf(os.Stderr, "headless request failed, continuing: %s\n", err)
		}
	}

	logFile, logPath, err := createLogFile()
	if err != nil {
		fmt.Fprintf(os.Stderr, "log file creation failed, continuing without a log tail: %s\n", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	c := &child{
		engine:         eng,
		enc:            worker.NewEncoder(os.Stdout),
		logFile:        logFile,
		logPath:        logPath,
		streamInterval: *streamInterval,
	}

	if err := c.enc.Ready(worker.ReadyNotice{PID: os.Getpid()}); err != nil {
		os.Exit(1)
	}

	c.serve(os.Stdin)
}

func createLogFile() (*os.File, string, error) {
	f, err := os.CreateTemp("", "statengine-*.log")
	if err != nil {
		return nil, "", err
	}
	return f, f.Name(), nil
}

// child owns one engine instance and the stdin/stdout ends of the worker
// protocol.
type child struct {
	engine         engine.Engine
	enc            *worker.Encoder
	logFile        *os.File
	logPath        string
	streamInterval time.Duration
}

// serve reads Command lines from r until it closes or a Shutdown command
// arrives. Break commands are handled inline by the reading loop itself so
// they reach the engine while a RunCode/RunFile is still in progress;
// every other kind is processed one at a time, in order, on this goroutine.
func (c *child) serve(r io.Reader) {
	cmds := make(chan worker.Command)
	go c.readCommands(r, cmds)

	for cmd := range cmds {
		switch cmd.Kind {
		case worker.KindShutdown:
			return
		default:
			c.dispatch(cmd)
		}
	}
}

func (c *child) readCommands(r io.Reader, cmds chan<- worker.Command) {
	defer close(cmds)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxFrameBytes)
	for scanner.Scan() {
		cmd, err := worker.DecodeCommand(scanner.Bytes())
		if err != nil {
			continue
		}
		if cmd.Kind == worker.KindBreak {
			c.engine.Break()
			continue
		}
		cmds <- cmd
	}
}

func (c *child) dispatch(cmd worker.Command) {
	switch cmd.Kind {
	case worker.KindHealth:
		_ = c.enc.Result(worker.Result{CommandID: cmd.CommandID, Status: worker.StatusOk})
	case worker.KindRunCode, worker.KindRunFile:
		_ = c.enc.Result(c.runCode(cmd))
	case worker.KindViewData:
		_ = c.enc.Result(c.runViewData(cmd))
	default:
		_ = c.enc.Result(worker.Result{
			CommandID:    cmd.CommandID,
			Status:       worker.StatusError,
			ErrorMessage: fmt.Sprintf("unsupported command kind %q", cmd.Kind),
		})
	}
}

// runCode implements spec's five-step RunCode/RunFile algorithm: drop
// session state, redirect output to Output Capture (tee-ing to the log
// file), invoke the engine's blocking entry point with a worker-local
// heartbeat running alongside it, then flush and scan for graphs.
func (c *child) runCode(cmd worker.Command) worker.Result {
	start := time.Now()
	c.engine.DropSessionState()
	c.engine.ResetGraphs()

	var tee io.Writer
	startOffset := int64(0)
	if c.logFile != nil {
		tee = c.logFile
		if info, err := c.logFile.Stat(); err == nil {
			startOffset = info.Size()
		}
	}
	capture := engine.NewCapture(tee)

	var stopHeartbeat func()
	if cmd.StreamingEnabled {
		stopHeartbeat = c.startHeartbeat(cmd.CommandID, startOffset)
	}

	ctx := context.Background()
	var err error
	if cmd.Kind == worker.KindRunFile {
		err = c.engine.RunFile(ctx, cmd.FilePath, capture)
	} else {
		err = c.engine.RunCode(ctx, cmd.Code, capture)
	}

	if stopHeartbeat != nil {
		stopHeartbeat()
	}

	res := worker.Result{
		CommandID:  cmd.CommandID,
		Status:     worker.StatusOk,
		OutputText: capture.String(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if err != nil {
		res.Status = worker.StatusError
		res.ErrorMessage = lastNonEmptyLine(res.OutputText)
	}
	if cmd.ArtefactDir != "" {
		res.Artefacts = c.exportArtefacts(cmd.ArtefactDir)
	}
	return res
}

// runViewData is a stand-in for the data-viewer backend: rendering the
// dataset grid is out of scope, but the wire contract still promises a
// JSON {columns, rows, index, dtypes, data} payload on success.
func (c *child) runViewData(cmd worker.Command) worker.Result {
	return worker.Result{
		CommandID:  cmd.CommandID,
		Status:     worker.StatusOk,
		OutputText: `{"columns":[],"rows":0,"index":[],"dtypes":{},"data":[]}`,
	}
}

func (c *child) exportArtefacts(dir string) []worker.Artefact {
	names := c.engine.GraphNames()
	out := make([]worker.Artefact, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, artefact.FileName(name))
		if err := c.engine.ExportGraph(name, path); err != nil {
			continue
		}
		out = append(out, worker.Artefact{Name: name, Path: path})
	}
	return out
}

// startHeartbeat launches the worker-local heartbeat task described by the
// engine contract: it wakes every streamInterval, tails bytes appended to
// the log file since the last wake, and publishes a LogTail StreamChunk
// when it finds new lines, a bare Heartbeat otherwise. The returned stop
// func blocks until the task has exited.
func (c *child) startHeartbeat(commandID string, fromOffset int64) func() {
	interval := c.streamInterval
	if interval <= 0 {
		interval = 6 * time.Second
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	var once sync.Once

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		start := time.Now()
		offset := fromOffset
		var seq uint64
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				seq++
				lines, next := c.tailLogSince(offset)
				offset = next

				chunk := worker.StreamChunk{
					CommandID:      commandID,
					Sequence:       seq,
					Timestamp:      time.Now(),
					ElapsedSeconds: time.Since(start).Seconds(),
				}
				if len(lines) > 0 {
					chunk.Kind = worker.StreamLogTail
					chunk.PayloadText = strings.Join(lines, "\n")
				} else {
					chunk.Kind = worker.StreamHeartbeat
				}
				_ = c.enc.Stream(chunk)
			}
		}
	}()

	return func() {
		once.Do(func() { close(stop) })
		<-done
	}
}

// tailLogSince returns the most recent non-empty lines appended to the log
// file since offset, plus the new read offset. Returns nil lines when no
// log file is configured or nothing has grown.
func (c *child) tailLogSince(offset int64) ([]string, int64) {
	if c.logPath == "" {
		return nil, offset
	}
	f, err := os.Open(c.logPath)
	if err != nil {
		return nil, offset
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.Size() <= offset {
		return nil, offset
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset
	}

	buf := make([]byte, info.Size()-offset)
	n, _ := io.ReadFull(f, buf)
	lines := nonEmptyLines(string(buf[:n]))
	if len(lines) > tailLines {
		lines = lines[len(lines)-tailLines:]
	}
	return lines, info.Size()
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}

// lastNonEmptyLine returns the final non-empty line of s, used to populate
// error_message from the tail of the captured buffer.
func lastNonEmptyLine(s string) string {
	lines := nonEmptyLines(s)
	if len(lines) == 0 {
		return ""
	}
	return lines[len(lines)-1]
}
