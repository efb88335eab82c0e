package mcpserver

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/stream"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// RunFileInput is the tools/call input schema for stata_run_file.
type RunFileInput struct {
	FilePath       string   `json:"file_path" jsonschema:"path to the .do file to execute"`
	TimeoutSeconds *float64 `json:"timeout,omitempty" jsonschema:"execution deadline in seconds, overriding the configured default"`
	SessionID      string   `json:"session_id,omitempty" jsonschema:"session to run against; defaults to the shared default session"`
}

// RunSelectionInput is the tools/call input schema for stata_run_selection.
type RunSelectionInput struct {
	Selection string `json:"selection" jsonschema:"code to execute"`
	SessionID string `json:"session_id,omitempty" jsonschema:"session to run against; defaults to the shared default session"`
}

func (a *Adapter) registerTools(s *mcp.Server, transport stream.Transport) {
	mcp.AddTool(s, &mcp.Tool{
		Name:        "stata_run_file",
		Description: "Run a do-file against a session and return its final output.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in RunFileInput) (*mcp.CallToolResult, any, error) {
		if in.FilePath == "" {
			return errorResult("file_path is required"), nil, nil
		}
		cmd := worker.Command{
			CommandID:       newCommandID(),
			Kind:            worker.KindRunFile,
			FilePath:        in.FilePath,
			DeadlineSeconds: a.deadlineSeconds(in.TimeoutSeconds),
		}
		return a.dispatch(ctx, req, transport, in.SessionID, cmd)
	})

	mcp.AddTool(s, &mcp.Tool{
		Name:        "stata_run_selection",
		Description: "Run a code snippet against a session and return its final output.",
	}, func(ctx context.Context, req *mcp.CallToolRequest, in RunSelectionInput) (*mcp.CallToolResult, any, error) {
		if in.Selection == "" {
			return errorResult("selection is required"), nil, nil
		}
		cmd := worker.Command{
			CommandID:       newCommandID(),
			Kind:            worker.KindRunCode,
			Code:            in.Selection,
			DeadlineSeconds: a.deadlineSeconds(nil),
		}
		return a.dispatch(ctx, req, transport, in.SessionID, cmd)
	})
}

// dispatch acquires sessionID's lease, runs cmd through the controller with
// a sink bound to req's ServerSession, and renders the terminal Result as a
// tools/call result. Engine-level failures (StatusError/StatusTimeout) come
// back as isError:true content per spec §7, not a Go error: only protocol
// failures (unknown session, busy session) are rendered the same way, since
// MCP has no separate non-200 channel the way REST does.
func (a *Adapter) dispatch(ctx context.Context, req *mcp.CallToolRequest, transport stream.Transport, sessionID string, cmd worker.Command) (*mcp.CallToolResult, any, error) {
	lease, err := a.manager.Acquire(ctx, sessionID)
	if err != nil {
		return errorResult(mapSessionErr(err)), nil, nil
	}
	defer a.manager.Release(lease)

	sink := newMCPSink(req.Session, progressTokenOf(req.Params), cmd.DeadlineSeconds)
	defer sink.Close()

	reqCtx := &stream.RequestContext{
		Transport:        transport,
		RequestID:        cmd.CommandID,
		Sink:             sink,
		CaptureArtefacts: false,
	}

	res, err := a.ctrl.Run(ctx, lease, cmd, reqCtx)
	if err != nil {
		return errorResult(err.Error()), nil, nil
	}

	text := a.filterResult(res.OutputText, cmd.CommandID)
	if res.Status != worker.StatusOk && res.ErrorMessage != "" {
		text = res.ErrorMessage
	}
	isErr := res.Status == worker.StatusError || res.Status == worker.StatusTimeout
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: isErr,
	}, nil, nil
}

func (a *Adapter) deadlineSeconds(override *float64) float64 {
	if override != nil && *override > 0 {
		return *override
	}
	return a.cfgHolder.Get().CommandTimeout.Seconds()
}

func newCommandID() string {
	return uuid.NewString()
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}

func mapSessionErr(err error) string {
	switch {
	case errors.Is(err, session.ErrNotFound):
		return "session not found"
	case errors.Is(err, session.ErrBusy):
		return "session busy"
	default:
		return err.Error()
	}
}
