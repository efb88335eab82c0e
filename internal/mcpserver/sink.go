package mcpserver

import (
	"context"
	"sync"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hanlulong/stata-mcp/internal/worker"
)

// mcpSink relays StreamChunks as MCP notifications on the ServerSession that
// originated the call: heartbeats become notifications/progress (only when
// the client supplied a progress token on the call), everything else
// becomes a notifications/message at "notice" severity. Per-connection
// setLevel filtering is the SDK's own responsibility; this sink always logs
// at "notice" per spec's default (§4.4).
type mcpSink struct {
	session         *mcp.ServerSession
	progressToken   any
	deadlineSeconds float64

	mu     sync.Mutex
	closed bool
}

func newMCPSink(sess *mcp.ServerSession, progressToken any, deadlineSeconds float64) *mcpSink {
	return &mcpSink{session: sess, progressToken: progressToken, deadlineSeconds: deadlineSeconds}
}

// Publish implements stream.Sink.
func (s *mcpSink) Publish(chunk worker.StreamChunk) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.mu.Unlock()

	ctx := context.Background()

	if chunk.Kind == worker.StreamHeartbeat {
		if s.progressToken == nil {
			return true
		}
		err := s.session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: s.progressToken,
			Progress:      chunk.ElapsedSeconds,
			Total:         s.deadlineSeconds,
		})
		return err == nil
	}

	if chunk.PayloadText == "" {
		return true
	}
	err := s.session.Log(ctx, &mcp.LoggingMessageParams{
		Level:  "notice",
		Logger: implementationName,
		Data:   chunk.PayloadText,
	})
	return err == nil
}

// Close implements stream.Sink.
func (s *mcpSink) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// progressTokenGetter is satisfied by CallToolParams if the client supplied
// a "_meta.progressToken" on the tools/call request. Asserted rather than
// referenced by concrete field name so a token absent from the request (the
// common case) degrades to nil without any special-casing here — per
// spec §4.4, numeric progress is simply omitted in that case.
type progressTokenGetter interface {
	GetProgressToken() any
}

func progressTokenOf(params any) any {
	g, ok := params.(progressTokenGetter)
	if !ok {
		return nil
	}
	return g.GetProgressToken()
}
