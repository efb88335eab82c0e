// Package mcpserver implements the MCP transport adapter: two independent
// MCP server instances, a legacy SSE endpoint and a Streamable HTTP
// endpoint, each with its own set of connections so a notification raised
// by a command received on one transport can never reach the other's
// client. Grounded on other_examples' mcp-tools-server
// (internal/server/streamable_server.go: ServerOptions wiring, KeepAlive,
// session-id generation, InitializedHandler) and the SDK's own
// streamable.go (NewStreamableHTTPHandler/NewSSEHandler mounting shape),
// since the teacher carries no MCP surface of its own.
package mcpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hanlulong/stata-mcp/internal/config"
	"github.com/hanlulong/stata-mcp/internal/controller"
	"github.com/hanlulong/stata-mcp/internal/filter"
	"github.com/hanlulong/stata-mcp/internal/log"
	"github.com/hanlulong/stata-mcp/internal/session"
	"github.com/hanlulong/stata-mcp/internal/stream"
)

const implementationName = "stata-mcp"

// Adapter hosts the legacy-SSE and Streamable-HTTP MCP server instances.
// Both share the same Session Manager and Execution Controller; what keeps
// them from cross-talking is that each owns its own *mcp.Server, so a
// ServerSession (and the notifications sent through it) can only ever
// belong to the transport it was created on.
type Adapter struct {
	cfgHolder *config.Holder
	manager   *session.Manager
	ctrl      *controller.Controller

	legacySSE  *mcp.Server
	streamable *mcp.Server
}

// New builds an Adapter and registers the tool set on both server
// instances.
func New(cfgHolder *config.Holder, manager *session.Manager, ctrl *controller.Controller) *Adapter {
	a := &Adapter{cfgHolder: cfgHolder, manager: manager, ctrl: ctrl}
	a.legacySSE = a.newMCPServer(stream.TransportMCPSSE)
	a.streamable = a.newMCPServer(stream.TransportMCPStreamable)
	return a
}

func (a *Adapter) newMCPServer(transport stream.Transport) *mcp.Server {
	impl := &mcp.Implementation{Name: implementationName, Version: "1.0.0"}
	opts := &mcp.ServerOptions{
		GetSessionID: newSessionID,
		KeepAlive:    30 * time.Second,
		InitializedHandler: func(ctx context.Context, req *mcp.InitializedRequest) {
			if req == nil || req.Session == nil {
				return
			}
			log.WithComponent("mcpserver").Info().
				Str("transport", string(transport)).
				Str("mcp_session", req.Session.ID()).
				Msg("mcp session initialized")
		},
	}
	s := mcp.NewServer(impl, opts)
	a.registerTools(s, transport)
	return s
}

// LegacySSEHandler serves the bi-directional legacy SSE transport, mounted
// at /mcp.
func (a *Adapter) LegacySSEHandler() http.Handler {
	return mcp.NewSSEHandler(func(*http.Request) *mcp.Server { return a.legacySSE })
}

// StreamableHandler serves the Streamable HTTP transport, mounted at
// /mcp-streamable.
func (a *Adapter) StreamableHandler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return a.streamable }, &mcp.StreamableHTTPOptions{
		EventStore: mcp.NewMemoryEventStore(nil),
	})
}

func newSessionID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("sid-%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

func (a *Adapter) filterPolicy() filter.Policy {
	if a.cfgHolder.Get().ResultDisplayMode == config.DisplayModeCompact {
		return filter.PolicyCompact
	}
	return filter.PolicyFull
}

func (a *Adapter) filterResult(outputText, commandID string) string {
	cfg := a.cfgHolder.Get()
	text, _, err := filter.Run(outputText, a.filterPolicy(), commandID, cfg.MaxOutputTokens, filterSpillDir())
	if err != nil {
		log.WithComponent("mcpserver").Warn().Err(err).Str("command_id", commandID).Msg("output filter failed, returning unfiltered text")
		return outputText + "\nwarning: output filtering failed, showing raw output"
	}
	return text
}

func filterSpillDir() string {
	return filepath.Join(os.TempDir(), "stata-mcp-filter-spill")
}
