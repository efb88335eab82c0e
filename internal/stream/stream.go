// Package stream implements the Streaming Fan-out: a per-request Sink that
// the Execution Controller publishes StreamChunks to, structurally bound to
// exactly one transport and connection so a chunk can never be delivered to
// the wrong client. Grounded on the teacher's in-process pub/sub bus, with
// the topic-fan-out semantics narrowed to a 1:1 per-request channel.
package stream

import (
	"time"

	"github.com/hanlulong/stata-mcp/internal/metrics"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// Transport identifies which wire surface a RequestContext's sink belongs
// to, used only for metric labelling — routing itself is structural, never
// based on this value.
type Transport string

const (
	TransportRestSSE       Transport = "rest_sse"
	TransportMCPSSE        Transport = "mcp_sse"
	TransportMCPStreamable Transport = "mcp_streamable"
)

// PublishBound is the maximum time a Sink.Publish call may block before the
// chunk is considered dropped.
const PublishBound = 100 * time.Millisecond

// Sink is the abstract per-connection writer a RequestContext carries.
// Implementations translate a StreamChunk into the transport's wire form
// (an SSE data frame, or an MCP notification).
type Sink interface {
	// Publish attempts to deliver chunk within PublishBound. It returns
	// false if the chunk was dropped due to backpressure or a closed sink;
	// publishing to a closed sink must never panic or block.
	Publish(chunk worker.StreamChunk) bool
	// Close marks the sink closed; subsequent Publish calls no-op.
	Close()
}

// RequestContext is the per in-flight transport call context threaded
// through the controller. Its Sink is owned exclusively by the transport
// adapter that created it and lives exactly as long as the wire request.
type RequestContext struct {
	Transport      Transport
	RequestID      string
	ProgressToken  string
	Sink           Sink
	// CaptureArtefacts is set by the editor transport only; MCP clients
	// never render inline images (spec §4.6).
	CaptureArtefacts bool
}

// ChanSink is a buffered-channel-backed Sink: a 1:1 specialisation of the
// teacher's MemoryBus subscriber channel, used directly by the REST/SSE
// writer loop and wrapped by MCP notification senders.
type ChanSink struct {
	transport Transport
	ch        chan worker.StreamChunk
	closed    chan struct{}
}

// NewChanSink creates a ChanSink with the given buffer depth.
func NewChanSink(transport Transport, buffer int) *ChanSink {
	if buffer <= 0 {
		buffer = 16
	}
	return &ChanSink{
		transport: transport,
		ch:        make(chan worker.StreamChunk, buffer),
		closed:    make(chan struct{}),
	}
}

// C exposes the channel for the transport adapter's write loop to drain.
func (s *ChanSink) C() <-chan worker.StreamChunk { return s.ch }

// Publish implements Sink. It never blocks the controller past PublishBound.
func (s *ChanSink) Publish(chunk worker.StreamChunk) bool {
	select {
	case <-s.closed:
		return false
	default:
	}

	select {
	case s.ch <- chunk:
		metrics.StreamChunksPublishedTotal.Inc()
		return true
	case <-s.closed:
		return false
	case <-time.After(PublishBound):
		metrics.StreamChunksDroppedTotal.WithLabelValues(string(s.transport)).Inc()
		return false
	}
}

// Close implements Sink. Safe to call more than once.
func (s *ChanSink) Close() {
	select {
	case <-s.closed:
		return
	default:
		close(s.closed)
	}
}

// discardSink is a Sink for requests with no live listener (a plain,
// non-streaming REST call): every publish is accepted and immediately
// dropped, so the controller's heartbeat/info publishes never block.
type discardSink struct{}

func (discardSink) Publish(worker.StreamChunk) bool { return true }
func (discardSink) Close()                          {}

// Discard is the shared Sink for requests that don't consume stream chunks.
var Discard Sink = discardSink{}
