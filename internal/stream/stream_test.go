package stream

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanlulong/stata-mcp/internal/worker"
)

func TestChanSinkPublishAndDrain(t *testing.T) {
	sink := NewChanSink(TransportRestSSE, 4)
	ok := sink.Publish(worker.StreamChunk{CommandID: "c1", Kind: worker.StreamHeartbeat})
	require.True(t, ok)

	select {
	case chunk := <-sink.C():
		require.Equal(t, "c1", chunk.CommandID)
	case <-time.After(time.Second):
		t.Fatal("timed out draining sink")
	}
}

func TestChanSinkPublishFalseAfterClose(t *testing.T) {
	sink := NewChanSink(TransportMCPSSE, 1)
	sink.Close()
	ok := sink.Publish(worker.StreamChunk{CommandID: "c1"})
	require.False(t, ok)
}

func TestChanSinkCloseIsIdempotent(t *testing.T) {
	sink := NewChanSink(TransportRestSSE, 1)
	sink.Close()
	require.NotPanics(t, sink.Close)
}

func TestChanSinkDropsOnBackpressure(t *testing.T) {
	sink := NewChanSink(TransportRestSSE, 1)
	require.True(t, sink.Publish(worker.StreamChunk{CommandID: "c1"}))
	// Buffer now full and nobody draining; the second publish must drop
	// within PublishBound rather than block forever.
	start := time.Now()
	ok := sink.Publish(worker.StreamChunk{CommandID: "c2"})
	require.False(t, ok)
	require.Less(t, time.Since(start), 2*PublishBound)
}
