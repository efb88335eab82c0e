package worker

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncoderReadyRoundTripsThroughReadLoopsFirstFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Ready(ReadyNotice{PID: 123}))

	var env envelope
	require.NoError(t, json.Unmarshal(bytes.TrimRight(buf.Bytes(), "\n"), &env))
	require.Equal(t, envReady, env.Type)
	require.Equal(t, 123, env.Ready.PID)
}

func TestEncoderResultAndStreamProduceDistinctFrameTypes(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Result(Result{CommandID: "c1", Status: StatusOk}))
	require.NoError(t, enc.Stream(StreamChunk{CommandID: "c1", Kind: StreamHeartbeat}))

	scanner := bufio.NewScanner(&buf)
	require.True(t, scanner.Scan())
	var first envelope
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &first))
	require.Equal(t, envResult, first.Type)
	require.Equal(t, "c1", first.Result.CommandID)

	require.True(t, scanner.Scan())
	var second envelope
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &second))
	require.Equal(t, envStream, second.Type)
	require.Equal(t, StreamHeartbeat, second.Stream.Kind)
}

func TestDecodeCommandParsesRawJSONLine(t *testing.T) {
	cmd := Command{CommandID: "c1", Kind: KindRunCode, Code: "display 1"}
	buf, err := json.Marshal(cmd)
	require.NoError(t, err)

	got, err := DecodeCommand(buf)
	require.NoError(t, err)
	require.Equal(t, cmd, got)
}

func TestDecodeCommandRejectsInvalidJSON(t *testing.T) {
	_, err := DecodeCommand([]byte("not json"))
	require.Error(t, err)
}
