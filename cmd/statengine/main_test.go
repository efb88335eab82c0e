package main

import (
	"bytes"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hanlulong/stata-mcp/internal/engine"
	"github.com/hanlulong/stata-mcp/internal/worker"
)

// wireFrame mirrors the worker package's unexported envelope type closely
// enough to decode frames written by Encoder without needing access to it.
type wireFrame struct {
	Type   string              `json:"type"`
	Ready  *worker.ReadyNotice `json:"ready,omitempty"`
	Result *worker.Result      `json:"result,omitempty"`
	Stream *worker.StreamChunk `json:"stream,omitempty"`
}

func readFrame(t *testing.T, r *bytes.Buffer) wireFrame {
	t.Helper()
	line, err := r.ReadBytes('\n')
	require.NoError(t, err)
	var f wireFrame
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(line), &f))
	return f
}

func newTestChild() (*child, *bytes.Buffer) {
	var out bytes.Buffer
	c := &child{
		engine: engine.NewStub(),
		enc:    worker.NewEncoder(&out),
	}
	return c, &out
}

func TestRunCodeReturnsCapturedOutputOnSuccess(t *testing.T) {
	c, _ := newTestChild()
	res := c.runCode(worker.Command{CommandID: "c1", Kind: worker.KindRunCode, Code: "display 1"})
	require.Equal(t, worker.StatusOk, res.Status)
	require.Contains(t, res.OutputText, "display 1")
}

func TestRunCodeReportsErrorStatusAndMessage(t *testing.T) {
	c, _ := newTestChild()
	res := c.runCode(worker.Command{CommandID: "c1", Kind: worker.KindRunCode, Code: "error boom"})
	require.Equal(t, worker.StatusError, res.Status)
	require.Contains(t, res.ErrorMessage, "boom")
}

func TestRunCodeStripsClearScreenToken(t *testing.T) {
	c, _ := newTestChild()
	res := c.runCode(worker.Command{CommandID: "c1", Kind: worker.KindRunCode, Code: "cls\ndisplay 1"})
	require.NotContains(t, res.OutputText, ". cls")
}

func TestRunFileEchoesFilePath(t *testing.T) {
	c, _ := newTestChild()
	res := c.runCode(worker.Command{CommandID: "c1", Kind: worker.KindRunFile, FilePath: "analysis.do"})
	require.Equal(t, worker.StatusOk, res.Status)
	require.Contains(t, res.OutputText, "analysis.do")
}

func TestRunCodeExportsArtefactsWhenArtefactDirSet(t *testing.T) {
	c, _ := newTestChild()
	dir := t.TempDir()
	res := c.runCode(worker.Command{
		CommandID:   "c1",
		Kind:        worker.KindRunCode,
		Code:        "graph scatter",
		ArtefactDir: dir,
	})
	require.Equal(t, worker.StatusOk, res.Status)
	require.Len(t, res.Artefacts, 1)
	require.Equal(t, "scatter", res.Artefacts[0].Name)
}

func TestRunCodeSkipsArtefactExportWhenArtefactDirEmpty(t *testing.T) {
	c, _ := newTestChild()
	res := c.runCode(worker.Command{CommandID: "c1", Kind: worker.KindRunCode, Code: "graph scatter"})
	require.Empty(t, res.Artefacts)
}

func TestRunViewDataReturnsValidDatasetShapedJSON(t *testing.T) {
	c, _ := newTestChild()
	res := c.runViewData(worker.Command{CommandID: "c1", Kind: worker.KindViewData})
	require.Equal(t, worker.StatusOk, res.Status)
	require.True(t, json.Valid([]byte(res.OutputText)))

	var payload struct {
		Columns []string `json:"columns"`
		Rows    int      `json:"rows"`
		Index   []int    `json:"index"`
		Dtypes  map[string]string
		Data    []any `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.OutputText), &payload))
}

func TestDispatchHealthRespondsOk(t *testing.T) {
	c, out := newTestChild()
	c.dispatch(worker.Command{CommandID: "h1", Kind: worker.KindHealth})
	f := readFrame(t, out)
	require.Equal(t, "result", f.Type)
	require.Equal(t, worker.StatusOk, f.Result.Status)
}

func TestDispatchUnknownKindReturnsError(t *testing.T) {
	c, out := newTestChild()
	c.dispatch(worker.Command{CommandID: "u1", Kind: "unknown_kind"})
	f := readFrame(t, out)
	require.Equal(t, worker.StatusError, f.Result.Status)
}

func TestServeStopsOnShutdownCommand(t *testing.T) {
	c, _ := newTestChild()
	pr, pw := io.Pipe()

	done := make(chan struct{})
	go func() {
		c.serve(pr)
		close(done)
	}()

	buf, err := json.Marshal(worker.Command{CommandID: "s1", Kind: worker.KindShutdown})
	require.NoError(t, err)
	_, err = pw.Write(append(buf, '\n'))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not stop on shutdown command")
	}
	_ = pw.Close()
}

func TestServeHandlesBreakInlineWithoutBlockingOnRunInProgress(t *testing.T) {
	c, out := newTestChild()
	pr, pw := io.Pipe()

	done := make(chan struct{})
	go func() {
		c.serve(pr)
		close(done)
	}()

	run, err := json.Marshal(worker.Command{CommandID: "r1", Kind: worker.KindRunCode, Code: "sleep 1s"})
	require.NoError(t, err)
	_, err = pw.Write(append(run, '\n'))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	brk, err := json.Marshal(worker.Command{Kind: worker.KindBreak})
	require.NoError(t, err)
	_, err = pw.Write(append(brk, '\n'))
	require.NoError(t, err)

	f := readFrame(t, out)
	require.Equal(t, "result", f.Type)
	require.Equal(t, "r1", f.Result.CommandID)

	shutdown, err := json.Marshal(worker.Command{Kind: worker.KindShutdown})
	require.NoError(t, err)
	_, err = pw.Write(append(shutdown, '\n'))
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("serve did not stop after shutdown")
	}
	_ = pw.Close()
}

func TestNonEmptyLinesFiltersBlankLines(t *testing.T) {
	got := nonEmptyLines("a\n\nb\n   \nc")
	require.Equal(t, []string{"a", "b", "c"}, got)
}

func TestLastNonEmptyLineReturnsFinalLine(t *testing.T) {
	require.Equal(t, "c", lastNonEmptyLine("a\nb\nc\n"))
	require.Equal(t, "", lastNonEmptyLine(""))
}
