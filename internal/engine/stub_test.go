package engine

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStripClearScreenCommentsOutLeadingToken(t *testing.T) {
	got := stripClearScreen("cls\ndisplay 1")
	require.Equal(t, "* cls\ndisplay 1", got)
}

func TestStripClearScreenLeavesOtherCodeUntouched(t *testing.T) {
	code := "display 1\ncls"
	require.Equal(t, code, stripClearScreen(code))
}

func TestRunCodeTracksDeclaredGraphs(t *testing.T) {
	e := NewStub()
	require.NoError(t, e.Init("SE"))

	var out bytes.Buffer
	require.NoError(t, e.RunCode(context.Background(), "graph Graph1\ngraph Graph2", &out))

	require.Equal(t, []string{"Graph1", "Graph2"}, e.GraphNames())
	require.Contains(t, out.String(), "Graph1 drawn")
}

func TestResetGraphsClearsTrackedList(t *testing.T) {
	e := NewStub()
	require.NoError(t, e.Init("SE"))

	var out bytes.Buffer
	require.NoError(t, e.RunCode(context.Background(), "graph Graph1", &out))
	require.Len(t, e.GraphNames(), 1)

	e.ResetGraphs()
	require.Empty(t, e.GraphNames())
}

func TestRunCodeCapturesErrorLine(t *testing.T) {
	e := NewStub()
	require.NoError(t, e.Init("SE"))

	var out bytes.Buffer
	err := e.RunCode(context.Background(), "error invalid syntax", &out)
	require.Error(t, err)
	require.Contains(t, out.String(), "invalid syntax")
}

func TestBreakStopsRunInProgress(t *testing.T) {
	e := NewStub()
	require.NoError(t, e.Init("SE"))

	var out bytes.Buffer
	done := make(chan error, 1)
	go func() { done <- e.RunCode(context.Background(), "sleep 1s", &out) }()

	time.Sleep(20 * time.Millisecond)
	e.Break()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("RunCode did not observe Break")
	}
	require.Contains(t, out.String(), "break")
}

func TestDropSessionStateClearsMacros(t *testing.T) {
	e := NewStub()
	require.NoError(t, e.Init("SE"))

	var out bytes.Buffer
	require.NoError(t, e.RunCode(context.Background(), "local x 1", &out))
	require.Len(t, e.macros, 1)

	e.DropSessionState()
	require.Empty(t, e.macros)
}
