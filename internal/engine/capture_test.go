package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureBuffersAndTees(t *testing.T) {
	var tee bytes.Buffer
	c := NewCapture(&tee)

	n, err := c.Write([]byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)

	require.Equal(t, "hello", c.String())
	require.Equal(t, "hello", tee.String())
}

func TestCaptureWithoutTeeStillBuffers(t *testing.T) {
	c := NewCapture(nil)
	_, err := c.Write([]byte("output"))
	require.NoError(t, err)
	require.Equal(t, "output", c.String())
}

func TestCaptureBytesReturnsIndependentCopy(t *testing.T) {
	c := NewCapture(nil)
	_, _ = c.Write([]byte("abc"))

	snapshot := c.Bytes()
	_, _ = c.Write([]byte("def"))

	require.Equal(t, "abc", string(snapshot))
	require.Equal(t, "abcdef", c.String())
}
