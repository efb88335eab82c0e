package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteStubImageCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "Graph1.png")
	require.NoError(t, writeStubImage(path, "Graph1"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}
