package artefact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hanlulong/stata-mcp/internal/worker"
)

func TestDirAndPathLayout(t *testing.T) {
	dir := Dir("/data/root", "sessA", "cmd1")
	require.Equal(t, filepath.Join("/data/root", "artefacts", "sessA", "cmd1"), dir)

	path := Path("/data/root", "sessA", "cmd1", "Graph1")
	require.Equal(t, filepath.Join(dir, "Graph1.png"), path)
}

func TestFileNameAppendsExtension(t *testing.T) {
	require.Equal(t, "Graph1.png", FileName("Graph1"))
}

func TestEnsureDirCreatesTree(t *testing.T) {
	root := t.TempDir()
	dir, err := EnsureDir(root, "sess1", "cmd1")
	require.NoError(t, err)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestPrepareDispatchStampsArtefactDirAndCreatesIt(t *testing.T) {
	root := t.TempDir()
	cmd := worker.Command{CommandID: "cmd1", Kind: worker.KindRunCode, Code: "twoway scatter y x"}

	got, err := PrepareDispatch(root, "sess1", cmd)
	require.NoError(t, err)
	require.Equal(t, Dir(root, "sess1", "cmd1"), got.ArtefactDir)

	info, err := os.Stat(got.ArtefactDir)
	require.NoError(t, err)
	require.True(t, info.IsDir())

	require.Equal(t, "cmd1", got.CommandID)
	require.Equal(t, "twoway scatter y x", got.Code)
}
