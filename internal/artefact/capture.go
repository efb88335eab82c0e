package artefact

import "github.com/hanlulong/stata-mcp/internal/worker"

// PrepareDispatch ensures the session+command artefact directory exists and
// stamps cmd.ArtefactDir with it, for an editor-transport RunCode/RunFile
// command whose RequestContext has CaptureArtefacts set. The worker passes
// this directory to the engine so each exported graph lands at a
// predictable, already-created path.
func PrepareDispatch(root, sessionID string, cmd worker.Command) (worker.Command, error) {
	dir, err := EnsureDir(root, sessionID, cmd.CommandID)
	if err != nil {
		return cmd, err
	}
	cmd.ArtefactDir = dir
	return cmd, nil
}
