package filter

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hanlulong/stata-mcp/internal/metrics"
)

// approxCharsPerToken is a coarse chars-per-token heuristic; no tokenizer
// dependency is in scope for this bound, so token count is approximated as
// len(text)/4 rounded up, the common rule-of-thumb ratio for English-ish text.
const approxCharsPerToken = 4

func approxTokenCount(text string) int {
	return (len(text) + approxCharsPerToken - 1) / approxCharsPerToken
}

// Result is the outcome of Bound: either text is returned as-is (no spill),
// or text holds a one-line summary and OverflowRef names the spill file
// holding the full filtered output.
type Result struct {
	Text        string
	OverflowRef string
}

// Bound enforces maxOutputTokens on filtered text. maxOutputTokens <= 0
// disables bounding. On overflow, the full text is written byte-for-byte to
// a spill file under spillDir keyed by commandID, and Result.Text becomes a
// short summary naming the spill path.
func Bound(text string, policy Policy, commandID string, maxOutputTokens int, spillDir string) (Result, error) {
	metrics.FilterBytesFiltered.WithLabelValues(string(policy)).Add(float64(len(text)))

	if maxOutputTokens <= 0 || approxTokenCount(text) <= maxOutputTokens {
		return Result{Text: text}, nil
	}

	if spillDir == "" {
		spillDir = os.TempDir()
	}
	if err := os.MkdirAll(spillDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create spill dir: %w", err)
	}

	path := filepath.Join(spillDir, fmt.Sprintf("%s.out", commandID))
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return Result{}, fmt.Errorf("write spill file: %w", err)
	}

	metrics.FilterSpillsTotal.Inc()

	return Result{
		Text:        fmt.Sprintf("output exceeded %d tokens, full output spilled to %s", maxOutputTokens, path),
		OverflowRef: path,
	}, nil
}

// Run applies policy to raw, then bounds the result against maxOutputTokens,
// returning the final text and an overflow reference (empty if no spill
// occurred).
func Run(raw string, policy Policy, commandID string, maxOutputTokens int, spillDir string) (text string, overflowRef string, err error) {
	filtered := Apply(raw, policy)
	res, err := Bound(filtered, policy, commandID, maxOutputTokens, spillDir)
	if err != nil {
		return "", "", err
	}
	return res.Text, res.OverflowRef, nil
}
