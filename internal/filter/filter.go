// Package filter implements the Output Filter: it normalises a worker's raw
// output text, optionally strips the compact-mode noise patterns, and bounds
// the result to a token budget by spilling overflow to a temp file. Grounded
// on the teacher's structuredBufferWriter (internal/log/logger.go), which
// caps unbounded accumulation with a byte ceiling before handing lines off
// for processing; the same "cap accumulation, process the rest" shape is
// used here for the spill path instead of the buffer-writer's partial-line
// framing, since filter input always arrives as one complete string.
package filter

import "strings"

// Policy selects how raw worker output is rewritten before it reaches a
// transport.
type Policy string

const (
	PolicyFull    Policy = "full"
	PolicyCompact Policy = "compact"
)

// Apply normalises line endings to '\n', strips trailing whitespace from
// every line, and, for PolicyCompact, removes the noise patterns described
// in compact.go. Error lines are never removed regardless of policy.
func Apply(raw string, policy Policy) string {
	lines := normalizeLines(raw)
	if policy == PolicyCompact {
		lines = stripCompact(lines)
	}
	return strings.Join(lines, "\n")
}

func normalizeLines(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return lines
}

func isErrorLine(line string) bool {
	return strings.Contains(strings.ToLower(line), "error")
}
