package filter

import "regexp"

// Compact-mode removal set. spec.md §4.5 enumerates four categories; each
// pattern below is named after the clause it implements and the set is a
// plain slice rather than hardcoded inline so additions stay structured.

var (
	// reLoopHeader matches the primary-prompt echo of a forvalues/foreach/
	// while block header, e.g. ". forvalues i = 1/3 {".
	reLoopHeader = regexp.MustCompile(`^\.\s*(forvalues|foreach|while)\b.*\{\s*$`)

	// reProgramHeader matches the primary-prompt echo of a program block
	// header, e.g. ". program define myprog".
	reProgramHeader = regexp.MustCompile(`^\.\s*program\b`)

	// reContinuationNumbering matches any numbered continuation line Stata
	// echoes for a multi-line command (loop bodies, program bodies, and
	// inline-computation continuations all share this prefix), e.g.
	// "  2.         display \"hi\"" or "  3. end".
	reContinuationNumbering = regexp.MustCompile(`^\s*\d+\.\s`)

	// reLineContinuation matches the "> " marker Stata echoes for an
	// inline-computation block split across lines with "///".
	reLineContinuation = regexp.MustCompile(`^>\s`)

	// reChangesAnnouncement matches "(N real changes made)" and its
	// "N real change made" singular form.
	reChangesAnnouncement = regexp.MustCompile(`^\(\d+ real changes? made\)$`)

	// reMissingAnnouncement matches "(N missing values generated)" and its
	// singular form.
	reMissingAnnouncement = regexp.MustCompile(`^\(\d+ missing values? generated\)$`)

	compactPatterns = []*regexp.Regexp{
		reLoopHeader,
		reProgramHeader,
		reContinuationNumbering,
		reLineContinuation,
		reChangesAnnouncement,
		reMissingAnnouncement,
	}
)

// stripCompact drops every line matching a compact-mode removal pattern,
// except lines containing "error" (case-insensitive), which always survive.
func stripCompact(lines []string) []string {
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if isErrorLine(line) {
			kept = append(kept, line)
			continue
		}
		if matchesAny(line) {
			continue
		}
		kept = append(kept, line)
	}
	return kept
}

func matchesAny(line string) bool {
	for _, re := range compactPatterns {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
