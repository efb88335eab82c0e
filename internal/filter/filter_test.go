package filter

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyFullNormalisesLineEndingsAndTrailingWhitespace(t *testing.T) {
	raw := "line one  \r\nline two\t\r\nline three"
	got := Apply(raw, PolicyFull)
	require.Equal(t, "line one\nline two\nline three", got)
}

func TestApplyFullRoundTripIsIdempotent(t *testing.T) {
	raw := "a  \r\nb\r\nc   "
	once := Apply(raw, PolicyFull)
	twice := Apply(once, PolicyFull)
	require.Equal(t, once, twice)
}

func TestApplyCompactStripsLoopHeaderAndBraceButKeepsDisplayOutput(t *testing.T) {
	raw := strings.Join([]string{
		". forvalues i = 1/3 {",
		"  2.         display \"hi\"",
		"  3. }",
		"hi",
		"hi",
		"hi",
	}, "\n")

	got := Apply(raw, PolicyCompact)
	require.Equal(t, "hi\nhi\nhi", got)
}

func TestApplyCompactStripsChangeAndMissingAnnouncements(t *testing.T) {
	raw := strings.Join([]string{
		"(3 real changes made)",
		"(1 missing value generated)",
		"5 variables, 100 observations",
	}, "\n")

	got := Apply(raw, PolicyCompact)
	require.Equal(t, "5 variables, 100 observations", got)
}

func TestApplyCompactNeverRemovesErrorLines(t *testing.T) {
	raw := strings.Join([]string{
		". forvalues i = 1/3 {",
		"  2.         invalidcmd",
		"  3. }",
		"invalidcmd is not a valid command (error 199 occurred)",
	}, "\n")

	got := Apply(raw, PolicyCompact)
	require.Equal(t, "invalidcmd is not a valid command (error 199 occurred)", got)
}

func TestApplyCompactPreservesAllErrorSubstringLines(t *testing.T) {
	raw := strings.Join([]string{
		"r(error) encountered",
		"  2. some echoed continuation",
		"no error here but kept because it does not match any pattern",
	}, "\n")

	got := Apply(raw, PolicyCompact)
	require.Contains(t, got, "r(error) encountered")
	require.NotContains(t, got, "some echoed continuation")
}

func TestBoundPassesThroughWithinBudget(t *testing.T) {
	res, err := Bound("short output", PolicyFull, "cmd-1", 100, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "short output", res.Text)
	require.Empty(t, res.OverflowRef)
}

func TestBoundZeroDisablesBounding(t *testing.T) {
	huge := strings.Repeat("x", 100_000)
	res, err := Bound(huge, PolicyFull, "cmd-2", 0, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, huge, res.Text)
	require.Empty(t, res.OverflowRef)
}

func TestBoundSpillsOverflowByteForByte(t *testing.T) {
	huge := strings.Repeat("line of output\n", 5000)
	dir := t.TempDir()

	res, err := Bound(huge, PolicyFull, "cmd-3", 10, dir)
	require.NoError(t, err)
	require.NotEmpty(t, res.OverflowRef)
	require.True(t, strings.HasPrefix(filepath.Dir(res.OverflowRef), dir) || filepath.Dir(res.OverflowRef) == dir)

	spilled, err := os.ReadFile(res.OverflowRef)
	require.NoError(t, err)
	require.Equal(t, huge, string(spilled))
}

func TestRunAppliesPolicyThenBounds(t *testing.T) {
	raw := ". forvalues i = 1/3 {\n  2. display \"hi\"\n  3. }\nhi\nhi\nhi"
	text, overflowRef, err := Run(raw, PolicyCompact, "cmd-4", 0, t.TempDir())
	require.NoError(t, err)
	require.Equal(t, "hi\nhi\nhi", text)
	require.Empty(t, overflowRef)
}
