package watch

import (
	"fmt"
	"io"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// DiagnosticsDiff returns a unified diff between the diagnostics of two
// consecutive builds, or "" when they are identical.
func DiagnosticsDiff(previous, current string) (string, error) {
	if previous == current {
		return "", nil
	}

	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(normalizeDiagnostics(previous)),
		B:        difflib.SplitLines(normalizeDiagnostics(current)),
		FromFile: "previous build",
		ToFile:   "this build",
		Context:  1,
	})
}

// normalizeDiagnostics makes sure the last line ends with a newline so the
// diff does not report a spurious change on it.
func normalizeDiagnostics(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}

	return s + "\n"
}

// writeDiff writes a unified diff, colouring removed and added lines with
// ANSI escapes when color is set.
func writeDiff(w io.Writer, diff string, color bool) {
	const (
		red   = "\033[31m"
		green = "\033[32m"
		cyan  = "\033[36m"
		bold  = "\033[1m"
		reset = "\033[0m"
	)

	for _, line := range strings.Split(strings.TrimSuffix(diff, "\n"), "\n") {
		if !color {
			_, _ = fmt.Fprintln(w, line)
			continue
		}

		switch {
		case strings.HasPrefix(line, "---"), strings.HasPrefix(line, "+++"):
			_, _ = fmt.Fprintf(w, "%s%s%s\n", bold, line, reset)
		case strings.HasPrefix(line, "@@"):
			_, _ = fmt.Fprintf(w, "%s%s%s\n", cyan, line, reset)
		case strings.HasPrefix(line, "-"):
			_, _ = fmt.Fprintf(w, "%s%s%s\n", red, line, reset)
		case strings.HasPrefix(line, "+"):
			_, _ = fmt.Fprintf(w, "%s%s%s\n", green, line, reset)
		default:
			_, _ = fmt.Fprintln(w, line)
		}
	}
}
