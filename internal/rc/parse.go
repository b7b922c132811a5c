package rc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedLine marks a non-blank rc line that has no key=value shape.
var ErrMalformedLine = errors.New("malformed line: expected key=value")

// Parse reads flat key=value lines. The first '=' separates key from value
// and both sides are trimmed. Blank lines are ignored. Lines without '=' or
// with an empty key are skipped and reported as *LoadError values; they never
// stop parsing. The returned error is non-nil only when r itself fails.
func Parse(r io.Reader, path string) (map[string]string, []error, error) {
	values := make(map[string]string)

	var warnings []error

	br := bufio.NewReader(r)
	lineNo := 0

	// Lines of any length are accepted.
	for eof := false; !eof; {
		line, err := br.ReadString('\n')

		switch {
		case errors.Is(err, io.EOF):
			eof = true
		case err != nil:
			return nil, warnings, fmt.Errorf("reading %s: %w", path, err)
		}

		if eof && line == "" {
			break
		}

		lineNo++

		if lineNo == 1 {
			line = strings.TrimPrefix(line, "\ufeff")
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)

		if !ok || key == "" {
			warnings = append(warnings, &LoadError{Path: path, Line: lineNo, Err: ErrMalformedLine})
			continue
		}

		values[key] = strings.TrimSpace(value)
	}

	return values, warnings, nil
}
