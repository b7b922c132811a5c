package rc

import "fmt"

// LoadError is a non-fatal problem found while loading one rc file: an
// unreadable file or a malformed line. The cascade keeps going after it.
type LoadError struct {
	Path string
	// Line is the 1-based line number, or 0 when the whole file failed.
	Line int
	Err  error
}

func (e *LoadError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("rc file %s line %d: %v", e.Path, e.Line, e.Err)
	}

	return fmt.Sprintf("rc file %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
