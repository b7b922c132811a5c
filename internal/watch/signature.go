package watch

import (
	"errors"
	"io/fs"
	"os"
	"time"
)

// Signature is a cheap fingerprint of a file's on-disk state. The zero value
// means "unknown" and never equals an observed signature.
type Signature struct {
	Exists  bool
	Size    int64
	ModTime time.Time

	known bool
}

// Stat observes path. A missing file yields a known signature with Exists
// false; other stat failures are returned.
func Stat(path string) (Signature, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Signature{known: true}, nil
		}

		return Signature{}, err
	}

	return Signature{
		Exists:  true,
		Size:    info.Size(),
		ModTime: info.ModTime(),
		known:   true,
	}, nil
}

// Known reports whether s came from an observation.
func (s Signature) Known() bool { return s.known }

// Equal reports whether s and o describe the same file state.
func (s Signature) Equal(o Signature) bool {
	if !s.known || !o.known {
		return false
	}

	if s.Exists != o.Exists {
		return false
	}

	if !s.Exists {
		return true
	}

	return s.Size == o.Size && s.ModTime.Equal(o.ModTime)
}
