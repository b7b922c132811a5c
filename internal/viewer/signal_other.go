//go:build !unix

package viewer

import (
	"fmt"
	"os"
)

// ParseSignal always fails: reload signals need a Unix host.
func ParseSignal(name string) (os.Signal, error) {
	return nil, fmt.Errorf("reload signal %q is not supported on this platform", name)
}
