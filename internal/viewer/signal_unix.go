//go:build unix

package viewer

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

// ParseSignal converts a signal name such as "HUP", "SIGUSR1" or "usr2"
// into an os.Signal.
func ParseSignal(name string) (os.Signal, error) {
	n := strings.ToUpper(strings.TrimSpace(name))
	if !strings.HasPrefix(n, "SIG") {
		n = "SIG" + n
	}

	sig := unix.SignalNum(n)
	if sig == 0 {
		return nil, fmt.Errorf("unknown signal %q", name)
	}

	return sig, nil
}
