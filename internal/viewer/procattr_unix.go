//go:build unix

package viewer

import (
	"os/exec"
	"syscall"
)

// detach starts the viewer in its own process group so terminal signals
// aimed at panmk do not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
