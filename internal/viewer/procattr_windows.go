//go:build windows

package viewer

import (
	"os/exec"
	"syscall"
)

// detach starts the viewer in a new process group so Ctrl-C in panmk's
// console does not reach it.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}
