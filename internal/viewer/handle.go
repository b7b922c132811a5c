package viewer

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// ErrNotOwned is returned when an operation needs the viewer process itself
// but the handle only refers to a launcher that already handed off.
var ErrNotOwned = errors.New("viewer process is not owned by panmk")

// Handle refers to a launched viewer. panmk never terminates viewers; a
// Handle only observes and signals them.
type Handle struct {
	// Path is the artifact the viewer was opened on.
	Path string

	// Command is the argv used to launch, empty for desktop-opener launches.
	Command []string

	// Started is when the viewer was launched.
	Started time.Time

	process *os.Process
	owned   bool
	done    chan struct{}
}

// Spawn starts argv in its own process group, detached from any context, so
// that the viewer outlives the watch loop and is not hit by Ctrl-C. owned reports whether the process is the viewer itself
// rather than a launcher that hands the file to another program and exits.
// The process is reaped in the background.
func Spawn(argv []string, path string, owned bool) (*Handle, error) {
	if len(argv) == 0 {
		return nil, &LaunchError{Path: path, Err: errors.New("empty viewer command")}
	}

	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec
	detach(cmd)

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Path: path, Command: argv, Err: err}
	}

	h := &Handle{
		Path:    path,
		Command: argv,
		Started: time.Now(),
		process: cmd.Process,
		owned:   owned,
		done:    make(chan struct{}),
	}

	go func() {
		_ = cmd.Wait()
		close(h.done)
	}()

	return h, nil
}

// NewDetachedHandle returns a handle for a viewer panmk cannot observe, for
// example one opened through the desktop environment.
func NewDetachedHandle(path string) *Handle {
	return &Handle{Path: path, Started: time.Now()}
}

// Pid returns the launched process id, or 0 when there is none.
func (h *Handle) Pid() int {
	if h.process == nil {
		return 0
	}

	return h.process.Pid
}

// Owned reports whether the handle refers to the viewer process itself.
func (h *Handle) Owned() bool { return h.owned && h.process != nil }

// Exited reports whether an owned viewer has exited. Handles that are not
// owned never report an exit.
func (h *Handle) Exited() bool {
	if !h.Owned() {
		return false
	}

	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the launched process exits. It returns immediately for
// detached handles.
func (h *Handle) Wait() {
	if h.done != nil {
		<-h.done
	}
}

// Signal sends sig to an owned, running viewer.
func (h *Handle) Signal(sig os.Signal) error {
	if !h.Owned() {
		return ErrNotOwned
	}

	if h.Exited() {
		return fmt.Errorf("viewer pid %d has exited", h.process.Pid)
	}

	return h.process.Signal(sig)
}

// LaunchError reports that a viewer could not be started.
type LaunchError struct {
	Path    string
	Command []string
	Err     error
}

func (e *LaunchError) Error() string {
	if len(e.Command) > 0 {
		return fmt.Sprintf("launching viewer %q for %s: %v", e.Command[0], e.Path, e.Err)
	}

	return fmt.Sprintf("launching viewer for %s: %v", e.Path, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }
