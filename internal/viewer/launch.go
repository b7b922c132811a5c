package viewer

import (
	"context"
	"strings"

	"github.com/skratchdot/open-golang/open"

	"github.com/hupe1980/panmk/internal/platform"
)

// LaunchFunc opens path in a viewer.
type LaunchFunc func(ctx context.Context, path string) (*Handle, error)

// PlatformCommand returns the argv prefix that opens a file on class, or nil
// when the class has no fixed command and the desktop opener is used.
// Launchers in this table hand the file off and exit, so the handles they
// produce are not owned.
func PlatformCommand(class platform.Class) []string {
	switch class {
	case platform.Windows:
		// ShellExecute's default "open" verb.
		return []string{"rundll32", "url.dll,FileProtocolHandler"}
	case platform.Cygwin:
		// The empty argument is start's window title.
		return []string{"cmd", "/c", "start", ""}
	case platform.Darwin:
		return []string{"open"}
	default:
		return nil
	}
}

// NewLauncher returns the default launch strategy. A non-empty viewer
// command (split on whitespace) takes precedence on every platform class
// and yields owned handles.
func NewLauncher(class platform.Class, viewer string) LaunchFunc {
	if fields := strings.Fields(viewer); len(fields) > 0 {
		return func(_ context.Context, path string) (*Handle, error) {
			return Spawn(append(append([]string(nil), fields...), path), path, true)
		}
	}

	if prefix := PlatformCommand(class); prefix != nil {
		return func(_ context.Context, path string) (*Handle, error) {
			argv := append(append([]string(nil), prefix...), path)
			return Spawn(argv, path, false)
		}
	}

	return desktopOpen
}

// desktopOpen hands path to the desktop environment (xdg-open and friends).
func desktopOpen(_ context.Context, path string) (*Handle, error) {
	if err := open.Start(path); err != nil {
		return nil, &LaunchError{Path: path, Err: err}
	}

	return NewDetachedHandle(path), nil
}
