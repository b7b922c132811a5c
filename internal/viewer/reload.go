package viewer

import (
	"context"
	"fmt"
)

// NoopReloader keeps the handle untouched, for viewers that watch their file.
func NoopReloader(_ context.Context, h *Handle) (*Handle, error) {
	return h, nil
}

// RelaunchReloader opens the file again with launch. The previous viewer is
// left running.
func RelaunchReloader(launch LaunchFunc) ReloadFunc {
	return func(ctx context.Context, h *Handle) (*Handle, error) {
		return launch(ctx, h.Path)
	}
}

// SignalReloader sends the named signal to the viewer process, e.g. HUP for
// viewers that re-read their document on SIGHUP.
func SignalReloader(name string) (ReloadFunc, error) {
	sig, err := ParseSignal(name)
	if err != nil {
		return nil, err
	}

	return func(_ context.Context, h *Handle) (*Handle, error) {
		if err := h.Signal(sig); err != nil {
			return h, fmt.Errorf("sending %s to viewer: %w", sig, err)
		}

		return h, nil
	}, nil
}
