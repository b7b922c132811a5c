// Package viewer launches document viewers and keeps them in sync with
// rebuilt output. Launch and reload behaviour are pluggable through a
// Registry of typed strategies; the reuse policy is fixed when a Controller
// is created.
package viewer

import (
	"context"
	"log/slog"
)

// Options configures a Controller.
type Options struct {
	// AlwaysNew launches a fresh viewer on every refresh instead of reusing
	// the current one.
	AlwaysNew bool

	// Launch opens a viewer. Required.
	Launch LaunchFunc

	// Reload notifies a reused viewer. Defaults to NoopReloader.
	Reload ReloadFunc

	// Logger is used for structured logging.
	Logger *slog.Logger
}

// Controller owns the viewer handle of one build session. It is not safe for
// concurrent use; the watch loop drives it from a single goroutine.
type Controller struct {
	opts   Options
	handle *Handle
}

// NewController creates a Controller.
func NewController(opts Options) *Controller {
	if opts.Reload == nil {
		opts.Reload = NoopReloader
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{opts: opts}
}

// FromRegistry builds a Controller from named strategies in reg.
func FromRegistry(reg *Registry, loader, reloader string, alwaysNew bool, s Settings, logger *slog.Logger) (*Controller, error) {
	lf, err := reg.Launcher(loader)
	if err != nil {
		return nil, err
	}

	launch, err := lf(s)
	if err != nil {
		return nil, err
	}

	rf, err := reg.Reloader(reloader)
	if err != nil {
		return nil, err
	}

	reload, err := rf(s, launch)
	if err != nil {
		return nil, err
	}

	return NewController(Options{
		AlwaysNew: alwaysNew,
		Launch:    launch,
		Reload:    reload,
		Logger:    logger,
	}), nil
}

// Launch opens path in a new viewer and makes it the current handle. On
// failure the current handle is kept.
func (c *Controller) Launch(ctx context.Context, path string) error {
	h, err := c.opts.Launch(ctx, path)
	if err != nil {
		return err
	}

	c.opts.Logger.Debug("viewer launched",
		slog.String("path", path),
		slog.Int("pid", h.Pid()),
		slog.Bool("owned", h.Owned()),
	)

	c.handle = h

	return nil
}

// Refresh tells the viewer that path was rebuilt. With AlwaysNew, or when no
// live viewer exists, it launches one; otherwise it delegates to the reload
// strategy. The old handle is abandoned, never killed.
func (c *Controller) Refresh(ctx context.Context, path string) error {
	if c.opts.AlwaysNew || c.handle == nil || c.handle.Exited() {
		return c.Launch(ctx, path)
	}

	c.handle.Path = path

	h, err := c.opts.Reload(ctx, c.handle)
	if h != nil {
		c.handle = h
	}

	return err
}

// Handle returns the current viewer handle, or nil.
func (c *Controller) Handle() *Handle { return c.handle }
