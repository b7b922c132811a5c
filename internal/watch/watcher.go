package watch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"
)

// BuildResult describes one finished build.
type BuildResult struct {
	OutputPath  string
	Diagnostics string
	Duration    time.Duration
}

// BuildFunc compiles the source once. It may return a non-nil result together
// with an error to surface the diagnostics of a failed build.
type BuildFunc func(ctx context.Context) (*BuildResult, error)

// Viewer is notified about successful builds in preview mode.
// *viewer.Controller satisfies it.
type Viewer interface {
	Launch(ctx context.Context, path string) error
	Refresh(ctx context.Context, path string) error
}

// Options configures the watch behaviour.
type Options struct {
	// Source is the document whose signature is polled.
	Source string

	// PollInterval is the time between signature checks.
	PollInterval time.Duration

	// Notify adds fsnotify wake-ups on top of polling.
	Notify bool

	// Debounce is the quiet period applied to fsnotify wake-ups.
	Debounce time.Duration

	// Viewer, when set, enables preview mode.
	Viewer Viewer

	// DiffDiagnostics prints changes in converter diagnostics as a unified
	// diff instead of repeating them on every build.
	DiffDiagnostics bool

	// Color enables ANSI colours in diagnostics diffs.
	Color bool

	// Lock takes a single-instance lock next to Source for the run.
	Lock bool

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns the default watch options.
func DefaultOptions() Options {
	return Options{
		PollInterval: 250 * time.Millisecond,
		Notify:       true,
		Debounce:     100 * time.Millisecond,
		Lock:         true,
		Logger:       slog.Default(),
		Out:          os.Stderr,
	}
}

// Run builds the source once, then rebuilds it whenever its signature
// changes. It blocks until ctx is cancelled or SIGINT/SIGTERM is received,
// which is a normal exit and returns nil. Viewers are left running.
func Run(ctx context.Context, opts Options, build BuildFunc) error {
	if opts.Source == "" {
		return errors.New("watch: no source file")
	}

	if opts.PollInterval <= 0 {
		return fmt.Errorf("watch: poll interval must be positive, got %s", opts.PollInterval)
	}

	l := newLoop(opts, build)

	if opts.Lock {
		lock, err := AcquireLock(opts.Source)

		switch {
		case errors.Is(err, ErrLocked):
			return err
		case err != nil:
			l.logger.Warn("watching without single-instance lock", slog.String("error", err.Error()))
		default:
			defer func() { _ = lock.Release() }()
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	wake := make(chan struct{}, 1)

	if opts.Notify {
		debouncer := NewDebouncer(opts.Debounce, func() {
			select {
			case wake <- struct{}{}:
			default:
			}
		})
		defer debouncer.Stop()

		n, err := startNotifier(opts.Source, l.logger, debouncer.Trigger)
		if err != nil {
			l.logger.Warn("file notifications unavailable, polling only", slog.String("error", err.Error()))
		} else {
			defer func() { _ = n.Close() }()
		}
	}

	fmt.Fprintf(l.out, "watching %s (poll=%s, notify=%t, preview=%t)\n",
		opts.Source, opts.PollInterval, opts.Notify, opts.Viewer != nil)

	l.start(sigCtx)

	ticker := time.NewTicker(opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(l.out, "\nshutting down watcher")
			return nil
		case <-ticker.C:
		case <-wake:
		}

		if sigCtx.Err() != nil {
			continue
		}

		l.poll(sigCtx)
	}
}

// loop holds the state of one Run. Only the Run goroutine touches it.
type loop struct {
	opts   Options
	build  BuildFunc
	logger *slog.Logger
	out    io.Writer
	name   string

	state    Signature
	statErr  string
	launched bool

	builds          int
	lastDiagnostics string
}

func newLoop(opts Options, build BuildFunc) *loop {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	out := opts.Out
	if out == nil {
		out = io.Discard
	}

	return &loop{
		opts:   opts,
		build:  build,
		logger: logger,
		out:    out,
		name:   filepath.Base(opts.Source),
	}
}

// start records the initial signature and builds unconditionally.
func (l *loop) start(ctx context.Context) {
	sig, err := Stat(l.opts.Source)
	l.noteStatError(err)

	l.state = sig

	l.rebuild(ctx, "(initial)")
}

// poll compares the current signature with the stored one and rebuilds on a
// difference. The new signature is stored before the build starts.
func (l *loop) poll(ctx context.Context) {
	sig, err := Stat(l.opts.Source)
	if l.noteStatError(err) {
		return
	}

	if sig.Equal(l.state) {
		return
	}

	l.state = sig

	if !sig.Exists {
		fmt.Fprintf(l.out, "[%s] %s → missing, waiting for it to reappear\n", timestamp(), l.name)
		return
	}

	l.rebuild(ctx, l.name)
}

// noteStatError reports whether err is non-nil, logging it only when it
// differs from the previous poll's error.
func (l *loop) noteStatError(err error) bool {
	if err == nil {
		if l.statErr != "" {
			l.logger.Info("source readable again", slog.String("source", l.opts.Source))
		}

		l.statErr = ""

		return false
	}

	if msg := err.Error(); msg != l.statErr {
		l.logger.Warn("reading source signature", slog.String("source", l.opts.Source), slog.String("error", msg))
		l.statErr = msg
	}

	return true
}

// rebuild runs one build and, in preview mode, updates the viewer on success.
func (l *loop) rebuild(ctx context.Context, trigger string) {
	res, err := l.build(ctx)

	if ctx.Err() != nil {
		l.logger.Debug("build abandoned", slog.String("trigger", trigger))
		return
	}

	if res != nil {
		l.reportDiagnostics(res.Diagnostics)
	}

	if err != nil {
		fmt.Fprintf(l.out, "[%s] %s → ERROR: %v\n", timestamp(), trigger, err)
		return
	}

	if res == nil {
		res = &BuildResult{}
	}

	fmt.Fprintf(l.out, "[%s] %s → OK (%s in %s)\n",
		timestamp(), trigger, res.OutputPath, res.Duration.Round(time.Millisecond))

	if l.opts.Viewer == nil {
		return
	}

	if !l.launched {
		if err := l.opts.Viewer.Launch(ctx, res.OutputPath); err != nil {
			fmt.Fprintf(l.out, "  viewer: FAILED: %v\n", err)
			return
		}

		l.launched = true

		return
	}

	if err := l.opts.Viewer.Refresh(ctx, res.OutputPath); err != nil {
		fmt.Fprintf(l.out, "  viewer: FAILED: %v\n", err)
	}
}

func (l *loop) reportDiagnostics(diag string) {
	defer func() {
		l.builds++
		l.lastDiagnostics = diag
	}()

	if !l.opts.DiffDiagnostics || l.builds == 0 {
		if diag != "" {
			fmt.Fprint(l.out, normalizeDiagnostics(diag))
		}

		return
	}

	diff, err := DiagnosticsDiff(l.lastDiagnostics, diag)
	if err != nil {
		l.logger.Debug("diffing diagnostics", slog.String("error", err.Error()))
		fmt.Fprint(l.out, normalizeDiagnostics(diag))

		return
	}

	if diff != "" {
		writeDiff(l.out, diff, l.opts.Color)
	}
}

func timestamp() string {
	return time.Now().Format("15:04:05")
}
