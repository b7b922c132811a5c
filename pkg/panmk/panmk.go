// Package panmk provides a public Go API for compiling documents with pandoc
// and keeping a preview in sync, without the CLI.
//
// Basic usage:
//
//	result, err := panmk.Build(ctx, "notes.md", panmk.WithOutput("{filename}.pdf"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(result.OutputPath)
//
// Continuous preview:
//
//	err := panmk.Watch(ctx, "notes.md",
//	    panmk.WithOutput("{filename}.pdf"),
//	    panmk.WithPreview(""),
//	    panmk.WithReloader("signal"),
//	)
package panmk

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/hupe1980/panmk/internal/cli"
	"github.com/hupe1980/panmk/internal/config"
	"github.com/hupe1980/panmk/internal/converter"
	"github.com/hupe1980/panmk/internal/platform"
	"github.com/hupe1980/panmk/internal/viewer"
	"github.com/hupe1980/panmk/internal/watch"
)

// Placeholder is replaced by the source base name in output templates.
const Placeholder = converter.Placeholder

// Platform is a platform class used to pick the viewer launch command.
type Platform = platform.Class

// Platform classes.
const (
	POSIX   = platform.POSIX
	Windows = platform.Windows
	Cygwin  = platform.Cygwin
	Darwin  = platform.Darwin
)

// Viewer strategy types. Register custom launchers and reloaders on a
// Registry and select them with WithLoader and WithReloader.
type (
	Registry        = viewer.Registry
	Settings        = viewer.Settings
	Handle          = viewer.Handle
	LaunchFunc      = viewer.LaunchFunc
	ReloadFunc      = viewer.ReloadFunc
	LauncherFactory = viewer.LauncherFactory
	ReloaderFactory = viewer.ReloaderFactory
)

// Built-in strategy names.
const (
	LoaderDefault    = viewer.LoaderDefault
	ReloaderNone     = viewer.ReloaderNone
	ReloaderRelaunch = viewer.ReloaderRelaunch
	ReloaderSignal   = viewer.ReloaderSignal
)

// NewRegistry returns an empty strategy registry.
func NewRegistry() *Registry { return viewer.NewRegistry() }

// DefaultRegistry returns a registry holding the built-in strategies.
func DefaultRegistry() *Registry { return viewer.DefaultRegistry() }

// NewDetachedHandle returns a handle for a viewer panmk does not own, for
// launchers that hand the file to another program.
func NewDetachedHandle(path string) *Handle { return viewer.NewDetachedHandle(path) }

// Spawn starts argv as an owned viewer process for path.
func Spawn(argv []string, path string) (*Handle, error) { return viewer.Spawn(argv, path, true) }

// Main runs the panmk command line with reg as its strategy registry and
// returns the exit code. It lets programs ship a panmk binary with their own
// launchers and reloaders:
//
//	func main() {
//	    reg := panmk.DefaultRegistry()
//	    reg.RegisterReloader("myviewer", myReloader)
//	    os.Exit(panmk.Main(reg))
//	}
func Main(reg *Registry) int {
	return cli.Execute(cli.WithRegistry(reg))
}

// Option configures Build and Watch.
type Option func(*options)

type options struct {
	output        string
	converter     string
	converterArgs []string
	extraArgs     []string
	env           []string
	changeDir     bool
	force         bool

	preview      bool
	viewer       string
	loader       string
	reloader     string
	reloadSignal string
	newViewer    bool
	platform     platform.Class
	registry     *viewer.Registry

	pollInterval    time.Duration
	debounce        time.Duration
	notify          bool
	diffDiagnostics bool
	lock            bool

	logger *slog.Logger
	status io.Writer
}

// --- Converter ---

// WithOutput sets the output template (required).
func WithOutput(template string) Option { return func(o *options) { o.output = template } }

// WithConverter sets the converter binary and the arguments placed before
// the source path (default: "pandoc").
func WithConverter(binary string, args ...string) Option {
	return func(o *options) {
		o.converter = binary
		o.converterArgs = args
	}
}

// WithExtraArgs sets arguments appended after the output flag on every run.
func WithExtraArgs(args ...string) Option { return func(o *options) { o.extraArgs = args } }

// WithEnv adds KEY=VALUE pairs to the converter's environment.
func WithEnv(env ...string) Option { return func(o *options) { o.env = env } }

// WithChangeDir runs the converter in the source file's directory.
func WithChangeDir() Option { return func(o *options) { o.changeDir = true } }

// WithForce makes Build compile even when the output is up to date.
func WithForce() Option { return func(o *options) { o.force = true } }

// --- Preview ---

// WithPreview opens the output in viewer after building. An empty viewer
// selects the platform opener.
func WithPreview(viewerCmd string) Option {
	return func(o *options) {
		o.preview = true
		o.viewer = viewerCmd
	}
}

// WithLoader selects a named launch strategy.
func WithLoader(name string) Option { return func(o *options) { o.loader = name } }

// WithReloader selects a named reload strategy ("none", "relaunch", "signal").
func WithReloader(name string) Option { return func(o *options) { o.reloader = name } }

// WithReloadSignal sets the signal used by the "signal" reloader.
func WithReloadSignal(name string) Option { return func(o *options) { o.reloadSignal = name } }

// WithNewViewer starts a new viewer on every rebuild.
func WithNewViewer() Option { return func(o *options) { o.newViewer = true } }

// WithPlatform overrides the detected platform class.
func WithPlatform(c Platform) Option { return func(o *options) { o.platform = c } }

// WithRegistry supplies the strategy registry, typically DefaultRegistry
// with additional launchers or reloaders.
func WithRegistry(r *Registry) Option { return func(o *options) { o.registry = r } }

// --- Watching ---

// WithPollInterval sets the source polling interval (default: 250ms).
func WithPollInterval(d time.Duration) Option { return func(o *options) { o.pollInterval = d } }

// WithDebounce sets the quiet period after file notifications (default: 100ms).
func WithDebounce(d time.Duration) Option { return func(o *options) { o.debounce = d } }

// WithoutNotify disables file notifications; the source is only polled.
func WithoutNotify() Option { return func(o *options) { o.notify = false } }

// WithDiffDiagnostics reports changes in converter warnings as a diff.
func WithDiffDiagnostics() Option { return func(o *options) { o.diffDiagnostics = true } }

// WithoutLock allows several watchers on the same source.
func WithoutLock() Option { return func(o *options) { o.lock = false } }

// --- Output ---

// WithLogger sets the structured logger (default: discard).
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithStatusWriter sets where status lines and diagnostics go (default: discard).
func WithStatusWriter(w io.Writer) Option { return func(o *options) { o.status = w } }

// Result holds the outcome of a successful Build.
type Result struct {
	// OutputPath is the file the converter wrote, or would have written when
	// Skipped is true.
	OutputPath string

	// Diagnostics is the converter's stderr.
	Diagnostics string

	// Duration is the converter's wall time.
	Duration time.Duration

	// Skipped reports that the output was up to date and nothing ran.
	Skipped bool
}

func newOptions(opts []Option) *options {
	d := config.Default()

	o := &options{
		converter:    d.Converter,
		loader:       d.Loader,
		reloader:     d.Reloader,
		reloadSignal: d.ReloadSignal,
		platform:     platform.Current(),
		pollInterval: d.PollInterval,
		debounce:     d.Debounce,
		notify:       d.Notify,
		lock:         d.Lock,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		status:       io.Discard,
	}

	for _, opt := range opts {
		opt(o)
	}

	if o.registry == nil {
		o.registry = viewer.DefaultRegistry()
	}

	return o
}

func (o *options) invoker() *converter.Invoker {
	return converter.New(o.converter,
		converter.WithBaseArgs(o.converterArgs...),
		converter.WithEnv(o.env...),
		converter.WithChangeDir(o.changeDir),
	)
}

func (o *options) controller() (*viewer.Controller, error) {
	return viewer.FromRegistry(o.registry, o.loader, o.reloader, o.newViewer, viewer.Settings{
		Platform:     o.platform,
		Viewer:       o.viewer,
		ReloadSignal: o.reloadSignal,
	}, o.logger)
}

// Build compiles source once. Unless WithForce is given, nothing runs when
// the output is newer than the source. With WithPreview the output is opened
// afterwards; a viewer failure is logged, not returned.
func Build(ctx context.Context, source string, opts ...Option) (*Result, error) {
	if source == "" {
		return nil, errors.New("source must not be empty")
	}

	o := newOptions(opts)
	if o.output == "" {
		return nil, errors.New("output template must not be empty")
	}

	var ctrl *viewer.Controller

	if o.preview {
		c, err := o.controller()
		if err != nil {
			return nil, err
		}

		ctrl = c
	}

	target := converter.Target{Source: source, Template: o.output}

	result := &Result{OutputPath: converter.ResolveOutput(source, o.output)}
	if o.changeDir {
		result.OutputPath = converter.ResolveOutputIn(source, o.output)
	}

	if !o.force && converter.UpToDate(source, result.OutputPath) {
		result.Skipped = true
	} else {
		res, err := o.invoker().Compile(ctx, target, o.extraArgs)
		if err != nil {
			return nil, err
		}

		result.OutputPath = res.OutputPath
		result.Diagnostics = res.Diagnostics
		result.Duration = res.Duration
	}

	if ctrl != nil {
		if err := ctrl.Launch(ctx, result.OutputPath); err != nil {
			o.logger.Error("viewer launch failed", slog.String("error", err.Error()))
		}
	}

	return result, nil
}

// Watch compiles source and rebuilds it whenever it changes, until ctx is
// cancelled. Build failures are reported on the status writer and do not end
// the loop.
func Watch(ctx context.Context, source string, opts ...Option) error {
	if source == "" {
		return errors.New("source must not be empty")
	}

	o := newOptions(opts)
	if o.output == "" {
		return errors.New("output template must not be empty")
	}

	wo := watch.Options{
		Source:          source,
		PollInterval:    o.pollInterval,
		Notify:          o.notify,
		Debounce:        o.debounce,
		DiffDiagnostics: o.diffDiagnostics,
		Lock:            o.lock,
		Logger:          o.logger,
		Out:             o.status,
	}

	if o.preview {
		ctrl, err := o.controller()
		if err != nil {
			return err
		}

		wo.Viewer = ctrl
	}

	target := converter.Target{Source: source, Template: o.output}

	return watch.Run(ctx, wo, watch.CompileFunc(o.invoker(), target, o.extraArgs))
}
