// Package cli implements the cobra command tree for panmk.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/hupe1980/panmk/internal/config"
	"github.com/hupe1980/panmk/internal/logging"
	"github.com/hupe1980/panmk/internal/platform"
	"github.com/hupe1980/panmk/internal/rc"
	"github.com/hupe1980/panmk/internal/version"
	"github.com/hupe1980/panmk/internal/viewer"
)

// ExitError wraps an error with a specific process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("exit code %d", e.Code)
}

func (e *ExitError) Unwrap() error { return e.Err }

// Option customises the command tree.
type Option func(*rootOptions)

type rootOptions struct {
	registry *viewer.Registry
}

// WithRegistry replaces the viewer strategy registry. Programs embedding
// panmk use it to add launch or reload strategies.
func WithRegistry(r *viewer.Registry) Option {
	return func(o *rootOptions) { o.registry = r }
}

// Execute builds the command tree, runs it with the process arguments, and
// returns the exit code.
func Execute(opts ...Option) int {
	cmd := NewRootCommand(opts...)

	err := run(context.Background(), cmd, os.Args[1:])
	if err == nil {
		return 0
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "panmk: %v\n", err)

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	return 1
}

// run splits converter passthrough arguments off args and executes cmd.
func run(ctx context.Context, cmd *cobra.Command, args []string) error {
	own, extra := splitPassthrough(cmd, args)

	cmd.SetArgs(own)

	return cmd.ExecuteContext(withPassthrough(ctx, extra))
}

// NewRootCommand constructs the top-level cobra.Command. The root command
// itself compiles a document; subcommands inspect configuration and the
// environment.
func NewRootCommand(opts ...Option) *cobra.Command {
	o := &rootOptions{registry: viewer.DefaultRegistry()}
	for _, opt := range opts {
		opt(o)
	}

	var (
		rcFile string
		noRC   bool
	)

	cmd := &cobra.Command{
		Use:   "panmk [flags] <filename> [converter flags...] [-- converter args...]",
		Short: "Build and preview documents with pandoc",
		Long: `panmk drives pandoc (or another converter) to turn a source document into
an output file, and can keep rebuilding it and a viewer in sync while you
edit, in the manner of latexmk.

  panmk -o '{filename}.pdf' notes.md        compile once
  panmk -pv -o '{filename}.pdf' notes.md    compile, then open a viewer
  panmk -pvc -o '{filename}.pdf' notes.md   keep compiling and previewing

{filename} in the output template is replaced by the source's base name.
Flags panmk does not know are passed to the converter unchanged; converter
flags that take a value must use --flag=value or follow "--".

Settings are read from rc files (key=value per line), PANMK_* environment
variables, and flags, in increasing order of precedence.`,
		Version:       version.GetInfo().String(),
		Args:          sourceArg,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return initConfig(cmd, rcFile, noRC)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBuild(cmd, args[0], o.registry)
		},
	}

	cmd.SetVersionTemplate("{{.Version}}\n")

	// Global persistent flags.
	pf := cmd.PersistentFlags()
	pf.String("log-level", "info", "log level: debug, info, warn, error")
	pf.String("log-format", "text", "log format: text, json")
	pf.Bool("no-color", false, "disable colored output")
	pf.BoolP("quiet", "q", false, "suppress non-essential output")
	pf.StringVar(&rcFile, "rc", "", "read this rc file instead of the default ones")
	pf.BoolVar(&noRC, "norc", false, "do not read the default rc files")
	pf.String("platform", "", "platform class: posix, windows, cygwin, darwin (default: detected)")

	registerBuildFlags(cmd)
	registerCompletions(cmd, o.registry)

	// Flag parsing errors return exit code 2.
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &ExitError{Code: 2, Err: err}
	})

	cmd.AddCommand(
		newVersionCommand(),
		newConfigCommand(),
		newCheckCommand(o.registry),
		newCompletionCommand(),
	)

	return cmd
}

// registerBuildFlags adds the flags of the build action to the root command.
func registerBuildFlags(cmd *cobra.Command) {
	d := config.Default()

	f := cmd.Flags()
	f.BoolP("compile", "p", true, "compile the document (always on; accepted for latexmk-style -pv/-pvc)")
	f.BoolP("view", "v", false, "open a viewer after compiling")
	f.BoolP("continuous", "c", false, "keep watching the source and rebuilding")
	f.StringP("output", "o", "", "output template, {filename} is replaced by the source base name (required)")
	f.Bool("cd", false, "run the converter in the source file's directory")
	f.BoolP("force", "g", false, "compile even if the output is up to date")
	f.Bool("new-viewer", false, "start a new viewer on every rebuild instead of reusing one")

	f.String("converter", d.Converter, "converter program")
	f.String("converter-args", "", "arguments placed before the source path on every converter run")
	f.String("converter-version", "", `semver constraint the converter must satisfy, e.g. ">= 3.0"`)

	f.String("viewer", "", "viewer command (default: platform opener)")
	f.String("loader", d.Loader, "viewer launch strategy")
	f.String("reloader", d.Reloader, "viewer reload strategy: none, relaunch, signal")
	f.String("reload-signal", d.ReloadSignal, "signal sent by the signal reloader")

	f.Duration("poll-interval", d.PollInterval, "source polling interval in continuous mode")
	f.Duration("debounce", d.Debounce, "quiet period after filesystem notifications")
	f.Bool("notify", d.Notify, "use filesystem notifications in addition to polling")
	f.Bool("diff-diagnostics", false, "show changes in converter warnings as a diff between builds")
	f.Bool("lock", d.Lock, "refuse to watch a source another panmk is already watching")
}

// sourceArg requires exactly one source file and reports usage errors with
// exit code 2.
func sourceArg(_ *cobra.Command, args []string) error {
	switch len(args) {
	case 1:
		return nil
	case 0:
		return &ExitError{Code: 2, Err: errors.New("missing source filename")}
	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("expected one source filename, got %d arguments %q", len(args), args)}
	}
}

// initConfig runs the rc cascade, loads the typed configuration, and stores
// configuration and logger in the command context.
func initConfig(cmd *cobra.Command, rcFile string, noRC bool) error {
	platformName, _ := cmd.Flags().GetString("platform")

	class, err := platform.Parse(platformName)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	result := rc.Resolve(rc.Options{
		Platform:     class,
		ExplicitPath: rcFile,
		SkipDefault:  noRC,
		Overrides:    flagOverrides(cmd),
	})

	cfg, err := config.Load(cmd, result.Config)
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	logger := logging.SetupWithWriter(cfg, cmd.ErrOrStderr())

	for _, w := range result.Warnings {
		logger.Warn("rc file skipped", slog.String("error", w.Error()))
	}

	for _, k := range config.UnknownKeys(result.Config) {
		logger.Warn("unknown rc key ignored", slog.String("key", k))
	}

	logger.Debug("configuration loaded",
		slog.String("platform", cfg.PlatformClass().String()),
		slog.Int("rcLayers", countPresent(result.Layers)),
		slog.String("mode", cfg.Mode().String()),
	)

	ctx := cmd.Context()
	ctx = config.NewContext(ctx, cfg)
	ctx = logging.NewContext(ctx, logger)
	ctx = withCascade(ctx, result)
	cmd.SetContext(ctx)

	return nil
}

// flagOverrides returns the configuration keys set explicitly on the command
// line. Only flags declared by the root command count.
func flagOverrides(cmd *cobra.Command) map[string]string {
	overrides := make(map[string]string)
	root := cmd.Root()

	cmd.Flags().Visit(func(f *pflag.Flag) {
		if !slices.Contains(config.Keys, f.Name) {
			return
		}

		if root.Flags().Lookup(f.Name) != f && root.PersistentFlags().Lookup(f.Name) != f {
			return
		}

		overrides[f.Name] = f.Value.String()
	})

	return overrides
}

func countPresent(layers []rc.Layer) int {
	n := 0

	for _, l := range layers {
		if l.Present {
			n++
		}
	}

	return n
}

type cascadeKey struct{}

func withCascade(ctx context.Context, r *rc.Result) context.Context {
	return context.WithValue(ctx, cascadeKey{}, r)
}

func cascadeFromContext(ctx context.Context) *rc.Result {
	if r, ok := ctx.Value(cascadeKey{}).(*rc.Result); ok {
		return r
	}

	return &rc.Result{}
}

// statusf writes a user-facing status line unless quiet output was requested.
func statusf(w io.Writer, cfg *config.Config, format string, args ...any) {
	if cfg.Quiet {
		return
	}

	fmt.Fprintf(w, "[%s] ", time.Now().Format(logging.TimeLayout))
	fmt.Fprintf(w, format, args...)
	fmt.Fprintln(w)
}
