package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/panmk/internal/config"
	"github.com/hupe1980/panmk/internal/converter"
	"github.com/hupe1980/panmk/internal/logging"
	"github.com/hupe1980/panmk/internal/viewer"
	"github.com/hupe1980/panmk/internal/watch"
)

// buildSession holds what every mode needs to compile one source.
type buildSession struct {
	cfg    *config.Config
	logger *slog.Logger
	out    io.Writer

	invoker *converter.Invoker
	target  converter.Target
	extra   []string
	viewer  *viewer.Controller
}

func runBuild(cmd *cobra.Command, source string, registry *viewer.Registry) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	if cfg.Output == "" {
		return &ExitError{Code: 2, Err: errors.New("--output (-o) is required")}
	}

	if !strings.Contains(cfg.Output, converter.Placeholder) {
		logger.Debug("output template has no placeholder", slog.String("output", cfg.Output))
	}

	s := &buildSession{
		cfg:    cfg,
		logger: logger,
		out:    cmd.ErrOrStderr(),
		invoker: converter.New(cfg.Converter,
			converter.WithBaseArgs(cfg.BaseConverterArgs()...),
			converter.WithChangeDir(cfg.ChangeDir),
			converter.WithStdout(cmd.OutOrStdout()),
		),
		target: converter.Target{Source: source, Template: cfg.Output},
		extra:  passthroughFromContext(ctx),
	}

	mode := cfg.Mode()

	if mode.Preview() {
		ctrl, err := viewer.FromRegistry(registry, cfg.Loader, cfg.Reloader, cfg.NewViewer,
			cfg.ViewerSettings(), logging.Component(logger, "viewer"))
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}

		s.viewer = ctrl
	}

	if cfg.ConverterVersion != "" {
		v, err := s.invoker.CheckVersion(ctx, cfg.ConverterVersion)
		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		logger.Debug("converter version accepted", slog.String("version", v.String()))
	}

	logger.Debug("starting build",
		slog.String("source", source),
		slog.String("mode", mode.String()),
		slog.Int("passthrough", len(s.extra)),
	)

	if mode.Continuous() {
		return s.watch(ctx)
	}

	return s.once(ctx)
}

// once compiles a single time and, in view mode, opens a viewer. Only a
// failure to produce the output is fatal.
func (s *buildSession) once(ctx context.Context) error {
	output := s.outputPath()

	if !s.cfg.Force && converter.UpToDate(s.target.Source, output) {
		statusf(s.out, s.cfg, "%s is up to date", output)
	} else {
		res, err := s.invoker.Compile(ctx, s.target, s.extra)

		var exitErr *converter.ExitError
		if errors.As(err, &exitErr) {
			s.printDiagnostics(exitErr.Diagnostics)
		}

		if err != nil {
			return &ExitError{Code: 1, Err: err}
		}

		s.printDiagnostics(res.Diagnostics)
		statusf(s.out, s.cfg, "%s → %s (%s)", filepath.Base(s.target.Source), res.OutputPath, res.Duration.Round(time.Millisecond))

		output = res.OutputPath
	}

	if s.viewer == nil {
		return nil
	}

	if err := s.viewer.Launch(ctx, output); err != nil {
		s.logger.Error("viewer launch failed", slog.String("error", err.Error()))
	}

	return nil
}

// watch runs the continuous loop until interrupted.
func (s *buildSession) watch(ctx context.Context) error {
	opts := watch.Options{
		Source:          s.target.Source,
		PollInterval:    s.cfg.PollInterval,
		Notify:          s.cfg.Notify,
		Debounce:        s.cfg.Debounce,
		DiffDiagnostics: s.cfg.DiffDiagnostics,
		Color:           !s.cfg.NoColor,
		Lock:            s.cfg.Lock,
		Logger:          logging.Component(s.logger, "watch"),
		Out:             s.out,
	}

	if s.viewer != nil {
		opts.Viewer = s.viewer
	}

	if err := watch.Run(ctx, opts, watch.CompileFunc(s.invoker, s.target, s.extra)); err != nil {
		return &ExitError{Code: 1, Err: err}
	}

	return nil
}

// outputPath resolves the output the converter writes, relative to the
// current directory.
func (s *buildSession) outputPath() string {
	if s.cfg.ChangeDir {
		return converter.ResolveOutputIn(s.target.Source, s.target.Template)
	}

	return converter.ResolveOutput(s.target.Source, s.target.Template)
}

func (s *buildSession) printDiagnostics(diag string) {
	if diag == "" {
		return
	}

	fmt.Fprint(s.out, diag)

	if !strings.HasSuffix(diag, "\n") {
		fmt.Fprintln(s.out)
	}
}
