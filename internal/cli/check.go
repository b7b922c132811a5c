package cli

import (
	"errors"
	"fmt"
	"os/exec"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/panmk/internal/config"
	"github.com/hupe1980/panmk/internal/converter"
	"github.com/hupe1980/panmk/internal/logging"
	"github.com/hupe1980/panmk/internal/viewer"
)

func newCheckCommand(registry *viewer.Registry) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify that the converter and viewer strategies are usable",
		Long: `Check runs the configured converter with --version, compares the reported
version against converter-version when one is set, and resolves the
configured viewer launch and reload strategies.

Exits with status 1 when any check fails.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := config.FromContext(ctx)
			logger := logging.FromContext(ctx)

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer func() { _ = tw.Flush() }()

			var failed []error

			path, err := exec.LookPath(cfg.Converter)
			if err != nil {
				path = "not found"
			}

			_, _ = fmt.Fprintf(tw, "converter\t%s\t%s\n", cfg.Converter, path)

			inv := converter.New(cfg.Converter, converter.WithBaseArgs(cfg.BaseConverterArgs()...))

			v, err := inv.CheckVersion(ctx, cfg.ConverterVersion)
			switch {
			case err != nil:
				failed = append(failed, err)
				_, _ = fmt.Fprintf(tw, "version\tFAILED\t%v\n", err)
			case cfg.ConverterVersion != "":
				_, _ = fmt.Fprintf(tw, "version\t%s\tsatisfies %s\n", v, cfg.ConverterVersion)
			default:
				_, _ = fmt.Fprintf(tw, "version\t%s\t\n", v)
			}

			if _, err := viewer.FromRegistry(registry, cfg.Loader, cfg.Reloader, cfg.NewViewer, cfg.ViewerSettings(), logger); err != nil {
				failed = append(failed, err)
				_, _ = fmt.Fprintf(tw, "viewer\tFAILED\t%v\n", err)
			} else {
				_, _ = fmt.Fprintf(tw, "viewer\t%s\tloader=%s reloader=%s platform=%s\n",
					viewerDescription(cfg), cfg.Loader, cfg.Reloader, cfg.PlatformClass())
			}

			if len(failed) > 0 {
				return &ExitError{Code: 1, Err: errors.Join(failed...)}
			}

			return nil
		},
	}

	return cmd
}

func viewerDescription(cfg *config.Config) string {
	if cfg.Viewer != "" {
		return fmt.Sprintf("%q", cfg.Viewer)
	}

	if prefix := viewer.PlatformCommand(cfg.PlatformClass()); prefix != nil {
		return fmt.Sprintf("%q", prefix[0])
	}

	return "desktop opener"
}
