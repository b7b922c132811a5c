package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/panmk/internal/config"
	"github.com/hupe1980/panmk/internal/rc"
)

// Supported `panmk config` output formats.
const (
	formatText = "text"
	formatYAML = "yaml"
	formatJSON = "json"
)

type configReport struct {
	Config  *config.Config `json:"config" yaml:"config"`
	Layers  []layerReport  `json:"layers" yaml:"layers"`
	Unknown []string       `json:"unknownKeys,omitempty" yaml:"unknown-keys,omitempty"`
}

type layerReport struct {
	Path    string   `json:"path" yaml:"path"`
	Present bool     `json:"present" yaml:"present"`
	Keys    []string `json:"keys,omitempty" yaml:"keys,omitempty"`
}

func newConfigCommand() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration and the rc files it came from",
		Long: `Config prints the rc files panmk considered, in merge order, and the
configuration that results from rc files, PANMK_* environment variables, and
defaults. Later rc files override earlier ones.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			report := newConfigReport(config.FromContext(ctx), cascadeFromContext(ctx))

			return writeConfigReport(cmd.OutOrStdout(), report, format)
		},
	}

	cmd.Flags().StringVar(&format, "format", formatText, "output format: text, yaml, json")

	return cmd
}

func newConfigReport(cfg *config.Config, res *rc.Result) configReport {
	report := configReport{
		Config:  cfg,
		Unknown: config.UnknownKeys(res.Config),
	}

	for _, l := range res.Layers {
		lr := layerReport{Path: l.Path, Present: l.Present}
		if l.Present {
			lr.Keys = rc.Merge(l.Values).Keys()
		}

		report.Layers = append(report.Layers, lr)
	}

	return report
}

func writeConfigReport(w io.Writer, report configReport, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}

		_, err = fmt.Fprintln(w, string(data))

		return err

	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("marshaling config: %w", err)
		}

		return enc.Close()

	case formatText:
		return writeConfigText(w, report)

	default:
		return &ExitError{Code: 2, Err: fmt.Errorf("invalid format %q: must be one of text, yaml, json", format)}
	}
}

func writeConfigText(w io.Writer, report configReport) error {
	_, _ = fmt.Fprintln(w, "rc files:")

	if len(report.Layers) == 0 {
		_, _ = fmt.Fprintln(w, "  (none)")
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for _, l := range report.Layers {
		status := "absent"
		if l.Present {
			status = fmt.Sprintf("%d key(s)", len(l.Keys))
		}

		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", l.Path, status)
	}

	_ = tw.Flush()

	for _, k := range report.Unknown {
		_, _ = fmt.Fprintf(w, "  unknown key %q ignored\n", k)
	}

	// Key order and value rendering follow the yaml tags of config.Config.
	var node yaml.Node
	if err := node.Encode(report.Config); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	_, _ = fmt.Fprintln(w, "\nsettings:")

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	for i := 0; i+1 < len(node.Content); i += 2 {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", node.Content[i].Value, node.Content[i+1].Value)
	}

	return tw.Flush()
}
