package cli

import (
	"github.com/spf13/cobra"

	"github.com/hupe1980/panmk/internal/viewer"
)

func newCompletionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion <shell>",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for panmk.

  Bash:        source <(panmk completion bash)
  Zsh:         panmk completion zsh > "${fpath[1]}/_panmk"
  Fish:        panmk completion fish > ~/.config/fish/completions/panmk.fish
  PowerShell:  panmk completion powershell | Out-String | Invoke-Expression

Flag values with a fixed set of choices (log level, platform, viewer
strategies) complete as well.`,
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Args:              cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs:         []string{"bash", "zsh", "fish", "powershell"},
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()

			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(w, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(w)
			case "fish":
				return cmd.Root().GenFishCompletion(w, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(w)
			}

			return nil
		},
	}

	return cmd
}

// registerCompletions wires value completion for root flags. Strategy names
// come from the registry, so registered extensions complete too.
func registerCompletions(cmd *cobra.Command, registry *viewer.Registry) {
	fixed := func(values ...string) cobra.CompletionFunc {
		return cobra.FixedCompletions(values, cobra.ShellCompDirectiveNoFileComp)
	}

	_ = cmd.RegisterFlagCompletionFunc("log-level", fixed("debug", "info", "warn", "error"))
	_ = cmd.RegisterFlagCompletionFunc("log-format", fixed("text", "json"))
	_ = cmd.RegisterFlagCompletionFunc("platform", fixed("posix", "windows", "cygwin", "darwin"))
	_ = cmd.RegisterFlagCompletionFunc("reload-signal", fixed("HUP", "USR1", "USR2"))

	_ = cmd.RegisterFlagCompletionFunc("loader", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return registry.Launchers(), cobra.ShellCompDirectiveNoFileComp
	})

	_ = cmd.RegisterFlagCompletionFunc("reloader", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return registry.Reloaders(), cobra.ShellCompDirectiveNoFileComp
	})

	cmd.ValidArgsFunction = func(_ *cobra.Command, args []string, _ string) ([]string, cobra.ShellCompDirective) {
		if len(args) > 0 {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}

		return []string{"md", "markdown", "rst", "org", "tex", "txt", "docx", "html"}, cobra.ShellCompDirectiveFilterFileExt
	}
}
