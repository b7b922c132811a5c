package cli

import (
	"context"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type passthroughKey struct{}

// splitPassthrough separates the arguments panmk understands from those it
// forwards to the converter. Flags known to cmd stay, together with the value
// token of value-taking flags. Unknown flag tokens and everything after "--"
// are forwarded verbatim and in order. When the first positional argument
// names a subcommand nothing is split.
func splitPassthrough(cmd *cobra.Command, args []string) (own, extra []string) {
	cmd.InitDefaultHelpFlag()
	cmd.InitDefaultVersionFlag()

	positional := false

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch {
		case arg == "--":
			return own, append(extra, args[i+1:]...)

		case arg == "-" || !strings.HasPrefix(arg, "-"):
			if !positional && isSubcommand(cmd, arg) {
				return args, nil
			}

			positional = true
			own = append(own, arg)

		case strings.HasPrefix(arg, "--"):
			name, _, inline := strings.Cut(arg[2:], "=")

			f := lookupFlag(cmd, name)
			if f == nil {
				extra = append(extra, arg)
				continue
			}

			own = append(own, arg)

			if !inline && takesValue(f) && i+1 < len(args) {
				i++
				own = append(own, args[i])
			}

		default:
			consumed, ok := shorthandCluster(cmd, arg[1:])
			if !ok {
				extra = append(extra, arg)
				continue
			}

			own = append(own, arg)

			if consumed && i+1 < len(args) {
				i++
				own = append(own, args[i])
			}
		}
	}

	return own, extra
}

// shorthandCluster reports whether every letter of a cluster such as "pvc"
// is a known shorthand, and whether its last flag takes the next token as
// value. A value-taking shorthand ends the cluster; the remaining letters are
// its inline value.
func shorthandCluster(cmd *cobra.Command, cluster string) (consumesNext, ok bool) {
	for j := 0; j < len(cluster); j++ {
		f := lookupShorthand(cmd, cluster[j:j+1])
		if f == nil {
			return false, false
		}

		if takesValue(f) {
			rest := cluster[j+1:]
			return rest == "", true
		}
	}

	return false, true
}

func takesValue(f *pflag.Flag) bool {
	return f.NoOptDefVal == ""
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f
	}

	return cmd.PersistentFlags().Lookup(name)
}

func lookupShorthand(cmd *cobra.Command, name string) *pflag.Flag {
	if f := cmd.Flags().ShorthandLookup(name); f != nil {
		return f
	}

	return cmd.PersistentFlags().ShorthandLookup(name)
}

func isSubcommand(cmd *cobra.Command, name string) bool {
	switch name {
	case "help", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
		return true
	}

	for _, c := range cmd.Commands() {
		if c.Name() == name || c.HasAlias(name) {
			return true
		}
	}

	return false
}

func withPassthrough(ctx context.Context, args []string) context.Context {
	return context.WithValue(ctx, passthroughKey{}, args)
}

func passthroughFromContext(ctx context.Context) []string {
	args, _ := ctx.Value(passthroughKey{}).([]string)
	return args
}
