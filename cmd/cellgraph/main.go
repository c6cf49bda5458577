package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vango-dev/cellgraph/internal/config"
	"github.com/vango-dev/cellgraph/internal/errors"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		errors.Print(os.Stderr, err)
		os.Exit(1)
	}
}

// rootOptions holds persistent flags shared by subcommands.
type rootOptions struct {
	configPath string
	noColor    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "cellgraph",
		Short: "Reactive cells and keyed list reconciliation",
		Long: `cellgraph demonstrates a fine-grained reactive cell graph and a
keyed-sequence reconciler.

  • serve  streams a reactive list to browsers as reconcile ops
  • diff   prints the minimal insert/move plan between two sequences
  • bench  times flushes and reconciliation`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if opts.noColor {
				errors.DisableColors()
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to cellgraph.json (default: nearest in the working directory or its parents)")
	rootCmd.PersistentFlags().BoolVar(&opts.noColor, "no-color", false, "Disable colored error output")

	rootCmd.AddCommand(
		serveCmd(opts),
		diffCmd(),
		benchCmd(opts),
		versionCmd(),
	)

	return rootCmd
}

// loadConfig resolves and validates the configuration.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Resolve(o.configPath, ".")
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// success prints a success message.
func success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}
