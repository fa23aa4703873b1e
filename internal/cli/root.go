// Package cli implements the dutopia command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/sganis/dutopia/pkg/logging"
)

var (
	flagDebug bool
	flagHuman bool
)

var rootCmd = &cobra.Command{
	Use:   "dutopia",
	Short: "Filesystem usage statistics pipeline",
	Long: `dutopia turns a filesystem tree into per-folder, per-user,
per-age usage statistics and serves them over HTTP.

The stages run as subcommands: scan walks the tree into a raw
artifact, sum folds it into aggregated rows, serve loads the rows
into an in-memory tree and answers subtree queries.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(flagDebug, flagHuman)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagHuman, "human", false, "human-readable log output")
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}
