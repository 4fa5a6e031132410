// Package commands implements the gridtech CLI: the HTTP server and the operator jobs.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/gridtech/portfolio/internal/config"
)

// rootOptions are flags shared by every subcommand.
type rootOptions struct {
	env      string
	logLevel string
}

// NewRootCmd creates the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "gridtech",
		Short: "GridTech portfolio retrieval service",
		Long: `GridTech embeds portfolio records (technologies, pilots, market watchlist),
serves scoped semantic search over them, and grounds assistant replies in the results.

Configuration is read from config/<env>.yaml; .env.local and .env are loaded first.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.env, "env", config.GetEnv(), "Config environment (local, dev, prod)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		NewServeCmd(opts),
		NewEmbedCmd(opts),
		NewSearchCmd(opts),
		NewVersionCmd(),
	)
	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
