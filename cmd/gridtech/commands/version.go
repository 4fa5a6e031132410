package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gridtech/portfolio/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gridtech %s\n", version.String())
		},
	}
}
