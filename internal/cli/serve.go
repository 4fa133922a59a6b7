package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/entrypoint"
)

func newServeCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(version)
		},
	}
}

func runServe(version string) error {
	return entrypoint.Run(config.NewConfig(), version)
}
