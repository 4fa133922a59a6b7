// Package cli defines the librapp command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mrlokans/librapp/internal/config"
	"github.com/mrlokans/librapp/internal/database"
)

var flagNoColor bool

// NewRootCommand builds the command tree. Running it without a subcommand
// starts the server.
func NewRootCommand(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "librapp",
		Short: "Library circulation service",
		Long: `librapp tracks book loans and overdue fines across library branches.

Configuration is read from the environment (DATABASE_PATH, AUTH_MODE, ...).
Run 'librapp' with no arguments to start the HTTP server.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagNoColor {
				color.NoColor = true
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(version)
		},
	}

	root.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		newServeCmd(version),
		newSeedCmd(),
		newSweepFinesCmd(),
		newCreateUserCmd(),
	)
	return root
}

// Execute is the entry point called from main.
func Execute(version string) {
	if err := NewRootCommand(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

// openDatabase loads and validates the configuration and opens the database.
func openDatabase() (*config.Config, *database.Database, error) {
	cfg := config.NewConfig()
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}
	db, err := database.NewDatabase(cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	return cfg, db, nil
}

func ok(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, color.GreenString("✓"), fmt.Sprintf(format, args...))
}
