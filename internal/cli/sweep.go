package cli

import (
	"github.com/spf13/cobra"

	"github.com/mrlokans/librapp/internal/circulation"
	"github.com/mrlokans/librapp/internal/database/loans"
	"github.com/mrlokans/librapp/internal/entrypoint"
)

func newSweepFinesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-fines",
		Short: "Refresh the fines of every overdue loan once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			log, err := entrypoint.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			engine := circulation.NewEngine(loans.NewRepository(db.DB),
				circulation.WithPolicy(entrypoint.PolicyFrom(cfg.Loans)),
				circulation.WithLogger(log),
			)
			n, err := engine.SweepOverdue(cmd.Context())
			if err != nil {
				return err
			}
			ok(cmd.OutOrStdout(), "refreshed fines on %d overdue loans", n)
			return nil
		},
	}
}
