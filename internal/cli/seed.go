package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mrlokans/librapp/internal/database/borrowers"
	"github.com/mrlokans/librapp/internal/database/catalog"
	"github.com/mrlokans/librapp/internal/fixtures"
)

func newSeedCmd() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load branches, books, copies and borrowers from a YAML file",
		Long: `Load reference data from a YAML fixtures file.

Branches and books are upserted and copy counts overwritten, so the command
can be re-run after editing the file. Borrowers whose SSN is already
registered are left untouched.

Examples:
  librapp seed --file fixtures.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fx, err := fixtures.Load(file)
			if err != nil {
				return err
			}

			_, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			res, err := fx.Apply(cmd.Context(), catalog.NewRepository(db.DB), borrowers.NewRepository(db.DB))
			if err != nil {
				return fmt.Errorf("seed %s: %w", file, err)
			}

			out := cmd.OutOrStdout()
			ok(out, "%d branches", res.Branches)
			ok(out, "%d books", res.Books)
			ok(out, "%d copy records", res.Copies)
			ok(out, "%d borrowers added", res.Borrowers)
			if res.BorrowersExisting > 0 {
				fmt.Fprintln(out, color.YellowString("-"), fmt.Sprintf("%d borrowers already registered", res.BorrowersExisting))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "fixtures.yaml", "Fixtures file to load")
	return cmd
}
