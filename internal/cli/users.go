package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrlokans/librapp/internal/auth"
	"github.com/mrlokans/librapp/internal/database/users"
	"github.com/mrlokans/librapp/internal/entities"
)

const passwordEnv = "LIBRAPP_PASSWORD"

func newCreateUserCmd() *cobra.Command {
	var (
		username string
		email    string
		role     string
		password string
		token    bool
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff account",
		Long: `Create an admin or librarian account for AUTH_MODE=local.

The password is read from --password or, if omitted, from $` + passwordEnv + `.

Examples:
  librapp create-user --username admin --email admin@example.org --role admin
  librapp create-user --username desk1 --email desk1@example.org --token`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(passwordEnv)
			}
			if password == "" {
				return fmt.Errorf("password required: pass --password or set %s", passwordEnv)
			}

			cfg, db, err := openDatabase()
			if err != nil {
				return err
			}
			defer db.Close()

			svc := auth.NewService(users.NewRepository(db.DB), cfg.Auth)
			user, err := svc.CreateUser(username, email, password, entities.UserRole(role))
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			out := cmd.OutOrStdout()
			ok(out, "created %s %q (id %d)", user.Role, user.Username, user.ID)

			if token {
				plain, err := svc.GenerateToken(user.ID)
				if err != nil {
					return fmt.Errorf("generate token: %w", err)
				}
				ok(out, "API token (shown once): %s", plain)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "Login name")
	cmd.Flags().StringVar(&email, "email", "", "Email address")
	cmd.Flags().StringVar(&role, "role", string(entities.UserRoleLibrarian), "admin or librarian")
	cmd.Flags().StringVar(&password, "password", "", "Password (default $"+passwordEnv+")")
	cmd.Flags().BoolVar(&token, "token", false, "Also issue an API bearer token")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
