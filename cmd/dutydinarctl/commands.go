package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/sudo-init-do/dutydinar/internal/config"
	"github.com/sudo-init-do/dutydinar/internal/db"
	"github.com/sudo-init-do/dutydinar/internal/logging"
	"github.com/sudo-init-do/dutydinar/internal/session"
)

var dbURL string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "dutydinarctl",
		Short:         "Operational tasks for the DutyDinar marketplace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&dbURL, "db", "", "Database connection URL (defaults to DATABASE_URL / DB_* settings)")

	root.AddCommand(newMigrateCmd(), newPromoteCmd(), newPurgeSessionsCmd())
	return root
}

// connect loads the config and opens a pool against --db or the configured
// database.
func connect(ctx context.Context) (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logging.Setup(cfg)
	dsn := cfg.DatabaseURL
	if dbURL != "" {
		dsn = dbURL
	}
	return db.Connect(ctx, dsn)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create any missing tables and indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			if err := db.EnsureSchema(cmd.Context(), pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
}

var userTypes = []string{"buyer", "seller", "admin"}

func validUserType(t string) bool {
	for _, u := range userTypes {
		if u == t {
			return true
		}
	}
	return false
}

func newPromoteCmd() *cobra.Command {
	var email, userType string
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Change the user type of an account",
		Example: `  dutydinarctl promote --email ops@dutydinar.com
  dutydinarctl promote --email acme@example.com --type seller`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			email = strings.ToLower(strings.TrimSpace(email))
			if email == "" {
				return fmt.Errorf("--email is required")
			}
			if !validUserType(userType) {
				return fmt.Errorf("--type must be one of: %s", strings.Join(userTypes, ", "))
			}

			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			tag, err := pool.Exec(cmd.Context(),
				`UPDATE users SET user_type = $1, updated_at = NOW() WHERE email = $2`, userType, email)
			if err != nil {
				return fmt.Errorf("update user: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return fmt.Errorf("no user found with email %s", email)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %s is now %s.\n", email, userType)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "Email of the account to change")
	cmd.Flags().StringVar(&userType, "type", "admin", "New user type (buyer, seller or admin)")
	return cmd
}

func newPurgeSessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "purge-sessions",
		Short: "Delete expired login sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			pool, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := session.PurgeExpired(cmd.Context(), pool)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d expired sessions removed\n", n)
			return nil
		},
	}
}
