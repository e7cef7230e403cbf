package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/parley/internal/app"
	"github.com/vovakirdan/parley/internal/auth"
	"github.com/vovakirdan/parley/internal/store/sqlite"
)

func newUseraddCmd(configPath *string) *cobra.Command {
	var in auth.NewAccount

	cmd := &cobra.Command{
		Use:   "useradd",
		Short: "Create an identity in the account store",
		Long: `Create an identity directly in the account store. Use it to bootstrap the
first privileged identity; later ones can be created over the admin API.

A running server loads identities only at startup, so an identity added here
while it runs cannot use the chat channel until the server restarts. Use
POST /api/admin/identities against a live server instead.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			st, err := sqlite.New(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("init store: %w", err)
			}
			defer st.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			acct, err := app.NewAuthService(&cfg, st).Bootstrap(ctx, in)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (privileged=%t)\n", acct.Username, acct.IsPrivileged)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in.Username, "username", "u", "", "identity id (letters, digits, '.', '-')")
	cmd.Flags().StringVarP(&in.Password, "password", "p", "", "password, at least 6 characters")
	cmd.Flags().StringVar(&in.DisplayName, "display-name", "", "display name (defaults to the username)")
	cmd.Flags().BoolVar(&in.IsPrivileged, "admin", false, "grant the privilege to create identities")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
