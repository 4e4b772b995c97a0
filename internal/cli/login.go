package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/duetlog/duet/backend/internal/config"
	"github.com/duetlog/duet/backend/internal/crypto"
)

// NewLoginCommand creates the login command: store the session token
// encrypted in the data directory.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Store the session token for later commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "" {
				return fmt.Errorf("--token is required")
			}

			cfg, err := config.Load(rootOpts.ConfigPath)
			if err != nil {
				return err
			}
			initLogging(cfg.LogLevel, rootOpts.Verbose)

			if err := crypto.NewTokenStore(cfg.DataDir).Save(token); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "session token stored")
			return nil
		},
	}

	cmd.Flags().StringVar(&token, "token", "", "session token (required)")
	return cmd
}

// NewLogoutCommand creates the logout command: delete the stored token and
// drop cached snapshots.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Delete the stored session token and clear cached snapshots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := crypto.NewTokenStore(a.cfg.DataDir).Delete(); err != nil {
				return err
			}
			if err := a.cache.Clear(context.Background()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}
