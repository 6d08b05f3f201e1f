package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/artisan-market/api/internal/platform/auth"
)

func newSessionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage storefront session tokens",
	}
	cmd.AddCommand(newSessionIssueCmd(a))
	return cmd
}

func newSessionIssueCmd(a *app) *cobra.Command {
	var email, name, role string
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a signed session token for support and smoke tests",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.loadConfig(cmd.Context(), a.envFile)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if strings.TrimSpace(cfg.Auth.SessionSecret) == "" {
				return errors.New("API_AUTH_SESSION_SECRET is not configured")
			}
			verifier, err := auth.NewSessionVerifier(cfg.Auth.SessionSecret, auth.WithSessionTTL(cfg.Auth.SessionTokenTTL))
			if err != nil {
				return err
			}
			token, err := verifier.Issue(email, name, role)
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", auth.RoleUser, "role claim (user or admin)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}
