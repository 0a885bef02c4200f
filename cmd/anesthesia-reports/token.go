package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/renandw/anesthesiaReports-sub000/internal/config"
	"github.com/renandw/anesthesiaReports-sub000/internal/platform/auth"
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a token with AUTH_SIGNING_KEY",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			roles, _ := cmd.Flags().GetStringSlice("role")
			ttl, _ := cmd.Flags().GetDuration("ttl")
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.AuthSigningKey == "" {
				return fmt.Errorf("AUTH_SIGNING_KEY is required")
			}
			tok, err := auth.Issue(jwtConfig(cfg), subject, roles, ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Println(tok)
			return nil
		},
	}
	issueCmd.Flags().String("subject", "", "User id the token is issued to")
	issueCmd.Flags().StringSlice("role", []string{auth.RoleAnesthesiologist}, "Roles to grant")
	issueCmd.Flags().Duration("ttl", 12*time.Hour, "Token lifetime")

	cmd.AddCommand(issueCmd)
	return cmd
}
