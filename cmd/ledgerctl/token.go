package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/config"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

var (
	tokenUserID string
	tokenRole   string
	tokenTTL    time.Duration
)

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage staff bearer tokens",
	}

	issueCmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign a bearer token for a staff member",
		Long: `Sign a bearer token carrying a user id and a role with JWT_SECRET.

Examples:
  ledgerctl token issue --role teller
  ledgerctl token issue --user 6f1c... --role manager --ttl 8h`,
		RunE: func(cmd *cobra.Command, args []string) error {
			role, err := domain.ParseRole(tokenRole)
			if err != nil {
				return err
			}
			userID := uuid.New()
			if tokenUserID != "" {
				userID, err = uuid.Parse(tokenUserID)
				if err != nil {
					return fmt.Errorf("invalid --user: %w", err)
				}
			}
			secret, err := config.LoadJWTSecret()
			if err != nil {
				return err
			}
			token, err := auth.GenerateToken(userID, role, secret, tokenTTL)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	issueCmd.Flags().StringVar(&tokenUserID, "user", "", "user id (random when empty)")
	issueCmd.Flags().StringVar(&tokenRole, "role", "", "role: teller, operations_manager, manager, compliance_officer, auditor, customer")
	issueCmd.Flags().DurationVar(&tokenTTL, "ttl", 8*time.Hour, "token lifetime")
	_ = issueCmd.MarkFlagRequired("role")

	cmd.AddCommand(issueCmd)
	return cmd
}
