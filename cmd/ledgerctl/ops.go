package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/grey-ledger/internal/app"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage the fraud rule catalogue",
	}

	var applyActive bool
	importCmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Upsert fraud rules from a YAML, JSON or TOML catalogue",
		Long: `Upsert fraud rules by name. Every rule is validated first; one bad
entry rejects the whole file. Trigger and false-positive counters of
existing rules are kept. Existing rules keep their activation state unless
--apply-active is given.

Examples:
  ledgerctl rules import rules.yaml
  ledgerctl rules import --apply-active rules.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := fraud.LoadCatalog(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Fraud.ImportRules(cmd.Context(), domain.SystemActor, rules, fraud.ImportOptions{ApplyActive: applyActive})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "imported %d rules\n", n)
				return nil
			})
		},
	}

	importCmd.Flags().BoolVar(&applyActive, "apply-active", false, "overwrite is_active of existing rules from the file")
	cmd.AddCommand(importCmd)
	return cmd
}

func rotateKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rotate-keys",
		Short: "Re-encrypt customer PII under the active key version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Rotator.Rotate(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "active version %d: scanned %d, rotated %d, failed %d\n",
					report.ActiveVersion, report.Scanned, report.Rotated, len(report.Failed))
				for _, f := range report.Failed {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %v\n", f.CustomerID, f.Err)
				}
				if len(report.Failed) > 0 {
					return fmt.Errorf("%d records could not be rotated", len(report.Failed))
				}
				return nil
			})
		},
	}
}

func fraudSweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fraud-sweep",
		Short: "Re-screen recent transactions against the active rules once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				report, err := a.Sweeper.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scanned %d transactions, raised %d alerts\n", report.Scanned, report.Alerts)
				return nil
			})
		},
	}
}

func idempotencyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idempotency",
		Short: "Maintain the idempotency key store",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete expired idempotency keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app.App) error {
				n, err := a.Idempotency.Purge(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "purged %d keys\n", n)
				return nil
			})
		},
	})
	return cmd
}
