// Command ledgerctl runs operator tasks against the ledger database: schema
// migrations, fraud rule imports, key rotation and one-off worker passes.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/josh-kwaku/grey-ledger/internal/app"
	"github.com/josh-kwaku/grey-ledger/internal/config"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for the grey ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(rulesCmd())
	rootCmd.AddCommand(rotateKeysCmd())
	rootCmd.AddCommand(fraudSweepCmd())
	rootCmd.AddCommand(idempotencyCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp loads the full configuration, connects and hands the wired
// application to fn. The pool is closed when fn returns.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.Init("ledgerctl", cfg.LogLevel, cfg.AppEnv)

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		ConnectAttempts:  1,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(db, cfg, logger)
	if err != nil {
		return err
	}
	return fn(a)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := config.LoadDatabaseURL()
			if err != nil {
				return err
			}
			if err := repository.Migrate(dsn); err != nil {
				return err
			}
			slog.Info("migrations applied")
			return nil
		},
	}
}
