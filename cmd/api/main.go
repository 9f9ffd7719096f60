package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/josh-kwaku/grey-ledger/internal/app"
	"github.com/josh-kwaku/grey-ledger/internal/config"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
	"github.com/josh-kwaku/grey-ledger/internal/server"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("grey-ledger-api", cfg.LogLevel, cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("api exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("api stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if cfg.AutoMigrate {
		if err := repository.Migrate(cfg.DatabaseURL); err != nil {
			return err
		}
		slog.Info("migrations applied")
	}

	db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
		ConnectAttempts:  cfg.DBConnectAttempts,
	})
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(db, cfg, logger)
	if err != nil {
		return err
	}

	if cfg.FraudRulesFile != "" {
		rules, err := fraud.LoadCatalog(cfg.FraudRulesFile)
		if err != nil {
			return err
		}
		n, err := a.Fraud.ImportRules(ctx, domain.SystemActor, rules, fraud.ImportOptions{})
		if err != nil {
			return err
		}
		slog.Info("fraud rule catalogue loaded", "file", cfg.FraudRulesFile, "rules", n)
	}

	srv := server.New(cfg.Port, a.Handler)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("server started", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { a.Dispatcher.Start(gctx); return nil })
	g.Go(func() error { a.Sweeper.Start(gctx); return nil })
	g.Go(func() error { a.Janitor.Start(gctx); return nil })

	return g.Wait()
}
