// Package app builds the object graph shared by the API server and the
// operator CLI from one configuration.
package app

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/config"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
	"github.com/josh-kwaku/grey-ledger/internal/handler"
	"github.com/josh-kwaku/grey-ledger/internal/idempotency"
	"github.com/josh-kwaku/grey-ledger/internal/middleware"
	"github.com/josh-kwaku/grey-ledger/internal/notify"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
	"github.com/josh-kwaku/grey-ledger/internal/server"
	"github.com/josh-kwaku/grey-ledger/internal/service"
	"github.com/josh-kwaku/grey-ledger/internal/service/ledger"
)

type App struct {
	DB      *sql.DB
	Handler http.Handler

	Ledger      *ledger.Service
	Customers   *service.CustomerService
	Accounts    *service.AccountService
	Fraud       *fraud.Service
	Idempotency *idempotency.Store
	Audit       *audit.Recorder

	Dispatcher *notify.Dispatcher
	Sweeper    *fraud.Sweeper
	Janitor    *idempotency.Janitor
	Rotator    *service.Rotator
}

func New(db *sql.DB, cfg *config.Config, logger *slog.Logger) (*App, error) {
	thresholds, err := policy.ParseThresholds(cfg.ApprovalThreshold, cfg.OpsManagerApprovalCeiling)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	pol := policy.Default(thresholds)

	blockSeverity := domain.Severity(cfg.FraudBlockSeverity)
	if !blockSeverity.IsValid() {
		return nil, fmt.Errorf("app.New: fraud block severity %q: %w", cfg.FraudBlockSeverity, domain.ErrInvalidRequest)
	}
	loc, err := time.LoadLocation(cfg.FraudTimezone)
	if err != nil {
		return nil, fmt.Errorf("app.New: fraud timezone: %w", err)
	}

	proxies, err := middleware.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	cipher, err := fieldcrypt.NewCipher(cfg.FieldEncryptionKeys, cfg.FieldEncryptionActiveVersion)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}
	hasher, err := fieldcrypt.NewHasher(cfg.SearchHashSecret)
	if err != nil {
		return nil, fmt.Errorf("app.New: %w", err)
	}

	accountRepo := repository.NewAccountRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	fraudRepo := repository.NewFraudRepository(db)
	idemRepo := repository.NewIdempotencyRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	outboxRepo := repository.NewNotificationRepository(db)
	txnRepo := repository.NewTransactionRepository(db)

	recorder := audit.NewRecorder(auditRepo)
	engine := fraud.NewEngine(fraudRepo, txnRepo, fraud.Options{BlockSeverity: blockSeverity, Location: loc})

	var sender notify.Sender = notify.NewLogSender(logger)
	if cfg.NotifyGatewayURL != "" {
		sender = notify.NewHTTPSender(cfg.NotifyGatewayURL)
	}

	a := &App{
		DB:          db,
		Ledger:      ledger.NewService(txnRepo, accountRepo, ledgerRepo, outboxRepo, engine, pol, recorder, db),
		Customers:   service.NewCustomerService(customerRepo, cipher, hasher, pol, recorder),
		Accounts:    service.NewAccountService(accountRepo, customerRepo, ledgerRepo, pol, recorder, db),
		Fraud:       fraud.NewService(fraudRepo, db, pol, recorder),
		Idempotency: idempotency.NewStore(idemRepo, db, idempotency.Options{TTL: cfg.IdempotencyTTL, Lease: cfg.IdempotencyLease}),
		Audit:       recorder,
	}
	a.Dispatcher = notify.NewDispatcher(outboxRepo, sender, db, logger, cfg.NotifyPollInterval, cfg.NotifyMaxAttempts)
	a.Sweeper = fraud.NewSweeper(engine, txnRepo, accountRepo, db, logger, cfg.FraudSweepInterval, cfg.FraudSweepLookback)
	a.Janitor = idempotency.NewJanitor(a.Idempotency, logger, cfg.IdempotencyPurgeInterval)
	a.Rotator = service.NewRotator(customerRepo, cipher, recorder, db, logger, cfg.KeyRotationBatch)

	a.Handler = server.Router(server.Handlers{
		Transactions: handler.NewTransactionHandler(a.Ledger),
		Customers:    handler.NewCustomerHandler(a.Customers),
		Accounts:     handler.NewAccountHandler(a.Accounts),
		Fraud:        handler.NewFraudHandler(a.Fraud),
		Audit:        handler.NewAuditHandler(audit.NewReader(auditRepo, pol)),
		Health:       handler.NewHealthHandler(db, recorder),
	}, server.Options{
		JWTSecret:      cfg.JWTSecret,
		TrustedProxies: proxies,
		Idempotency:    a.Idempotency,
	})

	return a, nil
}
