package fraud

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

type sweepTxnRepo interface {
	List(ctx context.Context, f repository.TransactionFilter) ([]domain.Transaction, error)
}

type sweepAccountRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
}

type SweepReport struct {
	Scanned int
	Alerts  int
}

// Sweeper re-screens recent transactions against the current rule set, so a
// rule added today still flags yesterday's activity. It only raises alerts;
// balances and statuses are never touched.
type Sweeper struct {
	engine   *Engine
	txns     sweepTxnRepo
	accounts sweepAccountRepo
	db       *sql.DB
	logger   *slog.Logger
	interval time.Duration
	lookback time.Duration
	batch    int
}

func NewSweeper(engine *Engine, txns sweepTxnRepo, accounts sweepAccountRepo, db *sql.DB, logger *slog.Logger, interval, lookback time.Duration) *Sweeper {
	return &Sweeper{
		engine:   engine,
		txns:     txns,
		accounts: accounts,
		db:       db,
		logger:   logger,
		interval: interval,
		lookback: lookback,
		batch:    500,
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("fraud sweeper started", "interval", s.interval, "lookback", s.lookback)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("fraud sweeper stopped")
			return
		case <-ticker.C:
			report, err := s.RunOnce(ctx)
			if err != nil {
				s.logger.Error("fraud sweep failed", "error", err)
				continue
			}
			if report.Alerts > 0 {
				s.logger.Warn("fraud sweep raised alerts", "scanned", report.Scanned, "alerts", report.Alerts)
			}
		}
	}
}

// RunOnce screens every transaction inside the lookback window, a page at a
// time in (created_at, id) order.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	filter := repository.TransactionFilter{
		Statuses:     []domain.TransactionStatus{domain.TransactionStatusCompleted, domain.TransactionStatusPendingApproval},
		CreatedSince: time.Now().UTC().Add(-s.lookback),
		Limit:        s.batch,
	}

	for {
		txns, err := s.txns.List(ctx, filter)
		if err != nil {
			return report, fmt.Errorf("RunOnce: %w", err)
		}
		if len(txns) == 0 {
			return report, nil
		}

		for i := range txns {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			txn := &txns[i]
			report.Scanned++

			n, err := s.screen(ctx, txn)
			if err != nil {
				s.logger.Error("failed to screen transaction", "transaction_id", txn.ID, "error", err)
				continue
			}
			report.Alerts += n
		}

		last := txns[len(txns)-1]
		filter.After = &repository.TransactionCursor{CreatedAt: last.CreatedAt, ID: last.ID}
		if len(txns) < s.batch {
			return report, nil
		}
	}
}

func (s *Sweeper) screen(ctx context.Context, txn *domain.Transaction) (int, error) {
	acct, err := s.accounts.GetByID(ctx, txn.PrimaryAccountID())
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	verdict, err := s.engine.Evaluate(ctx, tx, txn, Subject{Account: acct, CustomerID: acct.CustomerID})
	if err != nil {
		return 0, err
	}
	created, err := s.engine.Record(ctx, tx, txn, acct.CustomerID, verdict)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(created), nil
}
