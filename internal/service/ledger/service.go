// Package ledger moves money between accounts under maker-checker control.
package ledger

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

type transactionRepo interface {
	Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error)
	Resolve(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error
}

type accountRepo interface {
	GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Account, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error
}

type ledgerRepo interface {
	Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error
	GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error)
}

type outboxRepo interface {
	Enqueue(ctx context.Context, tx *sql.Tx, n *domain.Notification) error
}

type screener interface {
	Evaluate(ctx context.Context, q repository.Querier, txn *domain.Transaction, subj fraud.Subject) (*fraud.Verdict, error)
	Record(ctx context.Context, q repository.Querier, txn *domain.Transaction, customerID uuid.UUID, v *fraud.Verdict) ([]domain.FraudAlert, error)
}

type auditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}

type Service struct {
	transactions transactionRepo
	accounts     accountRepo
	ledger       ledgerRepo
	outbox       outboxRepo
	fraud        screener
	policy       *policy.Policy
	audit        auditRecorder
	db           *sql.DB
}

func NewService(
	transactions transactionRepo,
	accounts accountRepo,
	ledger ledgerRepo,
	outbox outboxRepo,
	fraudEngine screener,
	pol *policy.Policy,
	rec auditRecorder,
	db *sql.DB,
) *Service {
	return &Service{
		transactions: transactions,
		accounts:     accounts,
		ledger:       ledger,
		outbox:       outbox,
		fraud:        fraudEngine,
		policy:       pol,
		audit:        rec,
		db:           db,
	}
}

// Get returns the projection of a transaction as seen by actor.
func (s *Service) Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*Result, error) {
	txn, err := s.transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	accts, err := s.accounts.GetByIDs(ctx, txn.AccountIDs())
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}

	var entries []domain.LedgerEntry
	if txn.Status == domain.TransactionStatusCompleted {
		entries, err = s.ledger.GetByTransactionID(ctx, txn.ID)
		if err != nil {
			return nil, fmt.Errorf("Get: %w", err)
		}
	}

	return s.project(actor, txn, accts, entries), nil
}
