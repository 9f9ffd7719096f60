package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

type CreateTransactionCommand struct {
	Type          domain.TransactionType
	FromAccountID *uuid.UUID
	ToAccountID   *uuid.UUID
	Amount        int64
	Description   string
	// OriginCountry is the ISO 3166 alpha-2 code of where the request came from, if known.
	OriginCountry string
}

// CreateTransaction records a money movement. Depending on the actor's
// limits and the fraud verdict it completes immediately, waits for a
// checker in pending_approval, or is refused. Every call creates a new
// transaction; request deduplication happens in front of this service.
func (s *Service) CreateTransaction(ctx context.Context, cmd CreateTransactionCommand, actor domain.Actor) (*Result, error) {
	log := logging.FromContext(ctx)

	if err := validateCommand(&cmd); err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}

	now := time.Now().UTC()
	txn := &domain.Transaction{
		ID:            uuid.New(),
		Type:          cmd.Type,
		FromAccountID: cmd.FromAccountID,
		ToAccountID:   cmd.ToAccountID,
		Amount:        cmd.Amount,
		Description:   cmd.Description,
		CreatedBy:     actor.ID,
		CreatedByRole: actor.Role,
		CreatedAt:     now,
	}
	if cmd.OriginCountry != "" {
		txn.OriginCountry = &cmd.OriginCountry
	}

	out, err := s.executeCreate(ctx, txn, actor)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: %w", err)
	}

	s.afterCreate(ctx, txn, actor, out)

	if out.verdict.Block {
		return nil, fmt.Errorf("CreateTransaction: %w", &domain.FraudBlockedError{TransactionID: txn.ID, Rules: out.verdict.Blockers})
	}

	log.Info("transaction created",
		"transaction_id", txn.ID,
		"type", txn.Type,
		"status", txn.Status,
		"amount", txn.Amount,
		"actor_role", actor.Role,
	)
	return s.project(actor, txn, out.accounts, out.entries), nil
}

type createOutcome struct {
	verdict  *fraud.Verdict
	customer uuid.UUID
	accounts map[uuid.UUID]*domain.Account
	entries  []domain.LedgerEntry
}

func (s *Service) executeCreate(ctx context.Context, txn *domain.Transaction, actor domain.Actor) (*createOutcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("executeCreate: begin tx: %w", err)
	}
	defer tx.Rollback()

	locked, err := lockAccountsInOrder(ctx, tx, s.accounts, txn.AccountIDs()...)
	if err != nil {
		return nil, fmt.Errorf("executeCreate: %w", err)
	}
	if txn.FromAccountID != nil {
		if err := verifyAccountActive(locked[*txn.FromAccountID], "source"); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
	}
	if txn.ToAccountID != nil {
		if err := verifyAccountActive(locked[*txn.ToAccountID], "destination"); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
	}
	if err := verifyFunds(txn, locked); err != nil {
		return nil, fmt.Errorf("executeCreate: %w", err)
	}

	primary := locked[txn.PrimaryAccountID()]
	verdict, err := s.fraud.Evaluate(ctx, tx, txn, fraud.Subject{Account: primary, CustomerID: primary.CustomerID})
	if err != nil {
		return nil, fmt.Errorf("executeCreate: %w", err)
	}
	out := &createOutcome{verdict: verdict, customer: primary.CustomerID, accounts: locked}

	switch {
	case verdict.Block:
		reason := domain.FailureReasonFraudBlocked
		txn.Status = domain.TransactionStatusFailed
		txn.FailureReason = &reason
		if err := s.transactions.Create(ctx, tx, txn); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
		if _, err := s.fraud.Record(ctx, tx, txn, primary.CustomerID, verdict); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}

	case s.policy.RequiresApproval(actor.Role, txn.Amount) || verdict.RequireApproval:
		txn.Status = domain.TransactionStatusPendingApproval
		if err := s.transactions.Create(ctx, tx, txn); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
		if err := s.notify(ctx, tx, domain.NotificationApprovalRequested, txn, locked); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}

	default:
		now := time.Now().UTC()
		txn.Status = domain.TransactionStatusCompleted
		txn.ProcessedAt = &now
		if err := s.transactions.Create(ctx, tx, txn); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
		entries, err := s.post(ctx, tx, txn, locked, now)
		if err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
		out.entries = entries
		if err := s.notify(ctx, tx, domain.NotificationTransactionCompleted, txn, locked); err != nil {
			return nil, fmt.Errorf("executeCreate: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("executeCreate: commit: %w", err)
	}
	return out, nil
}

// afterCreate runs the side effects that must not undo a committed
// transaction: non-blocking alerts and the audit entry. Both are best
// effort and detached from the caller's cancellation.
func (s *Service) afterCreate(ctx context.Context, txn *domain.Transaction, actor domain.Actor, out *createOutcome) {
	detached, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if !out.verdict.Block && len(out.verdict.Matches) > 0 {
		if _, err := s.recordAlerts(detached, txn, out.customer, out.verdict); err != nil {
			logging.FromContext(ctx).Error("failed to record fraud alerts",
				"transaction_id", txn.ID,
				"error", err,
			)
		}
	}

	action := domain.AuditActionCreate
	if out.verdict.Block {
		action = domain.AuditActionBlock
	}
	s.audit.Record(detached, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: "transaction",
		EntityID:   txn.ID.String(),
		Repr:       fmt.Sprintf("%s %s", txn.Type, domain.FormatAmount(txn.Amount)),
		Changes:    audit.Created(transactionFields(txn)),
	})
}

func (s *Service) recordAlerts(ctx context.Context, txn *domain.Transaction, customerID uuid.UUID, v *fraud.Verdict) ([]domain.FraudAlert, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("recordAlerts: begin tx: %w", err)
	}
	defer tx.Rollback()

	alerts, err := s.fraud.Record(ctx, tx, txn, customerID, v)
	if err != nil {
		return nil, fmt.Errorf("recordAlerts: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("recordAlerts: commit: %w", err)
	}
	return alerts, nil
}

const sideEffectTimeout = 5 * time.Second

func transactionFields(t *domain.Transaction) map[string]any {
	m := map[string]any{
		"type":        t.Type,
		"status":      t.Status,
		"amount":      domain.FormatAmount(t.Amount),
		"description": t.Description,
	}
	if t.FromAccountID != nil {
		m["from_account_id"] = t.FromAccountID.String()
	}
	if t.ToAccountID != nil {
		m["to_account_id"] = t.ToAccountID.String()
	}
	if t.FailureReason != nil {
		m["failure_reason"] = *t.FailureReason
	}
	return m
}
