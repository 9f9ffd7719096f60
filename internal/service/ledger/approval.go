package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fraud"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

// Approve is the checker's sign-off on a pending transaction. The
// transaction row is locked before the accounts, so two concurrent
// approvals serialize and the loser sees a terminal status.
func (s *Service) Approve(ctx context.Context, txnID uuid.UUID, approver domain.Actor) (*Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Approve: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.transactions.GetForUpdate(ctx, tx, txnID)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if txn.Status != domain.TransactionStatusPendingApproval {
		return nil, fmt.Errorf("Approve: transaction is %s: %w", txn.Status, domain.ErrInvalidState)
	}
	if txn.CreatedBy == approver.ID {
		return nil, fmt.Errorf("Approve: %w", domain.DenyPermission("cannot approve their own transaction"))
	}
	if !s.policy.Allowed(approver.Role, policy.OpApprove, txn.Amount) {
		return nil, fmt.Errorf("Approve: %w", domain.DenyPermission(
			fmt.Sprintf("%s cannot approve %s", approver.Role, domain.FormatAmount(txn.Amount))))
	}

	locked, err := lockAccountsInOrder(ctx, tx, s.accounts, txn.AccountIDs()...)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	for _, acct := range locked {
		if err := verifyAccountActive(acct, "account"); err != nil {
			return nil, fmt.Errorf("Approve: %w", err)
		}
	}
	// Funds are checked again here: the balance may have moved since the maker
	// submitted. A shortfall leaves the transaction pending.
	if err := verifyFunds(txn, locked); err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	primary := locked[txn.PrimaryAccountID()]
	verdict, err := s.fraud.Evaluate(ctx, tx, txn, fraud.Subject{Account: primary, CustomerID: primary.CustomerID})
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if verdict.Block {
		return nil, s.blockAtApproval(ctx, tx, txn, approver, primary.CustomerID, verdict, locked)
	}

	now := time.Now().UTC()
	entries, err := s.post(ctx, tx, txn, locked, now)
	if err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	txn.Status = domain.TransactionStatusCompleted
	txn.ApprovedBy = &approver.ID
	txn.ApprovedAt = &now
	txn.ProcessedAt = &now
	if err := s.transactions.Resolve(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}
	if err := s.notify(ctx, tx, domain.NotificationTransactionCompleted, txn, locked); err != nil {
		return nil, fmt.Errorf("Approve: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Approve: commit: %w", err)
	}

	s.recordResolution(ctx, txn, approver, domain.AuditActionApprove)
	logging.FromContext(ctx).Info("transaction approved",
		"transaction_id", txn.ID,
		"approved_by", approver.ID,
		"amount", txn.Amount,
	)
	return s.project(approver, txn, locked, entries), nil
}

// blockAtApproval rejects a pending transaction that now trips a blocking
// rule. The rejection and its alerts commit even though the call fails.
func (s *Service) blockAtApproval(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, approver domain.Actor, customerID uuid.UUID, verdict *fraud.Verdict, locked map[uuid.UUID]*domain.Account) error {
	now := time.Now().UTC()
	reason := domain.FailureReasonFraudBlocked
	txn.Status = domain.TransactionStatusRejected
	txn.RejectionReason = &reason
	txn.FailureReason = &reason
	txn.ProcessedAt = &now

	if err := s.transactions.Resolve(ctx, tx, txn); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if _, err := s.fraud.Record(ctx, tx, txn, customerID, verdict); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if err := s.notify(ctx, tx, domain.NotificationTransactionRejected, txn, locked); err != nil {
		return fmt.Errorf("Approve: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("Approve: commit: %w", err)
	}

	s.recordResolution(ctx, txn, approver, domain.AuditActionBlock)
	logging.FromContext(ctx).Warn("pending transaction blocked at approval",
		"transaction_id", txn.ID,
		"rules", verdict.Blockers,
	)
	return fmt.Errorf("Approve: %w", &domain.FraudBlockedError{TransactionID: txn.ID, Rules: verdict.Blockers})
}

// Reject closes a pending transaction without moving money. Makers may
// withdraw their own submissions, so there is no self-check here.
func (s *Service) Reject(ctx context.Context, txnID uuid.UUID, approver domain.Actor, reason string) (*Result, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, fmt.Errorf("Reject: %w", domain.ErrRejectionReasonEmpty)
	}
	if !s.policy.Can(approver.Role, policy.OpReject) {
		return nil, fmt.Errorf("Reject: %w", domain.DenyPermission(fmt.Sprintf("%s cannot reject transactions", approver.Role)))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Reject: begin tx: %w", err)
	}
	defer tx.Rollback()

	txn, err := s.transactions.GetForUpdate(ctx, tx, txnID)
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}
	if txn.Status != domain.TransactionStatusPendingApproval {
		return nil, fmt.Errorf("Reject: transaction is %s: %w", txn.Status, domain.ErrInvalidState)
	}

	accts, err := s.accounts.GetByIDs(ctx, txn.AccountIDs())
	if err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}

	now := time.Now().UTC()
	txn.Status = domain.TransactionStatusRejected
	txn.ApprovedBy = &approver.ID
	txn.ApprovedAt = &now
	txn.RejectionReason = &reason
	txn.ProcessedAt = &now
	if err := s.transactions.Resolve(ctx, tx, txn); err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}
	if err := s.notify(ctx, tx, domain.NotificationTransactionRejected, txn, accts); err != nil {
		return nil, fmt.Errorf("Reject: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reject: commit: %w", err)
	}

	s.recordResolution(ctx, txn, approver, domain.AuditActionReject)
	return s.project(approver, txn, accts, nil), nil
}

func (s *Service) recordResolution(ctx context.Context, txn *domain.Transaction, actor domain.Actor, action domain.AuditAction) {
	after := map[string]any{"status": txn.Status}
	if txn.ApprovedBy != nil {
		after["approved_by"] = txn.ApprovedBy.String()
	}
	if txn.RejectionReason != nil {
		after["rejection_reason"] = *txn.RejectionReason
	}
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     action,
		EntityType: "transaction",
		EntityID:   txn.ID.String(),
		Repr:       fmt.Sprintf("%s %s", txn.Type, domain.FormatAmount(txn.Amount)),
		Changes:    audit.Diff(map[string]any{"status": domain.TransactionStatusPendingApproval}, after),
	})
}
