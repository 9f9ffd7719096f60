package ledger

import (
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

// AccountBalance is one account's balance after a posting. Account is the
// display form of its number, so it is not unique across accounts.
type AccountBalance struct {
	AccountID uuid.UUID
	Account   string
	Balance   int64
}

// Result is what callers see of a transaction. Account numbers are
// masked unless the caller may view PII.
type Result struct {
	TransactionID   uuid.UUID
	Type            domain.TransactionType
	Status          domain.TransactionStatus
	Amount          int64
	FromAccount     string
	ToAccount       string
	BalancesAfter   []AccountBalance
	RejectionReason *string
	FailureReason   *string
	ApprovedBy      *uuid.UUID
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

func (s *Service) project(actor domain.Actor, txn *domain.Transaction, accts map[uuid.UUID]*domain.Account, entries []domain.LedgerEntry) *Result {
	display := fieldcrypt.MaskAccountNumber
	if s.policy.Can(actor.Role, policy.OpViewPII) {
		display = func(n string) string { return n }
	}
	number := func(id uuid.UUID) string {
		if a, ok := accts[id]; ok {
			return display(a.AccountNumber)
		}
		return fieldcrypt.Unavailable
	}

	r := &Result{
		TransactionID:   txn.ID,
		Type:            txn.Type,
		Status:          txn.Status,
		Amount:          txn.Amount,
		RejectionReason: txn.RejectionReason,
		FailureReason:   txn.FailureReason,
		ApprovedBy:      txn.ApprovedBy,
		CreatedAt:       txn.CreatedAt,
		ProcessedAt:     txn.ProcessedAt,
	}
	if txn.FromAccountID != nil {
		r.FromAccount = number(*txn.FromAccountID)
	}
	if txn.ToAccountID != nil {
		r.ToAccount = number(*txn.ToAccountID)
	}

	if txn.Status == domain.TransactionStatusCompleted && len(entries) > 0 {
		r.BalancesAfter = make([]AccountBalance, 0, len(entries))
		for _, e := range entries {
			r.BalancesAfter = append(r.BalancesAfter, AccountBalance{
				AccountID: e.AccountID,
				Account:   number(e.AccountID),
				Balance:   e.BalanceAfter,
			})
		}
	}
	return r
}
