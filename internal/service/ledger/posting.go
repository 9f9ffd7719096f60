package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
)

// lockAccountsInOrder takes row locks in ascending id order so two
// transactions touching the same pair of accounts can never deadlock.
func lockAccountsInOrder(ctx context.Context, tx *sql.Tx, accounts accountRepo, ids ...uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	sorted := make([]uuid.UUID, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].String() < sorted[j].String()
	})

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for _, id := range sorted {
		acct, err := accounts.GetForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, fmt.Errorf("lockAccountsInOrder: account %s: %w", id, domain.ErrInvalidAccountState)
			}
			return nil, fmt.Errorf("lockAccountsInOrder: %w", err)
		}
		result[id] = acct
	}
	return result, nil
}

// post writes the debit and credit legs of txn and moves the balances. The
// locked map is updated in place so callers can read the new balances.
func (s *Service) post(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, locked map[uuid.UUID]*domain.Account, at time.Time) ([]domain.LedgerEntry, error) {
	var entries []domain.LedgerEntry

	if txn.FromAccountID != nil {
		e, err := s.applyLeg(ctx, tx, txn, locked[*txn.FromAccountID], domain.EntryTypeDebit, at)
		if err != nil {
			return nil, fmt.Errorf("post: debit: %w", err)
		}
		entries = append(entries, *e)
	}
	if txn.ToAccountID != nil {
		e, err := s.applyLeg(ctx, tx, txn, locked[*txn.ToAccountID], domain.EntryTypeCredit, at)
		if err != nil {
			return nil, fmt.Errorf("post: credit: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

func (s *Service) applyLeg(ctx context.Context, tx *sql.Tx, txn *domain.Transaction, acct *domain.Account, kind domain.EntryType, at time.Time) (*domain.LedgerEntry, error) {
	var after int64
	if kind == domain.EntryTypeDebit {
		after = acct.Balance - txn.Amount
		if after < 0 {
			return nil, domain.ErrInsufficientFunds
		}
	} else {
		credited, err := domain.AddBalance(acct.Balance, txn.Amount)
		if err != nil {
			return nil, fmt.Errorf("applyLeg: account %s: %w", acct.ID, err)
		}
		after = credited
	}

	entry := &domain.LedgerEntry{
		ID:            uuid.New(),
		TransactionID: txn.ID,
		AccountID:     acct.ID,
		EntryType:     kind,
		Amount:        txn.Amount,
		BalanceBefore: acct.Balance,
		BalanceAfter:  after,
		CreatedAt:     at,
	}
	if err := s.ledger.Create(ctx, tx, entry); err != nil {
		return nil, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, acct.ID, after, acct.Version+1); err != nil {
		return nil, err
	}

	acct.Balance = after
	acct.Version++
	return entry, nil
}

type notificationPayload struct {
	TransactionID string `json:"transaction_id"`
	Type          string `json:"type"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
	FromAccount   string `json:"from_account,omitempty"`
	ToAccount     string `json:"to_account,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// notify queues a message in the outbox within tx, so it is sent only if
// the money movement commits. Account numbers are always masked.
func (s *Service) notify(ctx context.Context, tx *sql.Tx, kind domain.NotificationKind, txn *domain.Transaction, locked map[uuid.UUID]*domain.Account) error {
	p := notificationPayload{
		TransactionID: txn.ID.String(),
		Type:          string(txn.Type),
		Status:        string(txn.Status),
		Amount:        domain.FormatAmount(txn.Amount),
	}
	if txn.FromAccountID != nil {
		p.FromAccount = fieldcrypt.MaskAccountNumber(locked[*txn.FromAccountID].AccountNumber)
	}
	if txn.ToAccountID != nil {
		p.ToAccount = fieldcrypt.MaskAccountNumber(locked[*txn.ToAccountID].AccountNumber)
	}
	if txn.RejectionReason != nil {
		p.Reason = *txn.RejectionReason
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("notify: marshal: %w", err)
	}

	n := &domain.Notification{
		ID:            uuid.New(),
		Kind:          kind,
		TransactionID: txn.ID,
		Payload:       body,
		Status:        domain.NotificationStatusPending,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.outbox.Enqueue(ctx, tx, n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
