package domain

import (
	"time"

	"github.com/google/uuid"
)

type TransactionType string

const (
	TransactionTypeDeposit      TransactionType = "deposit"
	TransactionTypeWithdrawal   TransactionType = "withdrawal"
	TransactionTypeTransfer     TransactionType = "transfer"
	TransactionTypePayment      TransactionType = "payment"
	TransactionTypeDisbursement TransactionType = "disbursement"
	TransactionTypeRefund       TransactionType = "refund"
)

type TransactionStatus string

const (
	TransactionStatusPendingApproval TransactionStatus = "pending_approval"
	TransactionStatusCompleted       TransactionStatus = "completed"
	TransactionStatusRejected        TransactionStatus = "rejected"
	TransactionStatusFailed          TransactionStatus = "failed"
)

func (s TransactionStatus) IsTerminal() bool {
	return s != TransactionStatusPendingApproval
}

// Presence describes whether a transaction type takes a from or to account.
type Presence int

const (
	Forbidden Presence = iota
	Optional
	Required
)

type accountShape struct {
	from Presence
	to   Presence
}

var accountShapes = map[TransactionType]accountShape{
	TransactionTypeDeposit:      {from: Forbidden, to: Required},
	TransactionTypeWithdrawal:   {from: Required, to: Forbidden},
	TransactionTypeTransfer:     {from: Required, to: Required},
	TransactionTypePayment:      {from: Required, to: Optional},
	TransactionTypeDisbursement: {from: Optional, to: Required},
	TransactionTypeRefund:       {from: Optional, to: Required},
}

func (t TransactionType) IsValid() bool {
	_, ok := accountShapes[t]
	return ok
}

// AccountPresence reports how the type treats the from and to accounts.
func (t TransactionType) AccountPresence() (from, to Presence) {
	s := accountShapes[t]
	return s.from, s.to
}

type Transaction struct {
	ID              uuid.UUID
	Type            TransactionType
	Status          TransactionStatus
	FromAccountID   *uuid.UUID
	ToAccountID     *uuid.UUID
	Amount          int64
	Description     string
	CreatedBy       uuid.UUID
	CreatedByRole   Role
	ApprovedBy      *uuid.UUID
	ApprovedAt      *time.Time
	RejectionReason *string
	FailureReason   *string
	OriginCountry   *string
	CreatedAt       time.Time
	ProcessedAt     *time.Time
}

// PrimaryAccountID is the account fraud screening and velocity are keyed on.
func (t *Transaction) PrimaryAccountID() uuid.UUID {
	if t.FromAccountID != nil {
		return *t.FromAccountID
	}
	return *t.ToAccountID
}

// AccountIDs returns the distinct accounts touched by the transaction.
func (t *Transaction) AccountIDs() []uuid.UUID {
	var ids []uuid.UUID
	if t.FromAccountID != nil {
		ids = append(ids, *t.FromAccountID)
	}
	if t.ToAccountID != nil && (t.FromAccountID == nil || *t.ToAccountID != *t.FromAccountID) {
		ids = append(ids, *t.ToAccountID)
	}
	return ids
}

const (
	FailureReasonFraudBlocked = "fraud_blocked"
)
