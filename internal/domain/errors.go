package domain

import (
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrInvalidAmount        = errors.New("amount must be greater than zero")
	ErrInvalidAccountState  = errors.New("accounts do not match transaction type")
	ErrAccountInactive      = errors.New("account inactive")
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInvalidState         = errors.New("invalid state transition")
	ErrRequestInFlight      = errors.New("request with this idempotency key is in flight")
	ErrDuplicateRequest     = errors.New("idempotency key already used with a different request")
	ErrFraudBlocked         = errors.New("transaction blocked by fraud rule")
	ErrDecryption           = errors.New("decryption failed")
	ErrAuditWrite           = errors.New("audit write failed")
	ErrInvalidRule          = errors.New("invalid fraud rule")
	ErrVersionConflict      = errors.New("optimistic lock conflict")
	ErrDuplicateCustomer    = errors.New("customer already registered")
	ErrAccountNumberTaken   = errors.New("account number already in use")
	ErrRejectionReasonEmpty = errors.New("rejection reason required")
)

// PermissionError carries the reason an actor was refused.
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string { return "permission denied: " + e.Reason }

func (e *PermissionError) Is(target error) bool { return target == ErrPermissionDenied }

func DenyPermission(reason string) error {
	return &PermissionError{Reason: reason}
}

// FraudBlockedError names the rules that refused a transaction. The
// transaction itself is kept with a failure reason for investigation.
type FraudBlockedError struct {
	TransactionID uuid.UUID
	Rules         []string
}

func (e *FraudBlockedError) Error() string {
	return ErrFraudBlocked.Error() + ": " + strings.Join(e.Rules, ",")
}

func (e *FraudBlockedError) Is(target error) bool { return target == ErrFraudBlocked }
