package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

const (
	accountNumberDigits   = 13
	accountNumberAttempts = 5
)

type customerChecker interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
}

type OpenAccountCommand struct {
	CustomerID     uuid.UUID
	AccountType    domain.AccountType
	OpeningBalance int64
}

// Reconciliation compares the stored balance with the one implied by the
// opening snapshot and the ledger.
type Reconciliation struct {
	AccountID      uuid.UUID
	InitialBalance int64
	Credits        int64
	Debits         int64
	Expected       int64
	Actual         int64
}

func (r *Reconciliation) Balanced() bool { return r.Expected == r.Actual }

type AccountService struct {
	accounts  accountRepository
	customers customerChecker
	ledger    ledgerTotals
	policy    *policy.Policy
	audit     auditRecorder
	db        *sql.DB
}

func NewAccountService(accounts accountRepository, customers customerChecker, ledger ledgerTotals, pol *policy.Policy, rec auditRecorder, db *sql.DB) *AccountService {
	return &AccountService{accounts: accounts, customers: customers, ledger: ledger, policy: pol, audit: rec, db: db}
}

func (s *AccountService) Open(ctx context.Context, actor domain.Actor, cmd OpenAccountCommand) (*domain.Account, error) {
	log := logging.FromContext(ctx)

	if !s.policy.Can(actor.Role, policy.OpOnboard) {
		return nil, fmt.Errorf("Open: %w", domain.DenyPermission(fmt.Sprintf("%s cannot open accounts", actor.Role)))
	}
	if !cmd.AccountType.IsValid() {
		return nil, fmt.Errorf("Open: account type %q: %w", cmd.AccountType, domain.ErrInvalidRequest)
	}
	if cmd.OpeningBalance < 0 {
		return nil, fmt.Errorf("Open: %w", domain.ErrInvalidAmount)
	}
	if _, err := s.customers.GetByID(ctx, cmd.CustomerID); err != nil {
		return nil, fmt.Errorf("Open: customer: %w", err)
	}

	now := time.Now().UTC()
	account := &domain.Account{
		ID:             uuid.New(),
		CustomerID:     cmd.CustomerID,
		AccountType:    cmd.AccountType,
		Balance:        cmd.OpeningBalance,
		InitialBalance: cmd.OpeningBalance,
		IsActive:       true,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	var err error
	for range accountNumberAttempts {
		account.AccountNumber, err = generateAccountNumber()
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		err = s.accounts.Create(ctx, account)
		if !errors.Is(err, domain.ErrAccountNumberTaken) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("Open: %w", err)
	}

	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionCreate,
		EntityType: "account",
		EntityID:   account.ID.String(),
		Repr:       fieldcrypt.MaskAccountNumber(account.AccountNumber),
		Changes: audit.Created(map[string]any{
			"customer_id":     account.CustomerID.String(),
			"account_type":    account.AccountType,
			"initial_balance": domain.FormatAmount(account.InitialBalance),
		}),
	})

	log.Info("account opened",
		"account_id", account.ID,
		"customer_id", account.CustomerID,
		"account_type", account.AccountType,
	)
	return account, nil
}

// Deactivate closes an account to new transactions. Accounts are never
// deleted; their ledger history stays intact.
func (s *AccountService) Deactivate(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*domain.Account, error) {
	if !s.policy.Can(actor.Role, policy.OpOnboard) {
		return nil, fmt.Errorf("Deactivate: %w", domain.DenyPermission(fmt.Sprintf("%s cannot deactivate accounts", actor.Role)))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Deactivate: begin tx: %w", err)
	}
	defer tx.Rollback()

	account, err := s.accounts.GetForUpdate(ctx, tx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Deactivate: %w", err)
	}
	if !account.IsActive {
		return nil, fmt.Errorf("Deactivate: already inactive: %w", domain.ErrInvalidState)
	}
	if err := s.accounts.Deactivate(ctx, tx, accountID); err != nil {
		return nil, fmt.Errorf("Deactivate: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Deactivate: commit: %w", err)
	}

	account.IsActive = false
	s.audit.Record(ctx, audit.Entry{
		Actor:      actor,
		Action:     domain.AuditActionDeactivate,
		EntityType: "account",
		EntityID:   account.ID.String(),
		Repr:       fieldcrypt.MaskAccountNumber(account.AccountNumber),
		Changes:    domain.ChangeSet{"is_active": {Old: true, New: false}},
	})
	return account, nil
}

// Reconcile checks the stored balance against the opening snapshot plus the
// ledger. Drift is logged as an error and reported, never corrected here.
func (s *AccountService) Reconcile(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*Reconciliation, error) {
	if !s.policy.Can(actor.Role, policy.OpViewAudit) {
		return nil, fmt.Errorf("Reconcile: %w", domain.DenyPermission("role may not reconcile accounts"))
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}
	credits, debits, err := s.ledger.Totals(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("Reconcile: %w", err)
	}

	rec := &Reconciliation{
		AccountID:      account.ID,
		InitialBalance: account.InitialBalance,
		Credits:        credits,
		Debits:         debits,
		Expected:       account.InitialBalance + credits - debits,
		Actual:         account.Balance,
	}
	if !rec.Balanced() {
		logging.FromContext(ctx).Error("account out of balance",
			"account_id", account.ID,
			"expected", rec.Expected,
			"actual", rec.Actual,
		)
	}
	return rec, nil
}

// AccountView is an account as shown to a caller. The number is masked
// unless the caller may view PII.
type AccountView struct {
	domain.Account
	Masked bool
}

func (s *AccountService) GetAccountByID(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*AccountView, error) {
	if err := s.canView(actor); err != nil {
		return nil, fmt.Errorf("GetAccountByID: %w", err)
	}
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("GetAccountByID: %w", err)
	}
	v := s.view(actor, *account)
	return &v, nil
}

func (s *AccountService) GetCustomerAccounts(ctx context.Context, actor domain.Actor, customerID uuid.UUID) ([]AccountView, error) {
	if err := s.canView(actor); err != nil {
		return nil, fmt.Errorf("GetCustomerAccounts: %w", err)
	}
	accounts, err := s.accounts.GetByCustomerID(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("GetCustomerAccounts: %w", err)
	}
	views := make([]AccountView, len(accounts))
	for i, a := range accounts {
		views[i] = s.view(actor, a)
	}
	return views, nil
}

func (s *AccountService) canView(actor domain.Actor) error {
	if s.policy.Can(actor.Role, policy.OpOnboard) || s.policy.Can(actor.Role, policy.OpViewPII) {
		return nil
	}
	return domain.DenyPermission("role may not look up accounts")
}

func (s *AccountService) view(actor domain.Actor, a domain.Account) AccountView {
	if s.policy.Can(actor.Role, policy.OpViewPII) {
		return AccountView{Account: a}
	}
	a.AccountNumber = fieldcrypt.MaskAccountNumber(a.AccountNumber)
	return AccountView{Account: a, Masked: true}
}

func generateAccountNumber() (string, error) {
	digits := make([]byte, accountNumberDigits)
	for i := range digits {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generateAccountNumber: %w", err)
		}
		digits[i] = '0' + byte(n.Int64())
	}
	return string(digits), nil
}
