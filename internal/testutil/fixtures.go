package testutil

import (
	"crypto/rand"
	"database/sql"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

var (
	TellerActor     = domain.Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a1"), Role: domain.RoleTeller, IP: "10.0.0.1"}
	OpsActor        = domain.Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a2"), Role: domain.RoleOperationsManager, IP: "10.0.0.2"}
	ManagerActor    = domain.Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a3"), Role: domain.RoleManager, IP: "10.0.0.3"}
	ManagerActor2   = domain.Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a4"), Role: domain.RoleManager, IP: "10.0.0.4"}
	ComplianceActor = domain.Actor{ID: uuid.MustParse("00000000-0000-0000-0000-0000000000a5"), Role: domain.RoleComplianceOfficer, IP: "10.0.0.5"}
)

// SeedCustomer inserts a customer row with opaque placeholder ciphertext.
// Tests that exercise encryption go through the customer service instead.
func SeedCustomer(t *testing.T, db *sql.DB) uuid.UUID {
	t.Helper()

	id := uuid.New()
	now := time.Now().UTC()
	_, err := db.Exec(
		`INSERT INTO customers (
			id, full_name_enc, identity_number_enc, identity_number_hash, phone_enc, phone_hash,
			date_of_birth_enc, address_enc, next_of_kin_name_enc, next_of_kin_phone_enc,
			guarantor_name_enc, guarantor_phone_enc, key_version, created_by, created_at, updated_at
		) VALUES ($1, 'v1:x', 'v1:x', $2, 'v1:x', $3, 'v1:x', 'v1:x', 'v1:x', 'v1:x', 'v1:x', 'v1:x', 1, $4, $5, $5)`,
		id, "hash-"+id.String(), "phone-"+id.String(), TellerActor.ID, now,
	)
	if err != nil {
		t.Fatalf("seed customer: %v", err)
	}
	return id
}

func SeedAccount(t *testing.T, db *sql.DB, customerID uuid.UUID, balance int64) *domain.Account {
	t.Helper()

	now := time.Now().UTC()
	a := &domain.Account{
		ID:             uuid.New(),
		CustomerID:     customerID,
		AccountNumber:  randomAccountNumber(t),
		AccountType:    domain.AccountTypeSavings,
		Balance:        balance,
		InitialBalance: balance,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	_, err := db.Exec(
		`INSERT INTO accounts (id, customer_id, account_number, account_type, balance, initial_balance, is_active, version, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, $8, $9)`,
		a.ID, a.CustomerID, a.AccountNumber, a.AccountType, a.Balance, a.InitialBalance, a.IsActive, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		t.Fatalf("seed account for %s: %v", customerID, err)
	}
	return a
}

func DeactivateAccount(t *testing.T, db *sql.DB, id uuid.UUID) {
	t.Helper()
	if _, err := db.Exec(`UPDATE accounts SET is_active = FALSE WHERE id = $1`, id); err != nil {
		t.Fatalf("deactivate account %s: %v", id, err)
	}
}

// SeedRule inserts an active fraud rule.
func SeedRule(t *testing.T, db *sql.DB, r domain.FraudRule) domain.FraudRule {
	t.Helper()

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.Name == "" {
		r.Name = "rule-" + r.ID.String()
	}
	if r.Severity == "" {
		r.Severity = domain.SeverityMedium
	}
	_, err := db.Exec(
		`INSERT INTO fraud_rules (id, name, type, field, operator, value, severity, auto_block, require_approval, escalation_threshold, is_active)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, TRUE)`,
		r.ID, r.Name, r.Type, r.Field, r.Operator, r.Value, r.Severity, r.AutoBlock, r.RequireApproval, r.EscalationThreshold,
	)
	if err != nil {
		t.Fatalf("seed fraud rule %s: %v", r.Name, err)
	}
	r.IsActive = true
	return r
}

// SeedTransaction inserts a transaction row as-is. Balances are not touched.
func SeedTransaction(t *testing.T, db *sql.DB, txn domain.Transaction) domain.Transaction {
	t.Helper()

	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.Status == "" {
		txn.Status = domain.TransactionStatusCompleted
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	if txn.CreatedBy == uuid.Nil {
		txn.CreatedBy = TellerActor.ID
		txn.CreatedByRole = TellerActor.Role
	}
	_, err := db.Exec(
		`INSERT INTO transactions (id, type, status, from_account_id, to_account_id, amount, description,
			created_by, created_by_role, origin_country, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		txn.ID, txn.Type, txn.Status, txn.FromAccountID, txn.ToAccountID, txn.Amount, txn.Description,
		txn.CreatedBy, txn.CreatedByRole, txn.OriginCountry, txn.CreatedAt,
	)
	if err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return txn
}

func GetAccountBalance(t *testing.T, db *sql.DB, accountID uuid.UUID) int64 {
	t.Helper()

	var balance int64
	err := db.QueryRow(`SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		t.Fatalf("get account balance %s: %v", accountID, err)
	}
	return balance
}

func CountLedgerEntries(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM ledger_entries WHERE transaction_id = $1`, transactionID)
}

func CountTransactions(t *testing.T, db *sql.DB) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM transactions`)
}

func CountAlerts(t *testing.T, db *sql.DB, transactionID uuid.UUID) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM fraud_alerts WHERE transaction_id = $1`, transactionID)
}

func CountAuditEntries(t *testing.T, db *sql.DB, entityType, entityID string) int {
	t.Helper()
	return count(t, db, `SELECT COUNT(*) FROM audit_log WHERE entity_type = $1 AND entity_id = $2`, entityType, entityID)
}

func RuleTriggerCount(t *testing.T, db *sql.DB, ruleID uuid.UUID) int64 {
	t.Helper()

	var n int64
	if err := db.QueryRow(`SELECT trigger_count FROM fraud_rules WHERE id = $1`, ruleID).Scan(&n); err != nil {
		t.Fatalf("rule trigger count %s: %v", ruleID, err)
	}
	return n
}

func count(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()

	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %q: %v", query, err)
	}
	return n
}

func randomAccountNumber(t *testing.T) string {
	t.Helper()

	n, err := rand.Int(rand.Reader, big.NewInt(9_000_000_000_000))
	if err != nil {
		t.Fatalf("account number: %v", err)
	}
	return fmt.Sprintf("%013d", n.Int64()+1_000_000_000_000)
}
