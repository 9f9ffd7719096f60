package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
	"github.com/josh-kwaku/grey-ledger/internal/testutil"
)

func setupAccountService(t *testing.T, db *sql.DB) *AccountService {
	t.Helper()
	return NewAccountService(
		repository.NewAccountRepository(db),
		repository.NewCustomerRepository(db),
		repository.NewLedgerRepository(db),
		policy.Default(policy.DefaultThresholds()),
		audit.NewRecorder(repository.NewAuditRepository(db)),
		db,
	)
}

func TestOpenAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAccountService(t, db)
	ctx := context.Background()
	customer := testutil.SeedCustomer(t, db)

	acct, err := svc.Open(ctx, testutil.TellerActor, OpenAccountCommand{
		CustomerID: customer, AccountType: domain.AccountTypeSusu, OpeningBalance: 5000,
	})
	require.NoError(t, err)
	assert.True(t, domain.ValidAccountNumber(acct.AccountNumber))
	assert.Equal(t, int64(5000), acct.InitialBalance)
	assert.Equal(t, 1, testutil.CountAuditEntries(t, db, "account", acct.ID.String()))

	rec, err := svc.Reconcile(ctx, testutil.ComplianceActor, acct.ID)
	require.NoError(t, err)
	assert.True(t, rec.Balanced())

	_, err = svc.Reconcile(ctx, testutil.TellerActor, acct.ID)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestOpenAccount_Rejects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAccountService(t, db)
	ctx := context.Background()
	customer := testutil.SeedCustomer(t, db)

	_, err := svc.Open(ctx, testutil.TellerActor, OpenAccountCommand{CustomerID: customer, AccountType: "crypto"})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = svc.Open(ctx, testutil.TellerActor, OpenAccountCommand{CustomerID: customer, AccountType: domain.AccountTypeSavings, OpeningBalance: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Open(ctx, testutil.ComplianceActor, OpenAccountCommand{CustomerID: customer, AccountType: domain.AccountTypeSavings})
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestDeactivateAccount(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAccountService(t, db)
	ctx := context.Background()
	acct := testutil.SeedAccount(t, db, testutil.SeedCustomer(t, db), 1000)

	got, err := svc.Deactivate(ctx, testutil.OpsActor, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	_, err = svc.Deactivate(ctx, testutil.OpsActor, acct.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	stored, err := svc.GetAccountByID(ctx, testutil.OpsActor, acct.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)
	assert.True(t, stored.Masked)
	assert.Equal(t, "******"+acct.AccountNumber[9:], stored.AccountNumber)
}

func TestReconcile_DetectsDrift(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAccountService(t, db)
	acct := testutil.SeedAccount(t, db, testutil.SeedCustomer(t, db), 1000)

	_, err := db.Exec(`UPDATE accounts SET balance = balance + 1 WHERE id = $1`, acct.ID)
	require.NoError(t, err)

	rec, err := svc.Reconcile(context.Background(), testutil.ManagerActor, acct.ID)
	require.NoError(t, err)
	assert.False(t, rec.Balanced())
	assert.Equal(t, int64(1000), rec.Expected)
	assert.Equal(t, int64(1001), rec.Actual)
}

func TestGetCustomerAccounts_MasksForTellers(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupAccountService(t, db)
	ctx := context.Background()
	customer := testutil.SeedCustomer(t, db)
	acct := testutil.SeedAccount(t, db, customer, 1000)

	views, err := svc.GetCustomerAccounts(ctx, testutil.TellerActor, customer)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.True(t, views[0].Masked)
	assert.NotEqual(t, acct.AccountNumber, views[0].AccountNumber)

	views, err = svc.GetCustomerAccounts(ctx, testutil.ComplianceActor, customer)
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.False(t, views[0].Masked)
	assert.Equal(t, acct.AccountNumber, views[0].AccountNumber)

	_, err = svc.GetCustomerAccounts(ctx, domain.Actor{Role: domain.RoleCustomer}, customer)
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)
}
