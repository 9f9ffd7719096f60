package service

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/fieldcrypt"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
	"github.com/josh-kwaku/grey-ledger/internal/testutil"
)

var testKeys = map[int]string{
	1: "first-field-encryption-secret-0001",
	2: "second-field-encryption-secret-002",
}

func newCipher(t *testing.T, active int) *fieldcrypt.Cipher {
	t.Helper()
	keys := map[int]string{}
	for v, k := range testKeys {
		if v <= active {
			keys[v] = k
		}
	}
	c, err := fieldcrypt.NewCipher(keys, active)
	require.NoError(t, err)
	return c
}

func setupCustomerService(t *testing.T, db *sql.DB, cipher *fieldcrypt.Cipher) *CustomerService {
	t.Helper()
	hasher, err := fieldcrypt.NewHasher("search-hash-secret")
	require.NoError(t, err)
	return NewCustomerService(
		repository.NewCustomerRepository(db),
		cipher,
		hasher,
		policy.Default(policy.DefaultThresholds()),
		audit.NewRecorder(repository.NewAuditRepository(db)),
	)
}

func ama() RegisterCustomerCommand {
	return RegisterCustomerCommand{PII: domain.CustomerPII{
		FullName:       "Ama Mensah",
		IdentityNumber: "GHA-123456789-0",
		Phone:          "0241234567",
		DateOfBirth:    "1990-05-01",
		Address:        "12 Ring Road, Accra",
		GuarantorName:  "Kofi Boateng",
		GuarantorPhone: "0209876543",
	}}
}

func TestRegister_MasksForTellerAndRevealsForCompliance(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupCustomerService(t, db, newCipher(t, 1))
	ctx := context.Background()

	view, err := svc.Register(ctx, testutil.TellerActor, ama())
	require.NoError(t, err)

	assert.True(t, view.Masked)
	assert.Equal(t, "GHA-XXXX6789", view.IdentityNumber)
	assert.Equal(t, "****-**-01", view.DateOfBirth)
	assert.Equal(t, "A***", view.FullName)
	assert.Equal(t, "*******567", view.Phone)
	assert.Equal(t, "", view.NextOfKinName)

	full, err := svc.Get(ctx, testutil.ComplianceActor, view.ID)
	require.NoError(t, err)
	assert.False(t, full.Masked)
	assert.Equal(t, "GHA-123456789-0", full.IdentityNumber)
	assert.Equal(t, "12 Ring Road, Accra", full.Address)
}

func TestRegister_StoresNoPlaintext(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupCustomerService(t, db, newCipher(t, 1))
	ctx := context.Background()

	view, err := svc.Register(ctx, testutil.TellerActor, ama())
	require.NoError(t, err)

	var row, changes string
	require.NoError(t, db.QueryRow(`SELECT row_to_json(c)::text FROM customers c WHERE id = $1`, view.ID).Scan(&row))
	require.NoError(t, db.QueryRow(`SELECT changes::text FROM audit_log WHERE entity_id = $1`, view.ID.String()).Scan(&changes))

	for _, secret := range []string{"123456789", "Ama Mensah", "0241234567", "Ring Road", "1990-05-01", "Kofi"} {
		assert.NotContains(t, row, secret)
		assert.NotContains(t, changes, secret)
	}
	assert.Contains(t, changes, "[REDACTED]")
}

func TestFindByIdentityNumber_NormalizesInput(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupCustomerService(t, db, newCipher(t, 1))
	ctx := context.Background()

	view, err := svc.Register(ctx, testutil.TellerActor, ama())
	require.NoError(t, err)

	found, err := svc.FindByIdentityNumber(ctx, testutil.TellerActor, " gha-123456789-0 ")
	require.NoError(t, err)
	assert.Equal(t, view.ID, found.ID)

	byPhone, err := svc.FindByPhone(ctx, testutil.TellerActor, "024 123 4567")
	require.NoError(t, err)
	require.Len(t, byPhone, 1)
	assert.Equal(t, view.ID, byPhone[0].ID)

	_, err = svc.FindByIdentityNumber(ctx, testutil.TellerActor, "GHA-000000000-0")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegister_Rejects(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupCustomerService(t, db, newCipher(t, 1))
	ctx := context.Background()

	_, err := svc.Register(ctx, testutil.TellerActor, ama())
	require.NoError(t, err)

	_, err = svc.Register(ctx, testutil.OpsActor, ama())
	assert.ErrorIs(t, err, domain.ErrDuplicateCustomer)

	auditor := domain.Actor{ID: testutil.ComplianceActor.ID, Role: domain.RoleAuditor}
	_, err = svc.Register(ctx, auditor, ama())
	assert.ErrorIs(t, err, domain.ErrPermissionDenied)

	missing := ama()
	missing.PII.Phone = "  "
	_, err = svc.Register(ctx, testutil.TellerActor, missing)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	badDOB := ama()
	badDOB.PII.IdentityNumber = "GHA-999999999-9"
	badDOB.PII.DateOfBirth = "01/05/1990"
	_, err = svc.Register(ctx, testutil.TellerActor, badDOB)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestGet_UndecryptableFieldsDegrade(t *testing.T) {
	db := testutil.SetupTestDB(t)
	svc := setupCustomerService(t, db, newCipher(t, 1))

	id := testutil.SeedCustomer(t, db)
	view, err := svc.Get(context.Background(), testutil.ComplianceActor, id)
	require.NoError(t, err)
	assert.Equal(t, fieldcrypt.Unavailable, view.IdentityNumber)
	assert.Equal(t, fieldcrypt.Unavailable, view.FullName)
}

func TestRotator_MovesRecordsToActiveKey(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	old := setupCustomerService(t, db, newCipher(t, 1))
	view, err := old.Register(ctx, testutil.TellerActor, ama())
	require.NoError(t, err)
	broken := testutil.SeedCustomer(t, db)

	next := newCipher(t, 2)
	rotator := NewRotator(
		repository.NewCustomerRepository(db),
		next,
		audit.NewRecorder(repository.NewAuditRepository(db)),
		db,
		slog.Default(),
		1,
	)

	report, err := rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Scanned)
	assert.Equal(t, 1, report.Rotated)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, broken, report.Failed[0].CustomerID)
	assert.ErrorIs(t, report.Failed[0].Err, domain.ErrDecryption)

	var version int
	require.NoError(t, db.QueryRow(`SELECT key_version FROM customers WHERE id = $1`, view.ID).Scan(&version))
	assert.Equal(t, 2, version)

	// Only the new key is needed to read rotated records.
	onlyV2, err := fieldcrypt.NewCipher(map[int]string{2: testKeys[2]}, 2)
	require.NoError(t, err)
	got, err := setupCustomerService(t, db, onlyV2).Get(ctx, testutil.ComplianceActor, view.ID)
	require.NoError(t, err)
	assert.Equal(t, "GHA-123456789-0", got.IdentityNumber)

	again, err := rotator.Rotate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Rotated)
	assert.Len(t, again.Failed, 1)
}
