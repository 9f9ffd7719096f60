package service

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type customerRepository interface {
	Create(ctx context.Context, c *domain.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error)
	GetByIdentityHash(ctx context.Context, hash string) (*domain.Customer, error)
	ListByPhoneHash(ctx context.Context, hash string) ([]domain.Customer, error)
}

type rotationRepository interface {
	ListStale(ctx context.Context, activeVersion int, after uuid.UUID, limit int) ([]domain.Customer, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Customer, error)
	UpdateCiphertext(ctx context.Context, tx *sql.Tx, c *domain.Customer) error
}

type accountRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error)
	Create(ctx context.Context, account *domain.Account) error
	GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error)
	Deactivate(ctx context.Context, tx *sql.Tx, id uuid.UUID) error
}

type ledgerTotals interface {
	Totals(ctx context.Context, accountID uuid.UUID) (credits, debits int64, err error)
}

// fieldCipher is the envelope the PII columns are sealed with.
type fieldCipher interface {
	ActiveVersion() int
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	Reencrypt(ciphertext string) (string, error)
}

type searchHasher interface {
	SearchHash(plaintext string) string
}

type auditRecorder interface {
	Record(ctx context.Context, e audit.Entry)
}
