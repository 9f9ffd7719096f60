package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const customerColumns = `id, full_name_enc, identity_number_enc, identity_number_hash,
	phone_enc, phone_hash, date_of_birth_enc, address_enc,
	next_of_kin_name_enc, next_of_kin_phone_enc, guarantor_name_enc, guarantor_phone_enc,
	key_version, created_by, created_at, updated_at`

type CustomerRepository struct {
	db *sql.DB
}

func NewCustomerRepository(db *sql.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO customers (`+customerColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		c.ID, c.FullNameEnc, c.IdentityNumberEnc, c.IdentityNumberHash,
		c.PhoneEnc, c.PhoneHash, c.DateOfBirthEnc, c.AddressEnc,
		c.NextOfKinNameEnc, c.NextOfKinPhoneEnc, c.GuarantorNameEnc, c.GuarantorPhoneEnc,
		c.KeyVersion, c.CreatedBy, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_customers_identity_hash") {
			return fmt.Errorf("Create: %w", domain.ErrDuplicateCustomer)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return r.getOne(ctx, "GetByID", `id = $1`, id)
}

// GetByIdentityHash finds a customer through the search hash; ciphertext is never scanned.
func (r *CustomerRepository) GetByIdentityHash(ctx context.Context, hash string) (*domain.Customer, error) {
	return r.getOne(ctx, "GetByIdentityHash", `identity_number_hash = $1`, hash)
}

func (r *CustomerRepository) ListByPhoneHash(ctx context.Context, hash string) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE phone_hash = $1 ORDER BY created_at`, hash,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByPhoneHash: %w", err)
	}
	return collectCustomers(rows, "ListByPhoneHash")
}

// ListStale pages through customers encrypted under an older key, keyed on id.
func (r *CustomerRepository) ListStale(ctx context.Context, activeVersion int, after uuid.UUID, limit int) ([]domain.Customer, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers
		WHERE key_version <> $1 AND id > $2
		ORDER BY id LIMIT $3`,
		activeVersion, after, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListStale: %w", err)
	}
	return collectCustomers(rows, "ListStale")
}

func (r *CustomerRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Customer, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1 FOR UPDATE`, id,
	)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return c, nil
}

// UpdateCiphertext rewrites every encrypted column and the key version in one statement.
func (r *CustomerRepository) UpdateCiphertext(ctx context.Context, tx *sql.Tx, c *domain.Customer) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE customers SET
			full_name_enc = $1, identity_number_enc = $2, phone_enc = $3,
			date_of_birth_enc = $4, address_enc = $5, next_of_kin_name_enc = $6,
			next_of_kin_phone_enc = $7, guarantor_name_enc = $8, guarantor_phone_enc = $9,
			key_version = $10, updated_at = now()
		WHERE id = $11`,
		c.FullNameEnc, c.IdentityNumberEnc, c.PhoneEnc,
		c.DateOfBirthEnc, c.AddressEnc, c.NextOfKinNameEnc,
		c.NextOfKinPhoneEnc, c.GuarantorNameEnc, c.GuarantorPhoneEnc,
		c.KeyVersion, c.ID,
	)
	if err != nil {
		return fmt.Errorf("UpdateCiphertext: %w", err)
	}
	return nil
}

func (r *CustomerRepository) getOne(ctx context.Context, op, where string, arg any) (*domain.Customer, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+customerColumns+` FROM customers WHERE `+where, arg)
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", op, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func collectCustomers(rows *sql.Rows, op string) ([]domain.Customer, error) {
	defer rows.Close()

	var customers []domain.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		customers = append(customers, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w", op, err)
	}
	return customers, nil
}

func scanCustomer(s scanner) (*domain.Customer, error) {
	var c domain.Customer
	err := s.Scan(
		&c.ID, &c.FullNameEnc, &c.IdentityNumberEnc, &c.IdentityNumberHash,
		&c.PhoneEnc, &c.PhoneHash, &c.DateOfBirthEnc, &c.AddressEnc,
		&c.NextOfKinNameEnc, &c.NextOfKinPhoneEnc, &c.GuarantorNameEnc, &c.GuarantorPhoneEnc,
		&c.KeyVersion, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
