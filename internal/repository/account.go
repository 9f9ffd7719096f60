package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const accountColumns = `id, customer_id, account_number, account_type, balance,
	initial_balance, is_active, version, created_at, updated_at`

type AccountRepository struct {
	db *sql.DB
}

func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return a, nil
}

func (r *AccountRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = ANY($1::uuid[])`, uuidArray(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("GetByIDs: %w", err)
	}
	defer rows.Close()

	result := make(map[uuid.UUID]*domain.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByIDs: scan: %w", err)
		}
		result[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByIDs: rows: %w", err)
	}
	return result, nil
}

func (r *AccountRepository) GetByCustomerID(ctx context.Context, customerID uuid.UUID) ([]domain.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE customer_id = $1 ORDER BY created_at`, customerID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByCustomerID: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByCustomerID: scan: %w", err)
		}
		accounts = append(accounts, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByCustomerID: rows: %w", err)
	}
	return accounts, nil
}

func (r *AccountRepository) Create(ctx context.Context, account *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (
			id, customer_id, account_number, account_type, balance,
			initial_balance, is_active, version, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		account.ID, account.CustomerID, account.AccountNumber, account.AccountType, account.Balance,
		account.InitialBalance, account.IsActive, account.Version, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "accounts_account_number_key") {
			return fmt.Errorf("Create: %w", domain.ErrAccountNumberTaken)
		}
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *AccountRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Account, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id,
	)
	a, err := scanAccount(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return a, nil
}

// UpdateBalance must run under the row lock taken by GetForUpdate; the version
// check guards against a caller that skipped the lock.
func (r *AccountRepository) UpdateBalance(ctx context.Context, tx *sql.Tx, id uuid.UUID, newBalance int64, newVersion int64) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET balance = $1, version = $2, updated_at = now()
		WHERE id = $3 AND version = $4`,
		newBalance, newVersion, id, newVersion-1,
	)
	if err != nil {
		return fmt.Errorf("UpdateBalance: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("UpdateBalance: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("UpdateBalance: %w", domain.ErrVersionConflict)
	}
	return nil
}

func (r *AccountRepository) Deactivate(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE accounts SET is_active = FALSE, updated_at = now() WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Deactivate: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Deactivate: %w", domain.ErrNotFound)
	}
	return nil
}

func scanAccount(s scanner) (*domain.Account, error) {
	var a domain.Account
	err := s.Scan(
		&a.ID, &a.CustomerID, &a.AccountNumber, &a.AccountType, &a.Balance,
		&a.InitialBalance, &a.IsActive, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func uuidArray(ids []uuid.UUID) any {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return pq.Array(s)
}
