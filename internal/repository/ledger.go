package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const ledgerColumns = `id, transaction_id, account_id, entry_type, amount,
	balance_before, balance_after, created_at`

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) Create(ctx context.Context, tx *sql.Tx, entry *domain.LedgerEntry) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (
			id, transaction_id, account_id, entry_type, amount,
			balance_before, balance_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, entry.TransactionID, entry.AccountID, entry.EntryType, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *LedgerRepository) GetByTransactionID(ctx context.Context, transactionID uuid.UUID) ([]domain.LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+ledgerColumns+` FROM ledger_entries
		WHERE transaction_id = $1 ORDER BY created_at, entry_type DESC`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("GetByTransactionID: %w", err)
	}
	defer rows.Close()

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("GetByTransactionID: scan: %w", err)
		}
		entries = append(entries, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("GetByTransactionID: rows: %w", err)
	}
	return entries, nil
}

// Totals sums every credit and debit posted against an account.
func (r *LedgerRepository) Totals(ctx context.Context, accountID uuid.UUID) (credits, debits int64, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'credit'), 0),
			COALESCE(SUM(amount) FILTER (WHERE entry_type = 'debit'), 0)
		FROM ledger_entries WHERE account_id = $1`, accountID,
	).Scan(&credits, &debits)
	if err != nil {
		return 0, 0, fmt.Errorf("Totals: %w", err)
	}
	return credits, debits, nil
}

func scanLedgerEntry(s scanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	err := s.Scan(
		&e.ID, &e.TransactionID, &e.AccountID, &e.EntryType, &e.Amount,
		&e.BalanceBefore, &e.BalanceAfter, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}
