package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const transactionColumns = `id, type, status, from_account_id, to_account_id, amount,
	description, created_by, created_by_role, approved_by, approved_at,
	rejection_reason, failure_reason, origin_country, created_at, processed_at`

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO transactions (
			id, type, status, from_account_id, to_account_id, amount,
			description, created_by, created_by_role, approved_by, approved_at,
			rejection_reason, failure_reason, origin_country, created_at, processed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.Type, t.Status, t.FromAccountID, t.ToAccountID, t.Amount,
		t.Description, t.CreatedBy, t.CreatedByRole, t.ApprovedBy, t.ApprovedAt,
		t.RejectionReason, t.FailureReason, t.OriginCountry, t.CreatedAt, t.ProcessedAt,
	)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}

func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetByID: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetByID: %w", err)
	}
	return t, nil
}

func (r *TransactionRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, id uuid.UUID) (*domain.Transaction, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1 FOR UPDATE`, id,
	)
	t, err := scanTransaction(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return t, nil
}

// Resolve moves a pending transaction into a terminal status. The status
// guard makes a second resolution a no-op that reports ErrInvalidState.
func (r *TransactionRepository) Resolve(ctx context.Context, tx *sql.Tx, t *domain.Transaction) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE transactions
		SET status = $1, approved_by = $2, approved_at = $3, rejection_reason = $4,
			failure_reason = $5, processed_at = $6
		WHERE id = $7 AND status = 'pending_approval'`,
		t.Status, t.ApprovedBy, t.ApprovedAt, t.RejectionReason,
		t.FailureReason, t.ProcessedAt, t.ID,
	)
	if err != nil {
		return fmt.Errorf("Resolve: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Resolve: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Resolve: %w", domain.ErrInvalidState)
	}
	return nil
}

// TransactionCursor is the (created_at, id) position of the last row of a page.
type TransactionCursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

type TransactionFilter struct {
	Statuses     []domain.TransactionStatus
	CreatedSince time.Time
	After        *TransactionCursor
	Limit        int
}

func (r *TransactionRepository) List(ctx context.Context, f TransactionFilter) ([]domain.Transaction, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	statuses := make([]string, len(f.Statuses))
	for i, st := range f.Statuses {
		statuses[i] = string(st)
	}
	var afterAt sql.NullTime
	afterID := uuid.Nil
	if f.After != nil {
		afterAt = sql.NullTime{Time: f.After.CreatedAt, Valid: true}
		afterID = f.After.ID
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions
		WHERE (cardinality($1::text[]) = 0 OR status = ANY($1::text[])) AND created_at >= $2
			AND ($3::timestamptz IS NULL OR (created_at, id) > ($3::timestamptz, $4::uuid))
		ORDER BY created_at, id LIMIT $5`,
		pq.Array(statuses), f.CreatedSince, afterAt, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("List: scan: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows: %w", err)
	}
	return txns, nil
}

// Activity aggregates the transactions touching an account inside a window.
// Failed and rejected transactions never moved money and are ignored.
func (r *TransactionRepository) Activity(ctx context.Context, q Querier, accountID uuid.UUID, since, until time.Time, excludeID uuid.UUID) (count int64, sum int64, err error) {
	err = q.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
			AND status IN ('completed', 'pending_approval')
			AND created_at >= $2 AND created_at <= $3 AND id <> $4`,
		accountID, since, until, excludeID,
	).Scan(&count, &sum)
	if err != nil {
		return 0, 0, fmt.Errorf("Activity: %w", err)
	}
	return count, sum, nil
}

// LastActivity returns the latest completed transaction time before the given instant, if any.
func (r *TransactionRepository) LastActivity(ctx context.Context, q Querier, accountID uuid.UUID, before time.Time, excludeID uuid.UUID) (*time.Time, error) {
	var last sql.NullTime
	err := q.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1)
			AND status = 'completed' AND created_at < $2 AND id <> $3`,
		accountID, before, excludeID,
	).Scan(&last)
	if err != nil {
		return nil, fmt.Errorf("LastActivity: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func scanTransaction(s scanner) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.Scan(
		&t.ID, &t.Type, &t.Status, &t.FromAccountID, &t.ToAccountID, &t.Amount,
		&t.Description, &t.CreatedBy, &t.CreatedByRole, &t.ApprovedBy, &t.ApprovedAt,
		&t.RejectionReason, &t.FailureReason, &t.OriginCountry, &t.CreatedAt, &t.ProcessedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
