package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const idempotencyColumns = `key, user_id, request_hash, status, status_code,
	response_body, reservation_id, reserved_at, created_at, expires_at`

type IdempotencyRepository struct {
	db *sql.DB
}

func NewIdempotencyRepository(db *sql.DB) *IdempotencyRepository {
	return &IdempotencyRepository{db: db}
}

// Insert writes a fresh reservation. The primary key makes concurrent first
// sightings of one key serialize here; the loser sees inserted == false.
func (r *IdempotencyRepository) Insert(ctx context.Context, tx *sql.Tx, rec *domain.IdempotencyRecord) (bool, error) {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO idempotency_keys (`+idempotencyColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.UserID, rec.RequestHash, rec.Status, rec.StatusCode,
		rec.ResponseBody, rec.ReservationID, rec.ReservedAt, rec.CreatedAt, rec.ExpiresAt,
	)
	if err != nil {
		return false, fmt.Errorf("Insert: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("Insert: rows affected: %w", err)
	}
	return rows == 1, nil
}

func (r *IdempotencyRepository) GetForUpdate(ctx context.Context, tx *sql.Tx, key string) (*domain.IdempotencyRecord, error) {
	row := tx.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1 FOR UPDATE`, key,
	)
	rec, err := scanIdempotencyRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("GetForUpdate: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("GetForUpdate: %w", err)
	}
	return rec, nil
}

func (r *IdempotencyRepository) Get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+idempotencyColumns+` FROM idempotency_keys WHERE key = $1`, key,
	)
	rec, err := scanIdempotencyRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("Get: %w", err)
	}
	return rec, nil
}

// Rereserve turns a locked existing row back into a fresh in-flight reservation.
func (r *IdempotencyRepository) Rereserve(ctx context.Context, tx *sql.Tx, rec *domain.IdempotencyRecord) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE idempotency_keys SET
			user_id = $1, request_hash = $2, status = 'in_flight', status_code = 0,
			response_body = NULL, reservation_id = $3, reserved_at = $4, created_at = $5, expires_at = $6
		WHERE key = $7`,
		rec.UserID, rec.RequestHash, rec.ReservationID, rec.ReservedAt, rec.CreatedAt, rec.ExpiresAt, rec.Key,
	)
	if err != nil {
		return fmt.Errorf("Rereserve: %w", err)
	}
	return nil
}

// Complete caches the response for the reservation that still holds key. A
// holder whose reservation was taken over matches no row and gets ErrInvalidState.
func (r *IdempotencyRepository) Complete(ctx context.Context, key string, reservationID uuid.UUID, statusCode int, body []byte, expiresAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE idempotency_keys
		SET status = 'completed', status_code = $1, response_body = $2, expires_at = $3
		WHERE key = $4 AND reservation_id = $5 AND status = 'in_flight'`,
		statusCode, body, expiresAt, key, reservationID,
	)
	if err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("Complete: rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("Complete: %w", domain.ErrInvalidState)
	}
	return nil
}

func (r *IdempotencyRepository) DeleteInFlight(ctx context.Context, key string, reservationID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE key = $1 AND reservation_id = $2 AND status = 'in_flight'`,
		key, reservationID,
	)
	if err != nil {
		return fmt.Errorf("DeleteInFlight: %w", err)
	}
	return nil
}

func (r *IdempotencyRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM idempotency_keys WHERE expires_at < $1`, now,
	)
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("CleanExpired: rows affected: %w", err)
	}
	return n, nil
}

func scanIdempotencyRecord(s scanner) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	err := s.Scan(
		&rec.Key, &rec.UserID, &rec.RequestHash, &rec.Status, &rec.StatusCode,
		&rec.ResponseBody, &rec.ReservationID, &rec.ReservedAt, &rec.CreatedAt, &rec.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
