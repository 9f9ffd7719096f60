// Package idempotency gives mutating entry points at-most-once execution per
// client-supplied key.
package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

type recordRepo interface {
	Insert(ctx context.Context, tx *sql.Tx, rec *domain.IdempotencyRecord) (bool, error)
	GetForUpdate(ctx context.Context, tx *sql.Tx, key string) (*domain.IdempotencyRecord, error)
	Rereserve(ctx context.Context, tx *sql.Tx, rec *domain.IdempotencyRecord) error
	Complete(ctx context.Context, key string, reservationID uuid.UUID, statusCode int, body []byte, expiresAt time.Time) error
	DeleteInFlight(ctx context.Context, key string, reservationID uuid.UUID) error
	CleanExpired(ctx context.Context, now time.Time) (int64, error)
}

// Response is the cached outcome replayed to a retrying client.
type Response struct {
	StatusCode int
	Body       []byte
}

type Reservation struct {
	IsNew  bool
	Cached *Response

	// ID identifies a new reservation; Complete and Release must present it.
	ID uuid.UUID
	// Deadline is when the holder must have stopped working on the request.
	// It falls a third of the lease before the key can be taken over, so a
	// holder cut off at its deadline has rolled back before anyone else runs.
	Deadline time.Time
}

type Options struct {
	// TTL is how long a completed response stays replayable.
	TTL time.Duration
	// Lease is how long an in-flight reservation blocks other callers
	// before it is presumed abandoned by a crashed holder.
	Lease time.Duration
}

func (o Options) budget() time.Duration {
	return o.Lease * 2 / 3
}

type Store struct {
	repo recordRepo
	db   *sql.DB
	opts Options
	now  func() time.Time
}

func NewStore(repo recordRepo, db *sql.DB, opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	if opts.Lease <= 0 {
		opts.Lease = 30 * time.Second
	}
	return &Store{repo: repo, db: db, opts: opts, now: func() time.Time { return time.Now().UTC() }}
}

// Reserve claims key for one execution of the request identified by requestHash.
//
// A new or reusable key yields IsNew. A completed key for the same request
// yields the cached response. A key still being processed yields
// ErrRequestInFlight. A key presented by a different user or with a different
// payload yields ErrDuplicateRequest, expired or not.
func (s *Store) Reserve(ctx context.Context, key string, userID *uuid.UUID, requestHash string) (*Reservation, error) {
	if key == "" {
		return nil, fmt.Errorf("Reserve: empty key: %w", domain.ErrInvalidRequest)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("Reserve: begin tx: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	fresh := &domain.IdempotencyRecord{
		Key:           key,
		UserID:        userID,
		RequestHash:   requestHash,
		Status:        domain.IdempotencyStatusInFlight,
		ReservationID: uuid.New(),
		ReservedAt:    now,
		CreatedAt:     now,
		ExpiresAt:     now.Add(s.opts.TTL),
	}

	inserted, err := s.repo.Insert(ctx, tx, fresh)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	if inserted {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("Reserve: commit: %w", err)
		}
		return s.granted(fresh), nil
	}

	existing, err := s.repo.GetForUpdate(ctx, tx, key)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// Purged between our insert attempt and the lock; the client may retry.
			return nil, fmt.Errorf("Reserve: %w", domain.ErrRequestInFlight)
		}
		return nil, fmt.Errorf("Reserve: %w", err)
	}

	res, reuse, err := s.classify(ctx, existing, userID, requestHash, now)
	if err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	if !reuse {
		return res, nil
	}

	if err := s.repo.Rereserve(ctx, tx, fresh); err != nil {
		return nil, fmt.Errorf("Reserve: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("Reserve: commit: %w", err)
	}
	return s.granted(fresh), nil
}

func (s *Store) granted(rec *domain.IdempotencyRecord) *Reservation {
	return &Reservation{
		IsNew:    true,
		ID:       rec.ReservationID,
		Deadline: rec.ReservedAt.Add(s.opts.budget()),
	}
}

// classify decides what an existing record means for this caller. reuse
// reports that the row should be taken over as a fresh reservation.
func (s *Store) classify(ctx context.Context, rec *domain.IdempotencyRecord, userID *uuid.UUID, requestHash string, now time.Time) (*Reservation, bool, error) {
	if !sameUser(rec.UserID, userID) || rec.RequestHash != requestHash {
		return nil, false, domain.ErrDuplicateRequest
	}

	if !now.Before(rec.ExpiresAt) {
		return nil, true, nil
	}

	switch rec.Status {
	case domain.IdempotencyStatusCompleted:
		return &Reservation{Cached: &Response{StatusCode: rec.StatusCode, Body: rec.ResponseBody}}, false, nil
	case domain.IdempotencyStatusInFlight:
		if now.Sub(rec.ReservedAt) < s.opts.Lease {
			return nil, false, domain.ErrRequestInFlight
		}
		logging.FromContext(ctx).Warn("taking over abandoned idempotency reservation",
			"idempotency_key", rec.Key,
			"reserved_at", rec.ReservedAt,
		)
		return nil, true, nil
	default:
		return nil, false, fmt.Errorf("unknown idempotency status %q", rec.Status)
	}
}

// Complete caches the outcome of a reserved request. A holder whose
// reservation was taken over gets ErrInvalidState and caches nothing.
func (s *Store) Complete(ctx context.Context, key string, reservationID uuid.UUID, resp Response) error {
	if err := s.repo.Complete(ctx, key, reservationID, resp.StatusCode, resp.Body, s.now().Add(s.opts.TTL)); err != nil {
		return fmt.Errorf("Complete: %w", err)
	}
	return nil
}

// Release drops an in-flight reservation after the operation failed without
// a cacheable outcome, so the client can retry with the same key.
func (s *Store) Release(ctx context.Context, key string, reservationID uuid.UUID) error {
	if err := s.repo.DeleteInFlight(ctx, key, reservationID); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}

func (s *Store) Purge(ctx context.Context) (int64, error) {
	n, err := s.repo.CleanExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("Purge: %w", err)
	}
	return n, nil
}

func sameUser(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
