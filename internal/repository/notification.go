package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const notificationColumns = `id, kind, transaction_id, payload, status, attempts,
	last_error, created_at, sent_at`

type NotificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Enqueue writes an outbox row inside the caller's transaction so the
// notification exists only if the money movement commits.
func (r *NotificationRepository) Enqueue(ctx context.Context, tx *sql.Tx, n *domain.Notification) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO notification_outbox (`+notificationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		n.ID, n.Kind, n.TransactionID, []byte(n.Payload), n.Status, n.Attempts,
		n.LastError, n.CreatedAt, n.SentAt,
	)
	if err != nil {
		return fmt.Errorf("Enqueue: %w", err)
	}
	return nil
}

// ClaimPending locks a batch of pending rows; concurrent dispatchers skip each other's rows.
func (r *NotificationRepository) ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.Notification, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notification_outbox
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ClaimPending: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload []byte
		if err := rows.Scan(
			&n.ID, &n.Kind, &n.TransactionID, &payload, &n.Status, &n.Attempts,
			&n.LastError, &n.CreatedAt, &n.SentAt,
		); err != nil {
			return nil, fmt.Errorf("ClaimPending: scan: %w", err)
		}
		n.Payload = payload
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ClaimPending: rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE notification_outbox SET status = 'sent', attempts = attempts + 1, sent_at = $1, last_error = NULL
		WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("MarkSent: %w", err)
	}
	return nil
}

// MarkAttemptFailed records a failed delivery; the row is parked as failed once maxAttempts is reached.
func (r *NotificationRepository) MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, maxAttempts int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE notification_outbox SET
			attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN 'failed' ELSE 'pending' END
		WHERE id = $3`,
		reason, maxAttempts, id,
	)
	if err != nil {
		return fmt.Errorf("MarkAttemptFailed: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListByTransaction(ctx context.Context, transactionID uuid.UUID) ([]domain.Notification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+notificationColumns+` FROM notification_outbox
		WHERE transaction_id = $1 ORDER BY created_at`, transactionID,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByTransaction: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var payload []byte
		if err := rows.Scan(
			&n.ID, &n.Kind, &n.TransactionID, &payload, &n.Status, &n.Attempts,
			&n.LastError, &n.CreatedAt, &n.SentAt,
		); err != nil {
			return nil, fmt.Errorf("ListByTransaction: scan: %w", err)
		}
		n.Payload = payload
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByTransaction: rows: %w", err)
	}
	return out, nil
}
