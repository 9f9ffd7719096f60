// Package notify delivers queued customer notifications after the
// transaction that produced them has committed.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type outboxRepo interface {
	ClaimPending(ctx context.Context, tx *sql.Tx, limit int) ([]domain.Notification, error)
	MarkSent(ctx context.Context, tx *sql.Tx, id uuid.UUID, at time.Time) error
	MarkAttemptFailed(ctx context.Context, tx *sql.Tx, id uuid.UUID, reason string, maxAttempts int) error
}

type Sender interface {
	Send(ctx context.Context, n domain.Notification) error
}

type Dispatcher struct {
	outbox      outboxRepo
	sender      Sender
	db          *sql.DB
	logger      *slog.Logger
	interval    time.Duration
	batch       int
	maxAttempts int
}

func NewDispatcher(outbox outboxRepo, sender Sender, db *sql.DB, logger *slog.Logger, interval time.Duration, maxAttempts int) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{
		outbox:      outbox,
		sender:      sender,
		db:          db,
		logger:      logger,
		interval:    interval,
		batch:       10,
		maxAttempts: maxAttempts,
	}
}

func (d *Dispatcher) Start(ctx context.Context) {
	d.logger.Info("notification dispatcher started", "interval", d.interval)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("notification dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Error("failed to dispatch notifications", "error", err)
			}
		}
	}
}

// DispatchOnce claims a batch of pending notifications and tries each once.
// Rows are claimed with SKIP LOCKED, so several dispatchers can run side by
// side without sending the same message twice.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (int, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("DispatchOnce: begin tx: %w", err)
	}
	defer tx.Rollback()

	pending, err := d.outbox.ClaimPending(ctx, tx, d.batch)
	if err != nil {
		return 0, fmt.Errorf("DispatchOnce: %w", err)
	}

	sent := 0
	for _, n := range pending {
		if err := d.sender.Send(ctx, n); err != nil {
			d.logger.Warn("notification delivery failed",
				"notification_id", n.ID,
				"kind", n.Kind,
				"attempt", n.Attempts+1,
				"error", err,
			)
			if err := d.outbox.MarkAttemptFailed(ctx, tx, n.ID, err.Error(), d.maxAttempts); err != nil {
				return sent, fmt.Errorf("DispatchOnce: %w", err)
			}
			continue
		}
		if err := d.outbox.MarkSent(ctx, tx, n.ID, time.Now().UTC()); err != nil {
			return sent, fmt.Errorf("DispatchOnce: %w", err)
		}
		sent++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("DispatchOnce: commit: %w", err)
	}
	return sent, nil
}
