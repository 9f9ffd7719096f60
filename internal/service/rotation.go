package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/audit"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type RotationFailure struct {
	CustomerID uuid.UUID
	Err        error
}

type RotationReport struct {
	ActiveVersion int
	Scanned       int
	Rotated       int
	Failed        []RotationFailure
}

// Rotator moves customer PII onto the active encryption key. Each customer
// is rewritten in its own transaction; a record that cannot be rotated is
// reported and skipped so one bad row never stalls the rest.
type Rotator struct {
	customers rotationRepository
	cipher    fieldCipher
	audit     auditRecorder
	db        *sql.DB
	logger    *slog.Logger
	batch     int
}

func NewRotator(customers rotationRepository, cipher fieldCipher, rec auditRecorder, db *sql.DB, logger *slog.Logger, batch int) *Rotator {
	if batch <= 0 {
		batch = 100
	}
	return &Rotator{customers: customers, cipher: cipher, audit: rec, db: db, logger: logger, batch: batch}
}

func (r *Rotator) Rotate(ctx context.Context) (*RotationReport, error) {
	active := r.cipher.ActiveVersion()
	report := &RotationReport{ActiveVersion: active}
	r.logger.Info("key rotation started", "active_version", active)

	after := uuid.Nil
	for {
		page, err := r.customers.ListStale(ctx, active, after, r.batch)
		if err != nil {
			return report, fmt.Errorf("Rotate: %w", err)
		}
		if len(page) == 0 {
			break
		}

		for _, c := range page {
			if err := ctx.Err(); err != nil {
				return report, fmt.Errorf("Rotate: %w", err)
			}
			report.Scanned++
			from, err := r.rotateOne(ctx, c.ID, active)
			if err != nil {
				r.logger.Error("failed to rotate customer keys", "customer_id", c.ID, "error", err)
				report.Failed = append(report.Failed, RotationFailure{CustomerID: c.ID, Err: err})
				continue
			}
			if from == active {
				continue
			}
			report.Rotated++
			r.audit.Record(ctx, audit.Entry{
				Actor:      domain.SystemActor,
				Action:     domain.AuditActionRotate,
				EntityType: "customer",
				EntityID:   c.ID.String(),
				Changes:    domain.ChangeSet{"key_version": {Old: from, New: active}},
			})
		}
		after = page[len(page)-1].ID
	}

	r.logger.Info("key rotation finished",
		"active_version", active,
		"scanned", report.Scanned,
		"rotated", report.Rotated,
		"failed", len(report.Failed),
	)
	return report, nil
}

// rotateOne returns the key version the record was on before the call.
func (r *Rotator) rotateOne(ctx context.Context, id uuid.UUID, active int) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("rotateOne: begin tx: %w", err)
	}
	defer tx.Rollback()

	c, err := r.customers.GetForUpdate(ctx, tx, id)
	if err != nil {
		return 0, fmt.Errorf("rotateOne: %w", err)
	}
	from := c.KeyVersion
	if from == active {
		return from, nil
	}

	for _, field := range c.EncryptedFields() {
		out, err := r.cipher.Reencrypt(*field)
		if err != nil {
			return from, fmt.Errorf("rotateOne: %w", err)
		}
		*field = out
	}
	c.KeyVersion = active

	if err := r.customers.UpdateCiphertext(ctx, tx, c); err != nil {
		return from, fmt.Errorf("rotateOne: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return from, fmt.Errorf("rotateOne: commit: %w", err)
	}
	return from, nil
}
