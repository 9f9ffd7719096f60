package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

const auditColumns = `id, actor_id, actor_role, action, entity_type, entity_id,
	repr, changes, ip_address, created_at`

// AuditRepository is append-only: it exposes Insert and List, nothing else.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) Insert(ctx context.Context, e *domain.AuditEntry) error {
	changes, err := json.Marshal(e.Changes)
	if err != nil {
		return fmt.Errorf("Insert: marshal changes: %w", err)
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO audit_log (`+auditColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ActorID, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		e.Repr, changes, e.IPAddress, e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}
	return nil
}

func (r *AuditRepository) ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+auditColumns+` FROM audit_log
		WHERE entity_type = $1 AND ($2 = '' OR entity_id = $2)
		ORDER BY created_at DESC LIMIT $3`,
		entityType, entityID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("ListByEntity: %w", err)
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var changes []byte
		if err := rows.Scan(
			&e.ID, &e.ActorID, &e.ActorRole, &e.Action, &e.EntityType, &e.EntityID,
			&e.Repr, &changes, &e.IPAddress, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListByEntity: scan: %w", err)
		}
		if err := json.Unmarshal(changes, &e.Changes); err != nil {
			return nil, fmt.Errorf("ListByEntity: unmarshal changes: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListByEntity: rows: %w", err)
	}
	return entries, nil
}
