package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

type entryLister interface {
	ListByEntity(ctx context.Context, entityType, entityID string, limit int) ([]domain.AuditEntry, error)
}

// Reader serves the audit trail to roles allowed to review it. Entries are
// already redacted at write time, so nothing is masked on the way out.
type Reader struct {
	store  entryLister
	policy *policy.Policy
}

func NewReader(store entryLister, p *policy.Policy) *Reader {
	return &Reader{store: store, policy: p}
}

const maxListLimit = 500

func (r *Reader) List(ctx context.Context, actor domain.Actor, entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	if !r.policy.Can(actor.Role, policy.OpViewAudit) {
		return nil, fmt.Errorf("List: %w", domain.DenyPermission("role may not view the audit log"))
	}
	entityType = strings.TrimSpace(entityType)
	if entityType == "" {
		return nil, fmt.Errorf("List: entity_type required: %w", domain.ErrInvalidRequest)
	}
	if limit <= 0 || limit > maxListLimit {
		limit = 100
	}

	entries, err := r.store.ListByEntity(ctx, entityType, strings.TrimSpace(entityID), limit)
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}
	return entries, nil
}
