package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/policy"
)

type fakeLister struct {
	entityType, entityID string
	limit                int
}

func (f *fakeLister) ListByEntity(_ context.Context, entityType, entityID string, limit int) ([]domain.AuditEntry, error) {
	f.entityType, f.entityID, f.limit = entityType, entityID, limit
	return []domain.AuditEntry{{EntityType: entityType, EntityID: entityID}}, nil
}

func TestReader_List(t *testing.T) {
	pol := policy.Default(policy.DefaultThresholds())

	tests := []struct {
		name      string
		role      domain.Role
		entity    string
		wantErrIs error
	}{
		{name: "auditor", role: domain.RoleAuditor, entity: "transaction"},
		{name: "teller refused", role: domain.RoleTeller, entity: "transaction", wantErrIs: domain.ErrPermissionDenied},
		{name: "customer refused", role: domain.RoleCustomer, entity: "transaction", wantErrIs: domain.ErrPermissionDenied},
		{name: "entity type required", role: domain.RoleAuditor, entity: " ", wantErrIs: domain.ErrInvalidRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := &fakeLister{}
			r := NewReader(store, pol)
			actor := teller
			actor.Role = tc.role

			entries, err := r.List(context.Background(), actor, tc.entity, "abc", 0)
			if tc.wantErrIs != nil {
				require.ErrorIs(t, err, tc.wantErrIs)
				assert.Empty(t, store.entityType)
				return
			}
			require.NoError(t, err)
			require.Len(t, entries, 1)
			assert.Equal(t, "transaction", store.entityType)
			assert.Equal(t, "abc", store.entityID)
			assert.Equal(t, 100, store.limit)
		})
	}
}
