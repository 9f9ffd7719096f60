package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

func TestAllowed_Approve(t *testing.T) {
	p := Default(DefaultThresholds())

	tests := []struct {
		name   string
		role   domain.Role
		amount int64
		want   bool
	}{
		{"ops manager just under ceiling", domain.RoleOperationsManager, 99_999, true},
		{"ops manager at ceiling", domain.RoleOperationsManager, 100_000, false},
		{"ops manager above ceiling", domain.RoleOperationsManager, 750_000, false},
		{"manager any amount", domain.RoleManager, 1_000_000_000, true},
		{"teller never", domain.RoleTeller, 1, false},
		{"customer never", domain.RoleCustomer, 1, false},
		{"compliance never", domain.RoleComplianceOfficer, 1, false},
		{"auditor never", domain.RoleAuditor, 1, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, p.Allowed(tc.role, OpApprove, tc.amount))
		})
	}
}

func TestRequiresApproval(t *testing.T) {
	p := Default(DefaultThresholds())

	assert.False(t, p.RequiresApproval(domain.RoleTeller, 499_999))
	assert.True(t, p.RequiresApproval(domain.RoleTeller, 500_000))
	assert.True(t, p.RequiresApproval(domain.RoleManager, 750_000))
	assert.True(t, p.RequiresApproval(domain.RoleAuditor, 1), "roles without an initiate grant always need a checker")
}

func TestCan(t *testing.T) {
	p := Default(DefaultThresholds())

	assert.True(t, p.Can(domain.RoleComplianceOfficer, OpViewPII))
	assert.True(t, p.Can(domain.RoleAuditor, OpViewPII))
	assert.False(t, p.Can(domain.RoleTeller, OpViewPII))
	assert.False(t, p.Can(domain.RoleCustomer, OpManageFraud))
	assert.False(t, p.Can(domain.RoleOperationsManager, OpApprove), "bounded grants are not blanket permissions")
}

func TestParseThresholds(t *testing.T) {
	th, err := ParseThresholds("5000.00", "1000")
	require.NoError(t, err)
	assert.Equal(t, int64(500_000), th.ApprovalThreshold)
	assert.Equal(t, int64(100_000), th.OpsManagerApprovalCeiling)

	_, err = ParseThresholds("50.001", "1000")
	require.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestNew_CustomTable(t *testing.T) {
	p := New([]Grant{{domain.RoleTeller, OpApprove, Limit{Below: 10}}})

	assert.True(t, p.Allowed(domain.RoleTeller, OpApprove, 9))
	assert.False(t, p.Allowed(domain.RoleTeller, OpApprove, 10))
	assert.False(t, p.Allowed(domain.RoleManager, OpApprove, 1))
}
