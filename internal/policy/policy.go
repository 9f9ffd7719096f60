// Package policy holds the role authority table. Every "may this role do
// this for this amount" question in the engine is answered here.
package policy

import (
	"fmt"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type Operation string

const (
	// OpInitiate posts a transaction without a second signature.
	OpInitiate    Operation = "initiate"
	OpApprove     Operation = "approve"
	OpReject      Operation = "reject"
	OpViewPII     Operation = "view_pii"
	OpManageFraud Operation = "manage_fraud"
	OpViewAudit   Operation = "view_audit"
	OpOnboard     Operation = "onboard"
)

// Limit bounds the amount a grant covers. Below is exclusive.
type Limit struct {
	Unlimited bool
	Below     int64
}

func (l Limit) covers(amount int64) bool {
	return l.Unlimited || amount < l.Below
}

type Grant struct {
	Role      domain.Role
	Operation Operation
	Limit     Limit
}

type key struct {
	role domain.Role
	op   Operation
}

type Policy struct {
	grants map[key]Limit
}

func New(grants []Grant) *Policy {
	p := &Policy{grants: make(map[key]Limit, len(grants))}
	for _, g := range grants {
		p.grants[key{g.Role, g.Operation}] = g.Limit
	}
	return p
}

// Thresholds are the configurable amounts behind the default table, in minor units.
type Thresholds struct {
	ApprovalThreshold         int64
	OpsManagerApprovalCeiling int64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ApprovalThreshold:         500_000,
		OpsManagerApprovalCeiling: 100_000,
	}
}

func ParseThresholds(approvalThreshold, opsCeiling string) (Thresholds, error) {
	at, err := domain.ParseAmount(approvalThreshold)
	if err != nil {
		return Thresholds{}, fmt.Errorf("ParseThresholds: approval threshold: %w", err)
	}
	oc, err := domain.ParseAmount(opsCeiling)
	if err != nil {
		return Thresholds{}, fmt.Errorf("ParseThresholds: ops manager ceiling: %w", err)
	}
	return Thresholds{ApprovalThreshold: at, OpsManagerApprovalCeiling: oc}, nil
}

// Default builds the bank's standard authority table.
func Default(t Thresholds) *Policy {
	unlimited := Limit{Unlimited: true}
	initiate := Limit{Below: t.ApprovalThreshold}

	return New([]Grant{
		{domain.RoleCustomer, OpInitiate, initiate},
		{domain.RoleTeller, OpInitiate, initiate},
		{domain.RoleOperationsManager, OpInitiate, initiate},
		{domain.RoleManager, OpInitiate, initiate},

		{domain.RoleOperationsManager, OpApprove, Limit{Below: t.OpsManagerApprovalCeiling}},
		{domain.RoleManager, OpApprove, unlimited},

		{domain.RoleOperationsManager, OpReject, unlimited},
		{domain.RoleManager, OpReject, unlimited},

		{domain.RoleComplianceOfficer, OpViewPII, unlimited},
		{domain.RoleAuditor, OpViewPII, unlimited},

		{domain.RoleComplianceOfficer, OpManageFraud, unlimited},
		{domain.RoleManager, OpManageFraud, unlimited},

		{domain.RoleComplianceOfficer, OpViewAudit, unlimited},
		{domain.RoleAuditor, OpViewAudit, unlimited},
		{domain.RoleManager, OpViewAudit, unlimited},

		{domain.RoleTeller, OpOnboard, unlimited},
		{domain.RoleOperationsManager, OpOnboard, unlimited},
		{domain.RoleManager, OpOnboard, unlimited},
	})
}

// Allowed is a pure lookup of (role, operation, amount).
func (p *Policy) Allowed(role domain.Role, op Operation, amount int64) bool {
	limit, ok := p.grants[key{role, op}]
	if !ok {
		return false
	}
	return limit.covers(amount)
}

// Can answers amount-free questions such as viewing PII.
func (p *Policy) Can(role domain.Role, op Operation) bool {
	limit, ok := p.grants[key{role, op}]
	return ok && limit.Unlimited
}

// RequiresApproval reports whether a transaction initiated by role must wait for a checker.
func (p *Policy) RequiresApproval(role domain.Role, amount int64) bool {
	return !p.Allowed(role, OpInitiate, amount)
}
