package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type Role string

const (
	RoleCustomer          Role = "customer"
	RoleTeller            Role = "teller"
	RoleOperationsManager Role = "operations_manager"
	RoleManager           Role = "manager"
	RoleComplianceOfficer Role = "compliance_officer"
	RoleAuditor           Role = "auditor"
)

var roles = map[Role]struct{}{
	RoleCustomer:          {},
	RoleTeller:            {},
	RoleOperationsManager: {},
	RoleManager:           {},
	RoleComplianceOfficer: {},
	RoleAuditor:           {},
}

func ParseRole(s string) (Role, error) {
	r := Role(s)
	if _, ok := roles[r]; !ok {
		return "", fmt.Errorf("ParseRole: unknown role %q: %w", s, ErrInvalidRequest)
	}
	return r, nil
}

// Actor is the authenticated caller of a core operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
	IP   string
}

// SystemActor attributes work done by background workers.
var SystemActor = Actor{
	ID:   uuid.MustParse("00000000-0000-0000-0000-000000000001"),
	Role: RoleManager,
	IP:   "internal",
}
