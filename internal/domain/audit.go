package domain

import (
	"time"

	"github.com/google/uuid"
)

type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionUpdate     AuditAction = "update"
	AuditActionApprove    AuditAction = "approve"
	AuditActionReject     AuditAction = "reject"
	AuditActionBlock      AuditAction = "block"
	AuditActionResolve    AuditAction = "resolve"
	AuditActionDeactivate AuditAction = "deactivate"
	AuditActionRotate     AuditAction = "rotate"
)

// Change holds the before and after value of one field.
type Change struct {
	Old any `json:"old"`
	New any `json:"new"`
}

type ChangeSet map[string]Change

type AuditEntry struct {
	ID         uuid.UUID
	ActorID    uuid.UUID
	ActorRole  Role
	Action     AuditAction
	EntityType string
	EntityID   string
	Repr       string
	Changes    ChangeSet
	IPAddress  string
	CreatedAt  time.Time
}
