package domain

import (
	"time"

	"github.com/google/uuid"
)

type RuleType string

const (
	RuleTypeAmountThreshold RuleType = "amount_threshold"
	RuleTypeVelocity        RuleType = "velocity"
	RuleTypeGeographic      RuleType = "geographic"
	RuleTypeTimeBased       RuleType = "time_based"
	RuleTypeAccountActivity RuleType = "account_activity"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank orders severities; unknown values rank zero.
func (s Severity) Rank() int { return severityRank[s] }

func (s Severity) IsValid() bool { return s.Rank() > 0 }

type FraudRule struct {
	ID                  uuid.UUID
	Name                string
	Type                RuleType
	Field               string
	Operator            string
	Value               string
	Severity            Severity
	AutoBlock           bool
	RequireApproval     bool
	EscalationThreshold int
	TriggerCount        int64
	FalsePositiveCount  int64
	LastTriggered       *time.Time
	IsActive            bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type FraudAlert struct {
	ID            uuid.UUID
	RuleID        uuid.UUID
	CustomerID    uuid.UUID
	TransactionID *uuid.UUID
	Message       string
	Severity      Severity
	IsResolved    bool
	FalsePositive bool
	ResolvedBy    *uuid.UUID
	ResolvedAt    *time.Time
	CreatedAt     time.Time
}
