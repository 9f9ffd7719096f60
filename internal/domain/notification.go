package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type NotificationKind string

const (
	NotificationTransactionCompleted NotificationKind = "transaction_completed"
	NotificationApprovalRequested    NotificationKind = "approval_requested"
	NotificationTransactionRejected  NotificationKind = "transaction_rejected"
)

type NotificationStatus string

const (
	NotificationStatusPending NotificationStatus = "pending"
	NotificationStatusSent    NotificationStatus = "sent"
	NotificationStatusFailed  NotificationStatus = "failed"
)

type Notification struct {
	ID            uuid.UUID
	Kind          NotificationKind
	TransactionID uuid.UUID
	Payload       json.RawMessage
	Status        NotificationStatus
	Attempts      int
	LastError     *string
	CreatedAt     time.Time
	SentAt        *time.Time
}
