package domain

import (
	"time"

	"github.com/google/uuid"
)

type IdempotencyStatus string

const (
	IdempotencyStatusInFlight  IdempotencyStatus = "in_flight"
	IdempotencyStatusCompleted IdempotencyStatus = "completed"
)

type IdempotencyRecord struct {
	Key          string
	UserID       *uuid.UUID
	RequestHash  string
	Status       IdempotencyStatus
	StatusCode   int
	ResponseBody []byte

	// ReservationID fences writes to the holder that currently owns the key.
	ReservationID uuid.UUID
	ReservedAt    time.Time
	CreatedAt     time.Time
	ExpiresAt     time.Time
}
