// Package audit writes the append-only record of every state change.
package audit

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/redact"
)

type entryStore interface {
	Insert(ctx context.Context, e *domain.AuditEntry) error
}

type Entry struct {
	Actor      domain.Actor
	Action     domain.AuditAction
	EntityType string
	EntityID   string
	Repr       string
	Changes    domain.ChangeSet
}

type Recorder struct {
	store    entryStore
	timeout  time.Duration
	failures atomic.Int64
}

const defaultWriteTimeout = 5 * time.Second

func NewRecorder(store entryStore) *Recorder {
	return &Recorder{store: store, timeout: defaultWriteTimeout}
}

// Record persists a redacted entry. It never returns an error: a failed
// write is logged and counted, and the caller's operation stands. The write
// is detached from the caller's cancellation because by the time Record runs
// the audited mutation has already committed.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	entry := &domain.AuditEntry{
		ID:         uuid.New(),
		ActorID:    e.Actor.ID,
		ActorRole:  e.Actor.Role,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Repr:       e.Repr,
		Changes:    Redact(e.Changes),
		IPAddress:  e.Actor.IP,
		CreatedAt:  time.Now().UTC(),
	}

	if err := r.insert(writeCtx, entry); err != nil {
		r.failures.Add(1)
		logging.FromContext(ctx).Error("audit write failure",
			"error", fmt.Errorf("%w: %v", domain.ErrAuditWrite, err),
			"action", e.Action,
			"entity_type", e.EntityType,
			"entity_id", e.EntityID,
		)
	}
}

func (r *Recorder) insert(ctx context.Context, entry *domain.AuditEntry) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return r.store.Insert(ctx, entry)
}

// Failures is the number of entries lost since start, exported for monitoring.
func (r *Recorder) Failures() int64 {
	return r.failures.Load()
}

// Redact masks both sides of any change whose field name is sensitive and
// sanitizes nested structures inside the rest.
func Redact(cs domain.ChangeSet) domain.ChangeSet {
	out := make(domain.ChangeSet, len(cs))
	for field, ch := range cs {
		if redact.IsSensitive(field) {
			out[field] = domain.Change{Old: redact.Marker, New: redact.Marker}
			continue
		}
		out[field] = domain.Change{Old: redact.Value(ch.Old), New: redact.Value(ch.New)}
	}
	return out
}

// Created describes a new entity: every field goes from nil to its value.
func Created(fields map[string]any) domain.ChangeSet {
	cs := make(domain.ChangeSet, len(fields))
	for k, v := range fields {
		cs[k] = domain.Change{New: v}
	}
	return cs
}

// Diff keeps only the fields whose value changed between before and after.
func Diff(before, after map[string]any) domain.ChangeSet {
	cs := make(domain.ChangeSet)
	for k, nv := range after {
		ov, ok := before[k]
		if ok && fmt.Sprint(ov) == fmt.Sprint(nv) {
			continue
		}
		cs[k] = domain.Change{Old: ov, New: nv}
	}
	for k, ov := range before {
		if _, ok := after[k]; !ok {
			cs[k] = domain.Change{Old: ov}
		}
	}
	return cs
}
