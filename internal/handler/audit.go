package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
)

type auditReader interface {
	List(ctx context.Context, actor domain.Actor, entityType, entityID string, limit int) ([]domain.AuditEntry, error)
}

type AuditHandler struct {
	audit auditReader
}

func NewAuditHandler(audit auditReader) *AuditHandler {
	return &AuditHandler{audit: audit}
}

type auditEntryDTO struct {
	ID         uuid.UUID        `json:"id"`
	ActorID    uuid.UUID        `json:"actor_id"`
	ActorRole  string           `json:"actor_role"`
	Action     string           `json:"action"`
	EntityType string           `json:"entity_type"`
	EntityID   string           `json:"entity_id"`
	Repr       string           `json:"repr"`
	Changes    domain.ChangeSet `json:"changes"`
	IPAddress  string           `json:"ip_address"`
	CreatedAt  time.Time        `json:"created_at"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	q := r.URL.Query()
	if q.Get("entity_type") == "" {
		RespondValidationError(w, []FieldError{{Field: "entity_type", Message: "required"}})
		return
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			RespondValidationError(w, []FieldError{{Field: "limit", Message: "must be a positive integer"}})
			return
		}
		limit = n
	}

	entries, err := h.audit.List(r.Context(), actor, q.Get("entity_type"), q.Get("entity_id"), limit)
	if err != nil {
		logging.FromContext(r.Context()).Warn("audit listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]auditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = auditEntryDTO{
			ID:         e.ID,
			ActorID:    e.ActorID,
			ActorRole:  string(e.ActorRole),
			Action:     string(e.Action),
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Repr:       e.Repr,
			Changes:    e.Changes,
			IPAddress:  e.IPAddress,
			CreatedAt:  e.CreatedAt,
		}
	}
	RespondSuccess(w, http.StatusOK, dtos)
}
