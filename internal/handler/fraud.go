package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/repository"
)

type fraudService interface {
	ListAlerts(ctx context.Context, actor domain.Actor, f repository.AlertFilter) ([]domain.FraudAlert, error)
	ResolveAlert(ctx context.Context, actor domain.Actor, alertID uuid.UUID, falsePositive bool) (*domain.FraudAlert, error)
	SetRuleActive(ctx context.Context, actor domain.Actor, ruleID uuid.UUID, active bool) (*domain.FraudRule, error)
}

type FraudHandler struct {
	fraud fraudService
}

func NewFraudHandler(fraud fraudService) *FraudHandler {
	return &FraudHandler{fraud: fraud}
}

type alertDTO struct {
	ID            uuid.UUID  `json:"id"`
	RuleID        uuid.UUID  `json:"rule_id"`
	CustomerID    uuid.UUID  `json:"customer_id"`
	TransactionID *uuid.UUID `json:"transaction_id,omitempty"`
	Message       string     `json:"message"`
	Severity      string     `json:"severity"`
	IsResolved    bool       `json:"is_resolved"`
	FalsePositive bool       `json:"false_positive"`
	ResolvedBy    *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toAlertDTO(a *domain.FraudAlert) alertDTO {
	return alertDTO{
		ID:            a.ID,
		RuleID:        a.RuleID,
		CustomerID:    a.CustomerID,
		TransactionID: a.TransactionID,
		Message:       a.Message,
		Severity:      string(a.Severity),
		IsResolved:    a.IsResolved,
		FalsePositive: a.FalsePositive,
		ResolvedBy:    a.ResolvedBy,
		ResolvedAt:    a.ResolvedAt,
		CreatedAt:     a.CreatedAt,
	}
}

type ruleDTO struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	Severity           string     `json:"severity"`
	IsActive           bool       `json:"is_active"`
	TriggerCount       int64      `json:"trigger_count"`
	FalsePositiveCount int64      `json:"false_positive_count"`
	LastTriggered      *time.Time `json:"last_triggered,omitempty"`
}

type resolveAlertRequest struct {
	FalsePositive bool `json:"false_positive"`
}

type setRuleActiveRequest struct {
	Active *bool `json:"active"`
}

func (h *FraudHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	filter, fields := parseAlertFilter(r)
	if len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	alerts, err := h.fraud.ListAlerts(r.Context(), actor, filter)
	if err != nil {
		logging.FromContext(r.Context()).Warn("alert listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]alertDTO, len(alerts))
	for i := range alerts {
		dtos[i] = toAlertDTO(&alerts[i])
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func parseAlertFilter(r *http.Request) (repository.AlertFilter, []FieldError) {
	var (
		f    repository.AlertFilter
		errs []FieldError
	)
	q := r.URL.Query()

	if v := q.Get("customer_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "customer_id", Message: "must be a UUID"})
		} else {
			f.CustomerID = &id
		}
	}
	if v := q.Get("transaction_id"); v != "" {
		id, err := uuid.Parse(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "transaction_id", Message: "must be a UUID"})
		} else {
			f.TransactionID = &id
		}
	}
	if v := q.Get("open"); v != "" {
		open, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, FieldError{Field: "open", Message: "must be true or false"})
		}
		f.OpenOnly = open
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			errs = append(errs, FieldError{Field: "limit", Message: "must be between 1 and 500"})
		}
		f.Limit = n
	}
	return f, errs
}

func (h *FraudHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req resolveAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	alert, err := h.fraud.ResolveAlert(r.Context(), actor, id, req.FalsePositive)
	if err != nil {
		logging.FromContext(r.Context()).Warn("alert resolution failed", "error", err, "alert_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAlertDTO(alert))
}

func (h *FraudHandler) SetRuleActive(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	var req setRuleActiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}
	if req.Active == nil {
		RespondValidationError(w, []FieldError{{Field: "active", Message: "required"}})
		return
	}

	rule, err := h.fraud.SetRuleActive(r.Context(), actor, id, *req.Active)
	if err != nil {
		logging.FromContext(r.Context()).Warn("rule update failed", "error", err, "rule_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, ruleDTO{
		ID:                 rule.ID,
		Name:               rule.Name,
		Type:               string(rule.Type),
		Severity:           string(rule.Severity),
		IsActive:           rule.IsActive,
		TriggerCount:       rule.TriggerCount,
		FalsePositiveCount: rule.FalsePositiveCount,
		LastTriggered:      rule.LastTriggered,
	})
}
