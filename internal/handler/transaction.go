package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/service/ledger"
)

type ledgerService interface {
	CreateTransaction(ctx context.Context, cmd ledger.CreateTransactionCommand, actor domain.Actor) (*ledger.Result, error)
	Approve(ctx context.Context, txnID uuid.UUID, approver domain.Actor) (*ledger.Result, error)
	Reject(ctx context.Context, txnID uuid.UUID, approver domain.Actor, reason string) (*ledger.Result, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*ledger.Result, error)
}

type TransactionHandler struct {
	ledger ledgerService
}

func NewTransactionHandler(svc ledgerService) *TransactionHandler {
	return &TransactionHandler{ledger: svc}
}

type createTransactionRequest struct {
	Type          string     `json:"type"`
	FromAccountID *uuid.UUID `json:"from_account_id"`
	ToAccountID   *uuid.UUID `json:"to_account_id"`
	// Amount is a decimal string in major units, e.g. "999.99".
	Amount        string `json:"amount"`
	Description   string `json:"description"`
	OriginCountry string `json:"origin_country"`
}

func (r createTransactionRequest) Validate() []FieldError {
	var errs []FieldError

	if r.Type == "" {
		errs = append(errs, FieldError{Field: "type", Message: "required"})
	} else if !domain.TransactionType(r.Type).IsValid() {
		errs = append(errs, FieldError{Field: "type", Message: "must be deposit, withdrawal, or transfer"})
	}

	if r.Amount == "" {
		errs = append(errs, FieldError{Field: "amount", Message: "required"})
	}

	return errs
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

type balanceDTO struct {
	AccountID uuid.UUID `json:"account_id"`
	Account   string    `json:"account"`
	Balance   string    `json:"balance"`
}

type transactionDTO struct {
	TransactionID   uuid.UUID         `json:"transaction_id"`
	Type            string            `json:"type"`
	Status          string            `json:"status"`
	Amount          string            `json:"amount"`
	FromAccount     string            `json:"from_account,omitempty"`
	ToAccount       string            `json:"to_account,omitempty"`
	BalancesAfter   []balanceDTO      `json:"balances_after,omitempty"`
	RejectionReason *string           `json:"rejection_reason,omitempty"`
	FailureReason   *string           `json:"failure_reason,omitempty"`
	ApprovedBy      *uuid.UUID        `json:"approved_by,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	ProcessedAt     *time.Time        `json:"processed_at,omitempty"`
}

func toTransactionDTO(r *ledger.Result) transactionDTO {
	dto := transactionDTO{
		TransactionID:   r.TransactionID,
		Type:            string(r.Type),
		Status:          string(r.Status),
		Amount:          domain.FormatAmount(r.Amount),
		FromAccount:     r.FromAccount,
		ToAccount:       r.ToAccount,
		RejectionReason: r.RejectionReason,
		FailureReason:   r.FailureReason,
		ApprovedBy:      r.ApprovedBy,
		CreatedAt:       r.CreatedAt,
		ProcessedAt:     r.ProcessedAt,
	}
	for _, b := range r.BalancesAfter {
		dto.BalancesAfter = append(dto.BalancesAfter, balanceDTO{
			AccountID: b.AccountID,
			Account:   b.Account,
			Balance:   domain.FormatAmount(b.Balance),
		})
	}
	return dto
}

func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req createTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		RespondDomainError(w, err)
		return
	}

	country := req.OriginCountry
	if country == "" {
		country = r.Header.Get("X-Origin-Country")
	}

	res, err := h.ledger.CreateTransaction(r.Context(), ledger.CreateTransactionCommand{
		Type:          domain.TransactionType(req.Type),
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Description:   strings.TrimSpace(req.Description),
		OriginCountry: country,
	}, actor)
	if err != nil {
		log.Warn("transaction creation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	status := http.StatusCreated
	if res.Status == domain.TransactionStatusPendingApproval {
		status = http.StatusAccepted
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/transactions/%s", res.TransactionID))
	RespondSuccess(w, status, toTransactionDTO(res))
}

func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.ledger.Get(r.Context(), actor, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("transaction lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(res))
}

func (h *TransactionHandler) Approve(w http.ResponseWriter, r *http.Request) {
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

	res, err := h.ledger.Approve(r.Context(), id, actor)
	if err != nil {
		logging.FromContext(r.Context()).Warn("approval failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(res))
}

func (h *TransactionHandler) Reject(w http.ResponseWriter, r *http.Request) {
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

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	res, err := h.ledger.Reject(r.Context(), id, actor, req.Reason)
	if err != nil {
		logging.FromContext(r.Context()).Warn("rejection failed", "error", err, "transaction_id", id)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toTransactionDTO(res))
}
