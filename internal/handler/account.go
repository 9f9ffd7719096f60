package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/josh-kwaku/grey-ledger/internal/auth"
	"github.com/josh-kwaku/grey-ledger/internal/domain"
	"github.com/josh-kwaku/grey-ledger/internal/logging"
	"github.com/josh-kwaku/grey-ledger/internal/service"
)

type accountService interface {
	Open(ctx context.Context, actor domain.Actor, cmd service.OpenAccountCommand) (*domain.Account, error)
	Deactivate(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*domain.Account, error)
	Reconcile(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*service.Reconciliation, error)
	GetAccountByID(ctx context.Context, actor domain.Actor, accountID uuid.UUID) (*service.AccountView, error)
	GetCustomerAccounts(ctx context.Context, actor domain.Actor, customerID uuid.UUID) ([]service.AccountView, error)
}

type AccountHandler struct {
	accounts accountService
}

func NewAccountHandler(accounts accountService) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

type openAccountRequest struct {
	CustomerID     uuid.UUID `json:"customer_id"`
	AccountType    string    `json:"account_type"`
	OpeningBalance string    `json:"opening_balance"`
}

func (r openAccountRequest) Validate() []FieldError {
	var errs []FieldError
	if r.CustomerID == uuid.Nil {
		errs = append(errs, FieldError{Field: "customer_id", Message: "required"})
	}
	if r.AccountType == "" {
		errs = append(errs, FieldError{Field: "account_type", Message: "required"})
	} else if !domain.AccountType(r.AccountType).IsValid() {
		errs = append(errs, FieldError{Field: "account_type", Message: "must be savings, current, susu, or settlement"})
	}
	return errs
}

type accountDTO struct {
	ID            uuid.UUID `json:"id"`
	CustomerID    uuid.UUID `json:"customer_id"`
	AccountNumber string    `json:"account_number"`
	AccountType   string    `json:"account_type"`
	Balance       string    `json:"balance"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
}

func toAccountDTO(a *domain.Account) accountDTO {
	return accountDTO{
		ID:            a.ID,
		CustomerID:    a.CustomerID,
		AccountNumber: a.AccountNumber,
		AccountType:   string(a.AccountType),
		Balance:       domain.FormatAmount(a.Balance),
		IsActive:      a.IsActive,
		CreatedAt:     a.CreatedAt,
	}
}

type reconciliationDTO struct {
	AccountID      uuid.UUID `json:"account_id"`
	InitialBalance string    `json:"initial_balance"`
	Credits        string    `json:"credits"`
	Debits         string    `json:"debits"`
	Expected       string    `json:"expected"`
	Actual         string    `json:"actual"`
	Balanced       bool      `json:"balanced"`
}

func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req openAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	var opening int64
	if req.OpeningBalance != "" {
		amount, err := domain.ParseAmount(req.OpeningBalance)
		if err != nil {
			RespondDomainError(w, err)
			return
		}
		opening = amount
	}

	account, err := h.accounts.Open(r.Context(), actor, service.OpenAccountCommand{
		CustomerID:     req.CustomerID,
		AccountType:    domain.AccountType(req.AccountType),
		OpeningBalance: opening,
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("account opening failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/accounts/%s", account.ID))
	RespondSuccess(w, http.StatusCreated, toAccountDTO(account))
}

func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.accounts.GetAccountByID(r.Context(), actor, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(&view.Account))
}

func (h *AccountHandler) ListForCustomer(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	customerID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		RespondAppError(w, ErrResourceNotFound, nil)
		return
	}

	views, err := h.accounts.GetCustomerAccounts(r.Context(), actor, customerID)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account listing failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	dtos := make([]accountDTO, len(views))
	for i := range views {
		dtos[i] = toAccountDTO(&views[i].Account)
	}
	RespondSuccess(w, http.StatusOK, dtos)
}

func (h *AccountHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
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

	account, err := h.accounts.Deactivate(r.Context(), actor, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("account deactivation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toAccountDTO(account))
}

func (h *AccountHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
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

	rec, err := h.accounts.Reconcile(r.Context(), actor, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("reconciliation failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, reconciliationDTO{
		AccountID:      rec.AccountID,
		InitialBalance: domain.FormatAmount(rec.InitialBalance),
		Credits:        domain.FormatAmount(rec.Credits),
		Debits:         domain.FormatAmount(rec.Debits),
		Expected:       domain.FormatAmount(rec.Expected),
		Actual:         domain.FormatAmount(rec.Actual),
		Balanced:       rec.Balanced(),
	})
}
