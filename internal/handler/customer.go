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

type customerService interface {
	Register(ctx context.Context, actor domain.Actor, cmd service.RegisterCustomerCommand) (*service.CustomerView, error)
	Get(ctx context.Context, actor domain.Actor, id uuid.UUID) (*service.CustomerView, error)
	FindByIdentityNumber(ctx context.Context, actor domain.Actor, identityNumber string) (*service.CustomerView, error)
	FindByPhone(ctx context.Context, actor domain.Actor, phone string) ([]service.CustomerView, error)
}

type CustomerHandler struct {
	customers customerService
}

func NewCustomerHandler(customers customerService) *CustomerHandler {
	return &CustomerHandler{customers: customers}
}

type registerCustomerRequest struct {
	FullName       string `json:"full_name"`
	IdentityNumber string `json:"identity_number"`
	Phone          string `json:"phone"`
	DateOfBirth    string `json:"date_of_birth"`
	Address        string `json:"address"`
	NextOfKinName  string `json:"next_of_kin_name"`
	NextOfKinPhone string `json:"next_of_kin_phone"`
	GuarantorName  string `json:"guarantor_name"`
	GuarantorPhone string `json:"guarantor_phone"`
}

func (r registerCustomerRequest) Validate() []FieldError {
	var errs []FieldError
	if r.FullName == "" {
		errs = append(errs, FieldError{Field: "full_name", Message: "required"})
	}
	if r.IdentityNumber == "" {
		errs = append(errs, FieldError{Field: "identity_number", Message: "required"})
	}
	if r.Phone == "" {
		errs = append(errs, FieldError{Field: "phone", Message: "required"})
	}
	if r.DateOfBirth != "" {
		if _, err := time.Parse(time.DateOnly, r.DateOfBirth); err != nil {
			errs = append(errs, FieldError{Field: "date_of_birth", Message: "must be YYYY-MM-DD"})
		}
	}
	return errs
}

// searchCustomerRequest travels in a POST body so identity numbers and
// phone numbers never land in access logs as query strings.
type searchCustomerRequest struct {
	IdentityNumber string `json:"identity_number"`
	Phone          string `json:"phone"`
}

type customerDTO struct {
	ID             uuid.UUID `json:"id"`
	FullName       string    `json:"full_name"`
	IdentityNumber string    `json:"identity_number"`
	Phone          string    `json:"phone"`
	DateOfBirth    string    `json:"date_of_birth,omitempty"`
	Address        string    `json:"address,omitempty"`
	NextOfKinName  string    `json:"next_of_kin_name,omitempty"`
	NextOfKinPhone string    `json:"next_of_kin_phone,omitempty"`
	GuarantorName  string    `json:"guarantor_name,omitempty"`
	GuarantorPhone string    `json:"guarantor_phone,omitempty"`
	Masked         bool      `json:"masked"`
	CreatedAt      time.Time `json:"created_at"`
}

func toCustomerDTO(v *service.CustomerView) customerDTO {
	return customerDTO{
		ID:             v.ID,
		FullName:       v.FullName,
		IdentityNumber: v.IdentityNumber,
		Phone:          v.Phone,
		DateOfBirth:    v.DateOfBirth,
		Address:        v.Address,
		NextOfKinName:  v.NextOfKinName,
		NextOfKinPhone: v.NextOfKinPhone,
		GuarantorName:  v.GuarantorName,
		GuarantorPhone: v.GuarantorPhone,
		Masked:         v.Masked,
		CreatedAt:      v.CreatedAt,
	}
}

func (h *CustomerHandler) Register(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req registerCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	if fields := req.Validate(); len(fields) > 0 {
		RespondValidationError(w, fields)
		return
	}

	view, err := h.customers.Register(r.Context(), actor, service.RegisterCustomerCommand{
		PII: domain.CustomerPII{
			FullName:       req.FullName,
			IdentityNumber: req.IdentityNumber,
			Phone:          req.Phone,
			DateOfBirth:    req.DateOfBirth,
			Address:        req.Address,
			NextOfKinName:  req.NextOfKinName,
			NextOfKinPhone: req.NextOfKinPhone,
			GuarantorName:  req.GuarantorName,
			GuarantorPhone: req.GuarantorPhone,
		},
	})
	if err != nil {
		logging.FromContext(r.Context()).Warn("customer registration failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	w.Header().Set("Location", fmt.Sprintf("/api/v1/customers/%s", view.ID))
	RespondSuccess(w, http.StatusCreated, toCustomerDTO(view))
}

func (h *CustomerHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	view, err := h.customers.Get(r.Context(), actor, id)
	if err != nil {
		logging.FromContext(r.Context()).Warn("customer lookup failed", "error", err)
		RespondDomainError(w, err)
		return
	}

	RespondSuccess(w, http.StatusOK, toCustomerDTO(view))
}

func (h *CustomerHandler) Search(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		RespondAppError(w, ErrMissingToken, nil)
		return
	}

	var req searchCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		RespondAppError(w, ErrInvalidRequest, nil)
		return
	}

	switch {
	case req.IdentityNumber != "":
		view, err := h.customers.FindByIdentityNumber(r.Context(), actor, req.IdentityNumber)
		if err != nil {
			logging.FromContext(r.Context()).Warn("customer search failed", "error", err)
			RespondDomainError(w, err)
			return
		}
		RespondSuccess(w, http.StatusOK, []customerDTO{toCustomerDTO(view)})
	case req.Phone != "":
		views, err := h.customers.FindByPhone(r.Context(), actor, req.Phone)
		if err != nil {
			logging.FromContext(r.Context()).Warn("customer search failed", "error", err)
			RespondDomainError(w, err)
			return
		}
		dtos := make([]customerDTO, len(views))
		for i := range views {
			dtos[i] = toCustomerDTO(&views[i])
		}
		RespondSuccess(w, http.StatusOK, dtos)
	default:
		RespondValidationError(w, []FieldError{{Field: "identity_number", Message: "identity_number or phone required"}})
	}
}
