package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/josh-kwaku/grey-ledger/internal/domain"
)

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data"`
	Error   *APIError `json:"error"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func RespondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func RespondSuccess(w http.ResponseWriter, status int, data any) {
	RespondJSON(w, status, APIResponse{
		Success: true,
		Data:    data,
		Error:   nil,
	})
}

func RespondAppError(w http.ResponseWriter, appErr *AppError, details any) {
	RespondJSON(w, appErr.Status, APIResponse{
		Success: false,
		Data:    nil,
		Error: &APIError{
			Code:    appErr.Code,
			Message: appErr.Message,
			Details: details,
		},
	})
}

func RespondValidationError(w http.ResponseWriter, fields []FieldError) {
	RespondAppError(w, ErrValidationFailed, fields)
}

// RespondDomainError maps a service error onto its stable API code. Details
// are limited to data the caller already owns: a permission reason or the
// names of the fraud rules that blocked their own request.
func RespondDomainError(w http.ResponseWriter, err error) {
	var (
		appErr  *AppError
		details any
	)

	var permErr *domain.PermissionError
	var blocked *domain.FraudBlockedError

	switch {
	case errors.As(err, &permErr):
		appErr = ErrPermissionDenied
		details = map[string]string{"reason": permErr.Reason}
	case errors.Is(err, domain.ErrPermissionDenied):
		appErr = ErrPermissionDenied
	case errors.As(err, &blocked):
		appErr = ErrFraudBlocked
		details = map[string]any{"transaction_id": blocked.TransactionID, "rules": blocked.Rules}
	case errors.Is(err, domain.ErrFraudBlocked):
		appErr = ErrFraudBlocked
	case errors.Is(err, domain.ErrNotFound):
		appErr = ErrResourceNotFound
	case errors.Is(err, domain.ErrInvalidAmount):
		appErr = ErrInvalidAmount
	case errors.Is(err, domain.ErrInvalidAccountState):
		appErr = ErrInvalidAccountState
	case errors.Is(err, domain.ErrAccountInactive):
		appErr = ErrAccountInactive
	case errors.Is(err, domain.ErrInsufficientFunds):
		appErr = ErrInsufficientFunds
	case errors.Is(err, domain.ErrInvalidState):
		appErr = ErrInvalidState
	case errors.Is(err, domain.ErrRequestInFlight):
		appErr = ErrRequestInFlight
	case errors.Is(err, domain.ErrDuplicateRequest):
		appErr = ErrDuplicateRequest
	case errors.Is(err, domain.ErrDecryption):
		appErr = ErrDecryption
	case errors.Is(err, domain.ErrDuplicateCustomer):
		appErr = ErrDuplicateCustomer
	case errors.Is(err, domain.ErrInvalidRule):
		appErr = ErrInvalidRule
	case errors.Is(err, domain.ErrRejectionReasonEmpty):
		appErr = ErrRejectionReasonEmpty
	case errors.Is(err, domain.ErrVersionConflict):
		appErr = ErrVersionConflict
	case errors.Is(err, domain.ErrInvalidRequest):
		appErr = ErrInvalidRequest
	default:
		slog.Error("unhandled domain error", "error", err)
		appErr = ErrInternalError
	}

	RespondAppError(w, appErr, details)
}
