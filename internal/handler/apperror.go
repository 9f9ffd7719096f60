package handler

import "net/http"

type AppError struct {
	Status  int
	Code    string
	Message string
}

func (e *AppError) Error() string { return e.Message }

var (
	ErrMissingToken     = &AppError{http.StatusUnauthorized, "MISSING_TOKEN", "Authorization header required"}
	ErrInvalidToken     = &AppError{http.StatusUnauthorized, "INVALID_TOKEN", "Token is invalid or expired"}
	ErrInvalidRequest   = &AppError{http.StatusBadRequest, "INVALID_REQUEST", "Invalid request body"}
	ErrValidationFailed = &AppError{http.StatusBadRequest, "VALIDATION_FAILED", "Validation failed"}
	ErrResourceNotFound = &AppError{http.StatusNotFound, "RESOURCE_NOT_FOUND", "Resource not found"}
	ErrInternalError    = &AppError{http.StatusInternalServerError, "INTERNAL_ERROR", "An unexpected error occurred"}

	ErrInvalidAmount        = &AppError{http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be greater than zero with at most two decimal places"}
	ErrInvalidAccountState  = &AppError{http.StatusUnprocessableEntity, "INVALID_ACCOUNT_STATE", "Accounts do not match the transaction type"}
	ErrAccountInactive      = &AppError{http.StatusUnprocessableEntity, "ACCOUNT_INACTIVE", "Account is inactive"}
	ErrInsufficientFunds    = &AppError{http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS", "Insufficient funds"}
	ErrPermissionDenied     = &AppError{http.StatusForbidden, "PERMISSION_DENIED", "Permission denied"}
	ErrInvalidState         = &AppError{http.StatusConflict, "INVALID_STATE", "Operation not allowed in the current state"}
	ErrFraudBlocked         = &AppError{http.StatusUnprocessableEntity, "FRAUD_BLOCKED", "Transaction blocked by fraud screening"}
	ErrDecryption           = &AppError{http.StatusInternalServerError, "DECRYPTION_ERROR", "Protected field could not be read"}
	ErrDuplicateCustomer    = &AppError{http.StatusConflict, "DUPLICATE_CUSTOMER", "Customer already registered"}
	ErrInvalidRule          = &AppError{http.StatusBadRequest, "INVALID_RULE", "Fraud rule definition is invalid"}
	ErrRejectionReasonEmpty = &AppError{http.StatusBadRequest, "REJECTION_REASON_REQUIRED", "A rejection reason is required"}
	ErrVersionConflict      = &AppError{http.StatusConflict, "VERSION_CONFLICT", "Resource was modified concurrently, please retry"}

	ErrMissingIdempotencyKey = &AppError{http.StatusBadRequest, "MISSING_IDEMPOTENCY_KEY", "Idempotency-Key header is required"}
	ErrRequestInFlight       = &AppError{http.StatusConflict, "REQUEST_IN_FLIGHT", "A request with this idempotency key is still being processed"}
	ErrDuplicateRequest      = &AppError{http.StatusUnprocessableEntity, "DUPLICATE_REQUEST", "Idempotency key already used with a different request"}
)
