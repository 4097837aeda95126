package handler

import (
	"errors"
	"net/http"

	"github.com/dafibh/loansync/internal/domain"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string            `json:"type"`
	Title    string            `json:"title"`
	Status   int               `json:"status"`
	Detail   string            `json:"detail,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Errors   []ValidationError `json:"errors,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error types
const (
	ErrorTypeValidation   = "https://loansync.app/errors/validation"
	ErrorTypeNotFound     = "https://loansync.app/errors/not-found"
	ErrorTypeUnauthorized = "https://loansync.app/errors/unauthorized"
	ErrorTypeConflict     = "https://loansync.app/errors/conflict"
	ErrorTypeUpstream     = "https://loansync.app/errors/upstream"
	ErrorTypeInternal     = "https://loansync.app/errors/internal"
)

// NewValidationError creates a validation error response
func NewValidationError(c echo.Context, detail string, errors []ValidationError) error {
	return c.JSON(http.StatusBadRequest, ProblemDetails{
		Type:     ErrorTypeValidation,
		Title:    "Validation Error",
		Status:   http.StatusBadRequest,
		Detail:   detail,
		Instance: c.Request().URL.Path,
		Errors:   errors,
	})
}

// NewNotFoundError creates a not found error response
func NewNotFoundError(c echo.Context, detail string) error {
	return c.JSON(http.StatusNotFound, ProblemDetails{
		Type:     ErrorTypeNotFound,
		Title:    "Not Found",
		Status:   http.StatusNotFound,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUnauthorizedError creates an unauthorized error response
func NewUnauthorizedError(c echo.Context, detail string) error {
	return c.JSON(http.StatusUnauthorized, ProblemDetails{
		Type:     ErrorTypeUnauthorized,
		Title:    "Unauthorized",
		Status:   http.StatusUnauthorized,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewConflictError creates a conflict error response
func NewConflictError(c echo.Context, detail string) error {
	return c.JSON(http.StatusConflict, ProblemDetails{
		Type:     ErrorTypeConflict,
		Title:    "Conflict",
		Status:   http.StatusConflict,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewUpstreamError creates a bad gateway response for drive failures
func NewUpstreamError(c echo.Context, detail string) error {
	return c.JSON(http.StatusBadGateway, ProblemDetails{
		Type:     ErrorTypeUpstream,
		Title:    "Drive Error",
		Status:   http.StatusBadGateway,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// NewInternalError creates an internal error response
func NewInternalError(c echo.Context, detail string) error {
	return c.JSON(http.StatusInternalServerError, ProblemDetails{
		Type:     ErrorTypeInternal,
		Title:    "Internal Server Error",
		Status:   http.StatusInternalServerError,
		Detail:   detail,
		Instance: c.Request().URL.Path,
	})
}

// termsField names the form field behind a terms validation error
func termsField(err error) string {
	switch {
	case errors.Is(err, domain.ErrLoanPrincipalInvalid):
		return "principal"
	case errors.Is(err, domain.ErrLoanPeriodsInvalid):
		return "periods"
	case errors.Is(err, domain.ErrLoanRateInvalid):
		return "annualRate"
	case errors.Is(err, domain.ErrRepaymentTypeInvalid):
		return "repaymentType"
	}
	return ""
}

// respondError maps service and drive errors to problem responses
func respondError(c echo.Context, err error) error {
	var remoteErr *domain.RemoteError

	switch {
	case errors.Is(err, domain.ErrLoanTermsInvalid):
		return NewValidationError(c, "Invalid loan terms", []ValidationError{
			{Field: termsField(err), Message: err.Error()},
		})
	case errors.Is(err, domain.ErrNameRequired),
		errors.Is(err, domain.ErrNameTooLong),
		errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrItemRefInvalid):
		return NewValidationError(c, err.Error(), nil)
	case errors.Is(err, domain.ErrItemNotFound):
		return NewNotFoundError(c, "Loan file not found")
	case errors.Is(err, domain.ErrViewNotOpen):
		return NewNotFoundError(c, "Loan view is not open")
	case errors.Is(err, domain.ErrUnauthorized),
		errors.Is(err, domain.ErrNoAccessToken),
		errors.Is(err, domain.ErrNotAuthenticated),
		errors.Is(err, domain.ErrSessionNotFound):
		return NewUnauthorizedError(c, "Session expired, please sign in again")
	case errors.Is(err, domain.ErrNoPaymentDue),
		errors.Is(err, domain.ErrNoPaymentToUndo),
		errors.Is(err, domain.ErrLoanCompleted),
		errors.Is(err, domain.ErrEditInProcess),
		errors.Is(err, domain.ErrNotEditing),
		errors.Is(err, domain.ErrRecordBound),
		errors.Is(err, domain.ErrNoRecord),
		errors.Is(err, domain.ErrNotBound),
		errors.Is(err, domain.ErrRenameFailed):
		return NewConflictError(c, err.Error())
	case errors.Is(err, domain.ErrContentTooLarge):
		return NewUpstreamError(c, err.Error())
	case errors.As(err, &remoteErr):
		return NewUpstreamError(c, remoteErr.Error())
	}

	log.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Request failed")
	return NewInternalError(c, "Something went wrong")
}
