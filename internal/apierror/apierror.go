package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	ErrNotFound            ErrorCode = "NOT_FOUND"
	ErrConflict            ErrorCode = "CONFLICT"
	ErrBadRequest          ErrorCode = "BAD_REQUEST"
	ErrInvalidInput        ErrorCode = "INVALID_INPUT"
	ErrInternalServer      ErrorCode = "INTERNAL_SERVER_ERROR"
	ErrInsufficientCredits ErrorCode = "INSUFFICIENT_CREDITS"
	ErrInvalidState        ErrorCode = "INVALID_STATE"
	ErrSkillFailure        ErrorCode = "SKILL_ERROR"
	ErrScheduleConfig      ErrorCode = "SCHEDULE_CONFIG"
)

type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	logrus.Error(details)
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// InsufficientCreditsDetails carries the amounts a client needs to prompt the
// user for a credit purchase.
type InsufficientCreditsDetails struct {
	Required  int64 `json:"required"`
	Available int64 `json:"available"`
}

// NewInsufficientCredits builds the ledger rejection for a debit the balance
// cannot cover.
func NewInsufficientCredits(required, available int64) APIError {
	return APIError{
		Code:    ErrInsufficientCredits,
		Message: fmt.Sprintf("insufficient credits: required %d, available %d", required, available),
		Details: InsufficientCreditsDetails{Required: required, Available: available},
	}
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrInvalidInput, ErrBadRequest, ErrScheduleConfig:
			return http.StatusBadRequest
		case ErrInsufficientCredits:
			return http.StatusPaymentRequired
		case ErrInvalidState:
			return http.StatusConflict
		case ErrSkillFailure:
			return http.StatusBadGateway
		case ErrInternalServer:
			return http.StatusInternalServerError
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
