package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrInvalidSignature  ErrorType = "INVALID_SIGNATURE"
	ErrExpired           ErrorType = "ORDER_EXPIRED"
	ErrSequenceMismatch  ErrorType = "SEQUENCE_MISMATCH"
	ErrAlreadySettled    ErrorType = "ALREADY_SETTLED"
	ErrPolicyRejected    ErrorType = "POLICY_REJECTED"
	ErrValueMismatch     ErrorType = "VALUE_MISMATCH"
	ErrNothingToWithdraw ErrorType = "NOTHING_TO_WITHDRAW"
	ErrPayoutFailed      ErrorType = "PAYOUT_FAILED"
	ErrUnauthorized      ErrorType = "UNAUTHORIZED"
	ErrZeroDestination   ErrorType = "ZERO_DESTINATION"
	ErrReentrant         ErrorType = "REENTRANT_CALL"
	ErrInsufficientFunds ErrorType = "INSUFFICIENT_GENERAL_FUNDS"

	ErrAuthFailed     ErrorType = "AUTH_FAILED"
	ErrSystemPanic    ErrorType = "SYSTEM_PANIC"
	ErrInvalidRequest ErrorType = "INVALID_REQUEST"
	ErrInternal       ErrorType = "INTERNAL_ERROR"
	ErrNotFound       ErrorType = "NOT_FOUND"
	ErrUpstream       ErrorType = "UPSTREAM_ERROR"
	ErrReadOnly       ErrorType = "READ_ONLY"
	ErrRateLimited    ErrorType = "RATE_LIMITED"
	ErrConflict       ErrorType = "IDEMPOTENCY_CONFLICT"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewAuthFailed(msg string) *AppError {
	return New(ErrAuthFailed, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidSignature, ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrUnauthorized:
		return http.StatusForbidden
	case ErrExpired, ErrValueMismatch, ErrZeroDestination, ErrInvalidRequest:
		return http.StatusBadRequest
	case ErrSequenceMismatch, ErrAlreadySettled, ErrReentrant, ErrConflict, ErrInsufficientFunds:
		return http.StatusConflict
	case ErrPolicyRejected, ErrNothingToWithdraw:
		return http.StatusUnprocessableEntity
	case ErrNotFound:
		return http.StatusNotFound
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrPayoutFailed, ErrUpstream:
		return http.StatusBadGateway
	case ErrSystemPanic, ErrReadOnly:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrInvalidSignature:
		return "Sign the order's EIP-712 digest for this deployment with the signer key."
	case ErrExpired:
		return "Construct a new order with a later expiry."
	case ErrSequenceMismatch:
		return "Construct a new order with the current sequence."
	case ErrAlreadySettled:
		return "This order was already settled; do not resubmit."
	case ErrPolicyRejected:
		return "Check the order against the configured policy."
	case ErrValueMismatch:
		return "Attach exactly the claimed amount."
	case ErrPayoutFailed:
		return "Retry the withdrawal unchanged."
	case ErrReentrant:
		return "Wait for the in-flight request to finish."
	case ErrAuthFailed:
		return "Check caller headers and signatures."
	case ErrRateLimited:
		return "Slow down and retry later."
	case ErrSystemPanic, ErrReadOnly:
		return "Wait for system recovery."
	default:
		return ""
	}
}
