// Package apierr maps domain errors onto HTTP statuses and error codes.
package apierr

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hongminglow/aria-characters/internal/account"
	"github.com/hongminglow/aria-characters/internal/auth"
	"github.com/hongminglow/aria-characters/internal/characters"
	"github.com/hongminglow/aria-characters/internal/errutil"
	"github.com/hongminglow/aria-characters/internal/http/respond"
	"github.com/hongminglow/aria-characters/internal/ratelimit"
)

// Error codes carried in the envelope's "error" field.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthenticated    = "UNAUTHENTICATED"
	CodeEmailTaken         = "EMAIL_TAKEN"
	CodeNotFound           = "NOT_FOUND"
	CodeValidation         = "VALIDATION_ERROR"
	CodeRateLimited        = "RATE_LIMITED"
	CodePayloadTooLarge    = "PAYLOAD_TOO_LARGE"
	CodeInternalError      = "INTERNAL_ERROR"
)

// Error is an error that already knows its HTTP representation.
type Error struct {
	Status  int
	Code    string
	Message string
	Details []string
}

func (e *Error) Error() string {
	return e.Message
}

// New creates an Error.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// InvalidInput creates a 400 error.
func InvalidInput(message string) error {
	return New(http.StatusBadRequest, CodeInvalidInput, message)
}

// Unauthenticated creates the 401 returned by the auth gate.
func Unauthenticated() error {
	return New(http.StatusUnauthorized, CodeUnauthenticated, "authentication required")
}

// From converts err into its HTTP representation. Anything unrecognised
// becomes an opaque 500.
func From(err error) *Error {
	var he *Error
	if errors.As(err, &he) {
		return he
	}

	var ve *characters.ValidationError
	if errors.As(err, &ve) {
		return &Error{
			Status:  http.StatusUnprocessableEntity,
			Code:    CodeValidation,
			Message: "character validation failed",
			Details: ve.Details,
		}
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return New(http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
	}

	switch {
	case errors.Is(err, account.ErrInvalidInput),
		errors.Is(err, characters.ErrInvalidPayload):
		return New(http.StatusBadRequest, CodeInvalidInput, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		return New(http.StatusUnauthorized, CodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		return New(http.StatusUnauthorized, CodeUnauthenticated, "invalid or expired token")
	case errors.Is(err, account.ErrEmailTaken):
		return New(http.StatusConflict, CodeEmailTaken, "email already registered")
	case errors.Is(err, account.ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, "user not found")
	case errors.Is(err, characters.ErrNotFound):
		return New(http.StatusNotFound, CodeNotFound, "character not found")
	case errors.Is(err, ratelimit.ErrLimited):
		return New(http.StatusTooManyRequests, CodeRateLimited, "too many attempts, try again later")
	default:
		return New(http.StatusInternalServerError, CodeInternalError, "internal server error")
	}
}

// Write renders err as an envelope. 500s are logged with their full
// context; the client only sees the opaque message.
func Write(ctx context.Context, w http.ResponseWriter, logger *slog.Logger, err error) {
	he := From(err)
	if he.Status >= http.StatusInternalServerError {
		if logger == nil {
			logger = slog.Default()
		}
		errutil.LogError(ctx, logger, "request failed", err)
	}
	if len(he.Details) > 0 {
		respond.ErrorWithData(w, he.Status, he.Code, he.Message, map[string]any{"details": he.Details})
		return
	}
	respond.Error(w, he.Status, he.Code, he.Message)
}
