package generation

import (
	"fmt"
	"net/http"
)

// Kind classifies why Generate failed.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindQuotaExceeded
	KindProfileStore
	KindProfileCreation
	KindBackend
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindQuotaExceeded:
		return "quota_exceeded"
	case KindProfileStore:
		return "profile_store_error"
	case KindProfileCreation:
		return "profile_creation_error"
	case KindBackend:
		return "backend_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// HTTPStatus maps a Kind onto the inbound API's status codes.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindQuotaExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Messages shown to API clients. Upstream details stay in the logs.
const (
	msgMissingFields   = "Missing fields"
	msgLimitReached    = "Monthly limit reached. Upgrade to Pro for more."
	msgProfileCreation = "Failed to create user profile"
	msgInvalidResponse = "Invalid AI Response"
	msgInternal        = "Internal Server Error"
)

// Error is returned by Service for every terminal failure.
type Error struct {
	Kind    Kind
	Message string // safe to show to the client
	Usage   *Usage // set for KindQuotaExceeded
	Err     error  // underlying cause, never shown to the client
}

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrValidation        = &Error{Kind: KindValidation}
	ErrQuotaExceeded     = &Error{Kind: KindQuotaExceeded}
	ErrProfileStore      = &Error{Kind: KindProfileStore}
	ErrProfileCreation   = &Error{Kind: KindProfileCreation}
	ErrBackend           = &Error{Kind: KindBackend}
	ErrMalformedResponse = &Error{Kind: KindMalformedResponse}
)

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func validationError(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func quotaError(current, limit int) *Error {
	return &Error{
		Kind:    KindQuotaExceeded,
		Message: msgLimitReached,
		Usage:   &Usage{Current: current, Limit: limit},
	}
}

func internalError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}
