package shared

import (
	"context"
	"errors"
	"fmt"

	"github.com/assetdesk/assetdesk/internal/platform/httpx"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = fmt.Errorf("invalid username or password: %w", httpx.ErrUnauthorized)
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")
)

// UserFacing marks errors whose message is safe to show to end users.
type UserFacing interface {
	error
	UserMessage() string
}

type userError struct {
	kind error
	msg  string
}

func (e *userError) Error() string       { return e.msg }
func (e *userError) Unwrap() error       { return e.kind }
func (e *userError) UserMessage() string { return e.msg }

// NewUserError wraps kind with a message that may be displayed as-is.
func NewUserError(kind error, msg string) error {
	return &userError{kind: kind, msg: msg}
}

// UserSafeMessage converts err into a message suitable for flashes and
// form errors. Unknown errors collapse to a generic text.
func UserSafeMessage(err error) string {
	if err == nil {
		return ""
	}
	var uf UserFacing
	if errors.As(err, &uf) {
		return uf.UserMessage()
	}
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid username or password."
	case errors.Is(err, ErrNotFound), errors.Is(err, httpx.ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, httpx.ErrDuplicate):
		return "A record with the same name already exists."
	case errors.Is(err, httpx.ErrIntegrity):
		return "The change was refused because it would break a safeguard."
	case errors.Is(err, httpx.ErrValidation):
		return "Some fields are invalid. Please check the form."
	case errors.Is(err, httpx.ErrForbidden):
		return "You do not have permission to perform this action."
	case errors.Is(err, httpx.ErrUnauthorized):
		return "Please sign in to continue."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "The request took too long. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
