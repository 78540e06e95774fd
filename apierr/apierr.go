package apierr

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// Kind is the stable machine-readable error category exposed to API callers.
type Kind string

const (
	KindAuthentication Kind = "authentication" // 401
	KindBilling        Kind = "billing"        // 402
	KindPermission     Kind = "permission"     // 403
	KindValidation     Kind = "validation"     // 400
)

// Error is the API-facing error type: a kind, an HTTP status and a message
// safe to show to the caller (secrets redacted before construction).
type Error struct {
	Kind    Kind   `json:"kind"`
	Status  int    `json:"-"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func Authentication(format string, args ...any) *Error {
	return &Error{Kind: KindAuthentication, Status: fiber.StatusUnauthorized, Message: fmt.Sprintf(format, args...)}
}

func Billing(format string, args ...any) *Error {
	return &Error{Kind: KindBilling, Status: fiber.StatusPaymentRequired, Message: fmt.Sprintf(format, args...)}
}

func Permission(format string, args ...any) *Error {
	return &Error{Kind: KindPermission, Status: fiber.StatusForbidden, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Status: fiber.StatusBadRequest, Message: fmt.Sprintf(format, args...)}
}
