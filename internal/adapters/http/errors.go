package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/asierbarrena/oficios/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, conflict, etc.
	Message   string `json:"message"` // Human-readable message
	Retryable bool   `json:"retryable,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// errMissingIdentity flags a request without the gateway's identity
// assertion. Kept distinct from domain.ErrUnauthorized: this one is a 401
// (who are you), not a 403 (you may not).
var errMissingIdentity = errors.New("X-User-ID header is required")

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	reqID, _ := c.Locals("requestid").(string)
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		Retryable: code == "concurrency_conflict",
		RequestID: reqID,
	})
}

// errDomain maps core sentinel errors onto HTTP responses. Anything the
// taxonomy doesn't cover is a 500.
func errDomain(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, errMissingIdentity):
		return newError(c, 401, "unauthorized", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return newError(c, 404, "not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidCoordinate):
		return newError(c, 400, "invalid_coordinate", err.Error())
	case errors.Is(err, domain.ErrInvalidRadius):
		return newError(c, 400, "invalid_radius", err.Error())
	case errors.Is(err, domain.ErrDuplicateApplication):
		return newError(c, 409, "duplicate_application", err.Error())
	case errors.Is(err, domain.ErrRequestClosed):
		return newError(c, 409, "request_closed", err.Error())
	case errors.Is(err, domain.ErrUnauthorized):
		return newError(c, 403, "forbidden", err.Error())
	case errors.Is(err, domain.ErrIllegalTransition):
		return newError(c, 422, "illegal_transition", err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return newError(c, 409, "concurrency_conflict", err.Error())
	default:
		return newError(c, 500, "internal_error", err.Error())
	}
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}
