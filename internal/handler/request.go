package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
)

// HeaderAPIKey carries the shared secret checked by APIKeyAuth.
const HeaderAPIKey = "X-API-Key"

// APIKeyAuth rejects requests without the configured key: 401 when the header
// is missing and 403 when it does not match. An empty key disables the check.
func APIKeyAuth(apiKey string) fiber.Handler {
	expected := []byte(strings.TrimSpace(apiKey))

	return func(c *fiber.Ctx) error {
		if len(expected) == 0 {
			return c.Next()
		}

		provided := strings.TrimSpace(c.Get(HeaderAPIKey))
		if provided == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing api key")
		}
		if subtle.ConstantTimeCompare([]byte(provided), expected) != 1 {
			return fiber.NewError(fiber.StatusForbidden, "invalid api key")
		}
		return c.Next()
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if value := strings.TrimSpace(c.Get(fiber.HeaderXRequestID)); value != "" {
		return value
	}
	if value, ok := c.Locals("requestid").(string); ok {
		return strings.TrimSpace(value)
	}
	return ""
}

// requestContext is the request's user context carrying its correlation id.
func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if id := requestCorrelationID(c); id != "" {
		ctx = observability.WithCorrelationID(ctx, id)
	}
	return ctx
}

func httpStatusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return fiber.StatusBadRequest
	case errors.Is(err, domain.ErrTemplateNotFound), errors.Is(err, domain.ErrUnknownScope):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return fiber.StatusConflict
	case errors.Is(err, domain.ErrContentUnavailable):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func toHTTPError(err error) error {
	code := httpStatusFor(err)
	if code == fiber.StatusInternalServerError {
		return err
	}
	return fiber.NewError(code, err.Error())
}
