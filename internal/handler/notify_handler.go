package handler

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/service"
	"go.uber.org/zap"
)

type NotifyService interface {
	Notify(ctx context.Context, req domain.Request) (*service.NotifyOutcome, error)
}

type NotifyHandler struct {
	service NotifyService
	logger  *zap.Logger
}

func NewNotifyHandler(service NotifyService, logger *zap.Logger) (*NotifyHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("notify service is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotifyHandler{service: service, logger: logger}, nil
}

func RegisterNotifyRoutes(router fiber.Router, service NotifyService, logger *zap.Logger) error {
	h, err := NewNotifyHandler(service, logger)
	if err != nil {
		return err
	}

	router.Post("/notify", h.Notify)
	return nil
}

// Notify answers 200 with the result of an immediate send, even when some or
// all recipients failed, and 202 with the workflow record for a future send.
// Every error answer keeps the result shape with an error message.
func (h *NotifyHandler) Notify(c *fiber.Ctx) error {
	var req domain.Request
	if err := c.BodyParser(&req); err != nil {
		if !errors.Is(err, domain.ErrInvalidRequest) {
			err = fmt.Errorf("%w: invalid request body", domain.ErrInvalidRequest)
		}
		return h.writeError(c, err)
	}

	outcome, err := h.service.Notify(requestContext(c), req)
	if err != nil {
		return h.writeError(c, err)
	}

	if outcome.Workflow != nil {
		return c.Status(fiber.StatusAccepted).JSON(toWorkflowResponse(outcome.Workflow))
	}
	return c.Status(fiber.StatusOK).JSON(outcome.Result)
}

func (h *NotifyHandler) writeError(c *fiber.Ctx, err error) error {
	code := httpStatusFor(err)

	result := domain.NewEmptyResult("nothing was sent")
	result.Error = err.Error()

	logger := observability.WithContextLogger(h.logger, requestContext(c))
	if code >= fiber.StatusInternalServerError {
		logger.Error("notify failed", zap.Int("status", code), zap.Error(err))
		if code == fiber.StatusInternalServerError {
			result.Error = "internal server error"
		}
	} else {
		logger.Info("notify rejected", zap.Int("status", code), zap.Error(err))
	}

	return c.Status(code).JSON(result)
}
