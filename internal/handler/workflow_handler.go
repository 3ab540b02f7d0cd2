package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/service"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type WorkflowAdmin interface {
	Get(ctx context.Context, id string) (*domain.Workflow, error)
	List(ctx context.Context, filter service.WorkflowFilter) ([]domain.Workflow, error)
	Execute(ctx context.Context, id string) (*domain.Workflow, error)
	Retry(ctx context.Context, id string) (*domain.Workflow, error)
	Delete(ctx context.Context, id string) error
}

type WorkflowHandler struct {
	service WorkflowAdmin
}

func NewWorkflowHandler(service WorkflowAdmin) (*WorkflowHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("workflow service is required")
	}
	return &WorkflowHandler{service: service}, nil
}

func RegisterWorkflowRoutes(router fiber.Router, service WorkflowAdmin) error {
	h, err := NewWorkflowHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/workflows", h.ListWorkflows)
	v1.Get("/workflows/:id", h.GetWorkflow)
	v1.Post("/workflows/:id/execute", h.ExecuteWorkflow)
	v1.Post("/workflows/:id/retry", h.RetryWorkflow)
	v1.Delete("/workflows/:id", h.DeleteWorkflow)

	return nil
}

type workflowResponse struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Status      string          `json:"status"`
	GatheringID *string         `json:"gatheringId,omitempty"`
	CandidateID *string         `json:"candidateId,omitempty"`
	InitiatedBy string          `json:"initiatedBy,omitempty"`
	Request     json.RawMessage `json:"request,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       *string         `json:"error,omitempty"`
	ScheduledAt time.Time       `json:"scheduledAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

type listWorkflowsResponse struct {
	Data []workflowResponse `json:"data"`
}

func (h *WorkflowHandler) GetWorkflow(c *fiber.Ctx) error {
	workflow, err := h.service.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toWorkflowResponse(workflow))
}

func (h *WorkflowHandler) ListWorkflows(c *fiber.Ctx) error {
	filter, err := parseWorkflowFilter(c)
	if err != nil {
		return toHTTPError(err)
	}

	workflows, err := h.service.List(requestContext(c), filter)
	if err != nil {
		return toHTTPError(err)
	}

	data := make([]workflowResponse, 0, len(workflows))
	for i := range workflows {
		data = append(data, toWorkflowResponse(&workflows[i]))
	}
	return c.Status(fiber.StatusOK).JSON(listWorkflowsResponse{Data: data})
}

// ExecuteWorkflow runs a pending workflow now, without waiting for the scheduler.
func (h *WorkflowHandler) ExecuteWorkflow(c *fiber.Ctx) error {
	workflow, err := h.service.Execute(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusOK).JSON(toWorkflowResponse(workflow))
}

func (h *WorkflowHandler) RetryWorkflow(c *fiber.Ctx) error {
	workflow, err := h.service.Retry(requestContext(c), c.Params("id"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(fiber.StatusAccepted).JSON(toWorkflowResponse(workflow))
}

func (h *WorkflowHandler) DeleteWorkflow(c *fiber.Ctx) error {
	if err := h.service.Delete(requestContext(c), c.Params("id")); err != nil {
		return toHTTPError(err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseWorkflowFilter(c *fiber.Ctx) (service.WorkflowFilter, error) {
	filter := service.WorkflowFilter{
		GatheringID: strings.TrimSpace(c.Query("gatheringId")),
		CandidateID: strings.TrimSpace(c.Query("candidateId")),
		Limit:       c.QueryInt("limit", defaultListLimit),
	}
	if filter.Limit < 1 || filter.Limit > maxListLimit {
		return service.WorkflowFilter{}, fmt.Errorf("%w: limit must be between 1 and %d", domain.ErrInvalidRequest, maxListLimit)
	}

	if raw := strings.TrimSpace(c.Query("status")); raw != "" {
		status, err := domain.ParseWorkflowStatusFromString(raw)
		if err != nil {
			return service.WorkflowFilter{}, err
		}
		filter.Status = status
	}

	return filter, nil
}

func toWorkflowResponse(w *domain.Workflow) workflowResponse {
	if w == nil {
		return workflowResponse{}
	}

	return workflowResponse{
		ID:          w.ID,
		Kind:        w.Kind,
		Status:      w.Status.String(),
		GatheringID: w.GatheringID,
		CandidateID: w.CandidateID,
		InitiatedBy: w.InitiatedBy,
		Request:     rawJSON(w.Payload),
		Result:      rawJSON(w.Result),
		Error:       w.Error,
		ScheduledAt: w.ScheduledAt,
		StartedAt:   w.StartedAt,
		CompletedAt: w.CompletedAt,
		CreatedAt:   w.CreatedAt,
		UpdatedAt:   w.UpdatedAt,
	}
}

func rawJSON(b []byte) json.RawMessage {
	if len(b) == 0 || !json.Valid(b) {
		return nil
	}
	return json.RawMessage(b)
}
