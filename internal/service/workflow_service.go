package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/community-notify/internal/domain"
	"github.com/kursadbilgin/community-notify/internal/observability"
	"github.com/kursadbilgin/community-notify/internal/repository"
	"go.uber.org/zap"
)

// NotifyOutcome is the answer to a submitted request: a result when it ran
// immediately, or the pending workflow when it was scheduled.
type NotifyOutcome struct {
	Result   *domain.Result
	Workflow *domain.Workflow
}

// WorkflowFilter selects workflows by status or associated entity.
type WorkflowFilter struct {
	Status      domain.WorkflowStatus
	GatheringID string
	CandidateID string
	Limit       int
}

type WorkflowService struct {
	workflows repository.WorkflowRepository
	receipts  repository.ReceiptRepository
	notifier  Notifier
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewWorkflowService(
	workflows repository.WorkflowRepository,
	receipts repository.ReceiptRepository,
	notifier Notifier,
	logger *zap.Logger,
) (*WorkflowService, error) {
	if workflows == nil {
		return nil, fmt.Errorf("workflow repository is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &WorkflowService{
		workflows: workflows,
		receipts:  receipts,
		notifier:  notifier,
		logger:    logger,
		now:       time.Now,
	}, nil
}

func (s *WorkflowService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Notify sends req now, or records it for later when it is scheduled in the future.
func (s *WorkflowService) Notify(ctx context.Context, req domain.Request) (*NotifyOutcome, error) {
	if req.IsScheduledAfter(s.now()) {
		workflow, err := s.Schedule(ctx, req)
		if err != nil {
			return nil, err
		}
		return &NotifyOutcome{Workflow: workflow}, nil
	}

	result, err := s.SendNow(ctx, req)
	if err != nil {
		return nil, err
	}
	return &NotifyOutcome{Result: &result}, nil
}

// Schedule validates req and stores it as a pending workflow. Nothing is sent.
func (s *WorkflowService) Schedule(ctx context.Context, req domain.Request) (*domain.Workflow, error) {
	if err := s.notifier.Check(ctx, req); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot request: %w", err)
	}

	now := s.now().UTC()
	scheduledAt := now
	if req.ScheduledAt != nil {
		scheduledAt = req.ScheduledAt.UTC()
	}

	ref := associatedEntity(req)
	workflow := &domain.Workflow{
		Kind:        domain.DefaultWorkflowKind,
		Status:      domain.WorkflowPending,
		GatheringID: optionalString(ref.GatheringID),
		CandidateID: optionalString(ref.CandidateID),
		InitiatedBy: strings.TrimSpace(req.InitiatedBy),
		Payload:     payload,
		ScheduledAt: scheduledAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if _, err := s.workflows.Create(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to store workflow: %w", err)
	}
	s.metrics.IncWorkflowTransition(domain.WorkflowPending.String())

	observability.WithContextLogger(s.logger, ctx).Info("workflow scheduled",
		zap.String("workflowId", workflow.ID),
		zap.Time("scheduledAt", workflow.ScheduledAt),
	)
	return workflow, nil
}

// SendNow runs req immediately without a workflow record.
func (s *WorkflowService) SendNow(ctx context.Context, req domain.Request) (domain.Result, error) {
	result, err := s.notifier.Orchestrate(ctx, req)
	if err != nil {
		return domain.Result{}, err
	}
	s.recordReceipts(ctx, nil, result)
	return result, nil
}

// Execute claims a pending workflow and runs its snapshot. Only one caller
// can claim a given workflow; the others get ErrConflict.
func (s *WorkflowService) Execute(ctx context.Context, id string) (*domain.Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: workflow id is required", domain.ErrInvalidRequest)
	}

	claimed, err := s.workflows.TransitionStatus(ctx, id, domain.WorkflowPending, domain.WorkflowExecuting)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, fmt.Errorf("%w: workflow %s is not pending", domain.ErrConflict, id)
	}
	s.metrics.IncWorkflowTransition(domain.WorkflowExecuting.String())

	ctx = observability.WithWorkflowID(ctx, id)
	logger := observability.WithContextLogger(s.logger, ctx)
	logger.Info("workflow executing")

	workflow, err := s.workflows.GetByID(ctx, id)
	if err != nil {
		return nil, s.finish(ctx, id, nil, fmt.Errorf("failed to load claimed workflow: %w", err))
	}

	var req domain.Request
	if err := json.Unmarshal(workflow.Payload, &req); err != nil {
		return nil, s.finish(ctx, id, nil, fmt.Errorf("%w: corrupt workflow payload: %v", domain.ErrInvalidRequest, err))
	}

	result, runErr := s.notifier.Orchestrate(ctx, req)
	if runErr == nil {
		s.recordReceipts(ctx, &id, result)
	}
	if err := s.finish(ctx, id, &result, runErr); err != nil {
		return nil, err
	}

	return s.workflows.GetByID(context.WithoutCancel(ctx), id)
}

// finish writes the terminal status. It returns runErr, or the write error
// when the status could not be stored.
func (s *WorkflowService) finish(ctx context.Context, id string, result *domain.Result, runErr error) error {
	// The outcome must be stored even when the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	logger := observability.WithContextLogger(s.logger, ctx)

	status := domain.WorkflowCompleted
	completedAt := s.now().UTC()
	update := domain.WorkflowUpdate{CompletedAt: &completedAt}

	switch {
	case runErr != nil:
		status = domain.WorkflowFailed
		message := runErr.Error()
		update.Error = &message
		failed := domain.NewEmptyResult("nothing was sent")
		failed.Error = message
		result = &failed
	case result != nil && !result.Success:
		status = domain.WorkflowFailed
		message := result.Message
		update.Error = &message
	}
	update.Status = &status

	if result != nil {
		raw, err := json.Marshal(result)
		if err == nil {
			update.Result = raw
		}
	}

	if err := s.workflows.Update(ctx, id, update); err != nil {
		logger.Error("failed to store workflow outcome", zap.String("status", status.String()), zap.Error(err))
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("failed to store workflow outcome: %w", err)
	}
	s.metrics.IncWorkflowTransition(status.String())

	logger.Info("workflow finished", zap.String("status", status.String()))
	return runErr
}

// Retry moves a failed workflow back to pending so the scheduler picks it up again.
func (s *WorkflowService) Retry(ctx context.Context, id string) (*domain.Workflow, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: workflow id is required", domain.ErrInvalidRequest)
	}

	moved, err := s.workflows.TransitionStatus(ctx, id, domain.WorkflowFailed, domain.WorkflowPending)
	if err != nil {
		return nil, err
	}
	if !moved {
		return nil, fmt.Errorf("%w: only failed workflows can be retried", domain.ErrConflict)
	}
	s.metrics.IncWorkflowTransition(domain.WorkflowPending.String())

	return s.workflows.GetByID(ctx, id)
}

// Delete removes a workflow record. Executing workflows cannot be deleted.
func (s *WorkflowService) Delete(ctx context.Context, id string) error {
	workflow, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if workflow.Status == domain.WorkflowExecuting {
		return fmt.Errorf("%w: workflow %s is executing", domain.ErrConflict, workflow.ID)
	}
	return s.workflows.Delete(ctx, workflow.ID)
}

func (s *WorkflowService) Get(ctx context.Context, id string) (*domain.Workflow, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: workflow id is required", domain.ErrInvalidRequest)
	}
	return s.workflows.GetByID(ctx, strings.TrimSpace(id))
}

func (s *WorkflowService) List(ctx context.Context, filter WorkflowFilter) ([]domain.Workflow, error) {
	ref := domain.EntityRef{
		GatheringID: strings.TrimSpace(filter.GatheringID),
		CandidateID: strings.TrimSpace(filter.CandidateID),
	}
	if !ref.IsZero() {
		return s.workflows.ListByAssociatedEntity(ctx, ref, filter.Limit)
	}
	if filter.Status != "" {
		if !filter.Status.IsValid() {
			return nil, fmt.Errorf("%w: invalid workflow status %q", domain.ErrInvalidRequest, filter.Status)
		}
		return s.workflows.ListByStatus(ctx, filter.Status, filter.Limit)
	}
	return nil, fmt.Errorf("%w: status, gatheringId or candidateId is required", domain.ErrInvalidRequest)
}

// recordReceipts stores channel receipt ids. Failures are logged only: the
// messages have already gone out.
func (s *WorkflowService) recordReceipts(ctx context.Context, workflowID *string, result domain.Result) {
	if s.receipts == nil {
		return
	}

	now := s.now().UTC()
	var receipts []domain.DeliveryReceipt
	for _, outcome := range []domain.ChannelOutcome{result.Push, result.Email} {
		for _, d := range outcome.Deliveries {
			if d.ReceiptID == "" {
				continue
			}
			receipts = append(receipts, domain.DeliveryReceipt{
				WorkflowID: workflowID,
				Channel:    outcome.Channel,
				UserID:     d.UserID,
				Endpoint:   d.Endpoint,
				ReceiptID:  d.ReceiptID,
				CreatedAt:  now,
			})
		}
	}
	if len(receipts) == 0 {
		return
	}

	if err := s.receipts.CreateBatch(context.WithoutCancel(ctx), receipts); err != nil {
		observability.WithContextLogger(s.logger, ctx).Error("failed to record delivery receipts",
			zap.Int("count", len(receipts)),
			zap.Error(err),
		)
	}
}

func associatedEntity(req domain.Request) domain.EntityRef {
	var ref domain.EntityRef
	if rsvp, ok := req.Recipients.(domain.RSVPRecipients); ok {
		ref.GatheringID = rsvp.GatheringID
	}
	if tc, ok := req.Content.(domain.TemplateContent); ok {
		if ref.GatheringID == "" {
			ref.GatheringID = tc.GatheringID
		}
		ref.CandidateID = tc.CandidateID
	}
	ref.GatheringID = strings.TrimSpace(ref.GatheringID)
	ref.CandidateID = strings.TrimSpace(ref.CandidateID)
	return ref
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
