package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type WorkflowRepository interface {
	Create(ctx context.Context, w *domain.Workflow) (string, error)
	Update(ctx context.Context, id string, update domain.WorkflowUpdate) error
	TransitionStatus(ctx context.Context, id string, from, to domain.WorkflowStatus) (bool, error)
	GetByID(ctx context.Context, id string) (*domain.Workflow, error)
	ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error)
	ListByAssociatedEntity(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.Workflow, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Workflow, error)
	FailStaleExecutions(ctx context.Context, startedBefore time.Time, reason string) (int64, error)
	Delete(ctx context.Context, id string) error
}

type GormWorkflowRepo struct {
	db *gorm.DB
}

func NewGormWorkflowRepo(db *gorm.DB) *GormWorkflowRepo {
	return &GormWorkflowRepo{db: db}
}

func (r *GormWorkflowRepo) Create(ctx context.Context, w *domain.Workflow) (string, error) {
	if w == nil {
		return "", errors.New("workflow is required")
	}
	if strings.TrimSpace(w.ID) == "" {
		w.ID = uuid.NewString()
	}
	if w.Status == "" {
		w.Status = domain.WorkflowPending
	}

	model := workflowModelFromDomain(w)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return "", err
	}
	*w = *workflowModelToDomain(model)
	return w.ID, nil
}

func (r *GormWorkflowRepo) Update(ctx context.Context, id string, update domain.WorkflowUpdate) error {
	fields := map[string]any{
		"updated_at": time.Now().UTC(),
	}
	if update.Status != nil {
		fields["status"] = *update.Status
	}
	if update.Result != nil {
		fields["result"] = string(update.Result)
	}
	if update.Error != nil {
		fields["error"] = *update.Error
	}
	if update.StartedAt != nil {
		fields["started_at"] = *update.StartedAt
	}
	if update.CompletedAt != nil {
		fields["completed_at"] = *update.CompletedAt
	}

	result := r.db.WithContext(ctx).
		Model(&WorkflowModel{}).
		Where("id = ?", id).
		Updates(fields)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// TransitionStatus moves a workflow from one status to another in a single
// conditional UPDATE. It reports false without error when the record exists
// but is no longer in the expected status.
func (r *GormWorkflowRepo) TransitionStatus(ctx context.Context, id string, from, to domain.WorkflowStatus) (bool, error) {
	now := time.Now().UTC()
	fields := map[string]any{
		"status":     to,
		"updated_at": now,
	}
	switch to {
	case domain.WorkflowExecuting:
		fields["started_at"] = now
	case domain.WorkflowPending:
		fields["started_at"] = nil
		fields["completed_at"] = nil
	}

	result := r.db.WithContext(ctx).
		Model(&WorkflowModel{}).
		Where("id = ? AND status = ?", id, from).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 1 {
		return true, nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

func (r *GormWorkflowRepo) GetByID(ctx context.Context, id string) (*domain.Workflow, error) {
	var model WorkflowModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return workflowModelToDomain(&model), nil
}

func (r *GormWorkflowRepo) ListByStatus(ctx context.Context, status domain.WorkflowStatus, limit int) ([]domain.Workflow, error) {
	var models []WorkflowModel
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("scheduled_at ASC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return workflowModelsToDomain(models), nil
}

func (r *GormWorkflowRepo) ListByAssociatedEntity(ctx context.Context, ref domain.EntityRef, limit int) ([]domain.Workflow, error) {
	query := r.db.WithContext(ctx).Model(&WorkflowModel{})
	if id := strings.TrimSpace(ref.GatheringID); id != "" {
		query = query.Where("gathering_id = ?", id)
	}
	if id := strings.TrimSpace(ref.CandidateID); id != "" {
		query = query.Where("candidate_id = ?", id)
	}

	var models []WorkflowModel
	err := query.
		Order("created_at DESC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return workflowModelsToDomain(models), nil
}

func (r *GormWorkflowRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Workflow, error) {
	var models []WorkflowModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", domain.WorkflowPending, now).
		Order("scheduled_at ASC").
		Limit(clampLimit(limit)).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return workflowModelsToDomain(models), nil
}

// FailStaleExecutions marks executing workflows claimed before startedBefore
// as failed so a crashed worker's claim can be retried or deleted.
func (r *GormWorkflowRepo) FailStaleExecutions(ctx context.Context, startedBefore time.Time, reason string) (int64, error) {
	now := time.Now().UTC()
	result := r.db.WithContext(ctx).
		Model(&WorkflowModel{}).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", domain.WorkflowExecuting, startedBefore).
		Updates(map[string]any{
			"status":       domain.WorkflowFailed,
			"error":        reason,
			"completed_at": now,
			"updated_at":   now,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormWorkflowRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&WorkflowModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func workflowModelsToDomain(models []WorkflowModel) []domain.Workflow {
	workflows := make([]domain.Workflow, 0, len(models))
	for i := range models {
		workflows = append(workflows, *workflowModelToDomain(&models[i]))
	}
	return workflows
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultListLimit
	}
	return min(limit, maxListLimit)
}
