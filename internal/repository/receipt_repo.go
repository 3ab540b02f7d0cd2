package repository

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"gorm.io/gorm"
)

type ReceiptRepository interface {
	CreateBatch(ctx context.Context, receipts []domain.DeliveryReceipt) error
	ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.DeliveryReceipt, error)
}

type GormReceiptRepo struct {
	db *gorm.DB
}

func NewGormReceiptRepo(db *gorm.DB) *GormReceiptRepo {
	return &GormReceiptRepo{db: db}
}

func (r *GormReceiptRepo) CreateBatch(ctx context.Context, receipts []domain.DeliveryReceipt) error {
	if len(receipts) == 0 {
		return nil
	}

	models := make([]DeliveryReceiptModel, 0, len(receipts))
	for i := range receipts {
		if strings.TrimSpace(receipts[i].ID) == "" {
			receipts[i].ID = uuid.NewString()
		}
		models = append(models, *receiptModelFromDomain(&receipts[i]))
	}

	return r.db.WithContext(ctx).CreateInBatches(&models, 100).Error
}

func (r *GormReceiptRepo) ListByWorkflowID(ctx context.Context, workflowID string) ([]domain.DeliveryReceipt, error) {
	var models []DeliveryReceiptModel
	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("created_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	receipts := make([]domain.DeliveryReceipt, 0, len(models))
	for i := range models {
		receipts = append(receipts, *receiptModelToDomain(&models[i]))
	}
	return receipts, nil
}
