package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/community-notify/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TemplateRepository interface {
	GetByKey(ctx context.Context, key string) (*domain.Template, error)
	EnsureTemplate(ctx context.Context, t *domain.Template) (*domain.Template, bool, error)
}

type GormTemplateRepo struct {
	db *gorm.DB
}

func NewGormTemplateRepo(db *gorm.DB) *GormTemplateRepo {
	return &GormTemplateRepo{db: db}
}

func (r *GormTemplateRepo) GetByKey(ctx context.Context, key string) (*domain.Template, error) {
	var model TemplateModel
	err := r.db.WithContext(ctx).
		Where("template_key = ?", key).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return templateModelToDomain(&model)
}

// EnsureTemplate inserts t unless a template with the same key exists, and
// returns the stored row either way. The boolean reports whether t was inserted.
func (r *GormTemplateRepo) EnsureTemplate(ctx context.Context, t *domain.Template) (*domain.Template, bool, error) {
	if t == nil || strings.TrimSpace(t.Key) == "" {
		return nil, false, fmt.Errorf("%w: template key is required", domain.ErrInvalidRequest)
	}

	candidate := *t
	candidate.Key = strings.TrimSpace(candidate.Key)
	if strings.TrimSpace(candidate.ID) == "" {
		candidate.ID = uuid.NewString()
	}

	model, err := templateModelFromDomain(&candidate)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode template defaults: %w", err)
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "template_key"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return nil, false, result.Error
	}

	stored, err := r.GetByKey(ctx, candidate.Key)
	if err != nil {
		return nil, false, err
	}
	return stored, result.RowsAffected == 1, nil
}
