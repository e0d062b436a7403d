package repository

import (
	"context"

	"iutility/internal/model"

	"gorm.io/gorm"
)

type ApiUsageRepository struct {
	db *gorm.DB
}

func NewApiUsageRepository(db *gorm.DB) *ApiUsageRepository {
	return &ApiUsageRepository{db: db}
}

func (r *ApiUsageRepository) Create(ctx context.Context, usage *model.ApiUsage) error {
	return r.db.WithContext(ctx).Create(usage).Error
}

func (r *ApiUsageRepository) ListByApiKeyID(ctx context.Context, apiKeyID string, page, pageSize int) ([]*model.ApiUsage, int64, error) {
	var rows []*model.ApiUsage
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ApiUsage{}).Where("api_key_id = ?", apiKeyID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&rows).Error

	return rows, total, err
}
