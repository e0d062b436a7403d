package repository

import (
	"context"
	"errors"
	"time"

	"iutility/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var (
	ErrTopUpNotFound   = errors.New("top-up request not found")
	ErrTopUpNotPending = errors.New("top-up request is not pending")
)

type TopUpRepository struct {
	db *gorm.DB
}

func NewTopUpRepository(db *gorm.DB) *TopUpRepository {
	return &TopUpRepository{db: db}
}

func (r *TopUpRepository) Create(ctx context.Context, req *model.ClientTopUpRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *TopUpRepository) GetByID(ctx context.Context, id string) (*model.ClientTopUpRequest, error) {
	var req model.ClientTopUpRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTopUpNotFound
		}
		return nil, err
	}
	return &req, nil
}

// MarkApproved moves a pending request to approved. The status predicate in
// the WHERE clause is what makes terminality hold under concurrency: the
// second of two racing approvals affects zero rows.
func (r *TopUpRepository) MarkApproved(ctx context.Context, tx *gorm.DB, id, adminID string, approvedAmount decimal.Decimal, adminNotes string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	result := tx.WithContext(ctx).
		Model(&model.ClientTopUpRequest{}).
		Where("id = ? AND status = ?", id, model.TopUpStatusPending).
		Updates(map[string]interface{}{
			"status":          model.TopUpStatusApproved,
			"approved_amount": approvedAmount,
			"admin_notes":     adminNotes,
			"processed_by":    adminID,
			"processed_at":    &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTopUpNotPending
	}
	return nil
}

// MarkRejected moves a pending request to rejected. Same guard as approval.
func (r *TopUpRepository) MarkRejected(ctx context.Context, id, adminID, rejectionReason, adminNotes string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&model.ClientTopUpRequest{}).
		Where("id = ? AND status = ?", id, model.TopUpStatusPending).
		Updates(map[string]interface{}{
			"status":           model.TopUpStatusRejected,
			"rejection_reason": rejectionReason,
			"admin_notes":      adminNotes,
			"processed_by":     adminID,
			"processed_at":     &now,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTopUpNotPending
	}
	return nil
}

// DeletePending withdraws a request. Only the owning client may withdraw and
// only while the request is still pending.
func (r *TopUpRepository) DeletePending(ctx context.Context, id, clientID string) error {
	result := r.db.WithContext(ctx).
		Where("id = ? AND client_id = ? AND status = ?", id, clientID, model.TopUpStatusPending).
		Delete(&model.ClientTopUpRequest{})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTopUpNotPending
	}
	return nil
}

// TopUpFilter narrows admin listings. Zero values mean "any".
type TopUpFilter struct {
	ClientID string
	Status   string
}

func (r *TopUpRepository) List(ctx context.Context, filter TopUpFilter, page, pageSize int) ([]*model.ClientTopUpRequest, int64, error) {
	var reqs []*model.ClientTopUpRequest
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ClientTopUpRequest{})

	if filter.ClientID != "" {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&reqs).Error

	return reqs, total, err
}
