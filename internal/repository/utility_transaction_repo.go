package repository

import (
	"context"
	"errors"
	"time"

	"iutility/internal/model"

	"gorm.io/gorm"
)

var ErrUtilityTxNotFound = errors.New("utility transaction not found")

type UtilityTransactionRepository struct {
	db *gorm.DB
}

func NewUtilityTransactionRepository(db *gorm.DB) *UtilityTransactionRepository {
	return &UtilityTransactionRepository{db: db}
}

func (r *UtilityTransactionRepository) Create(ctx context.Context, tx *gorm.DB, txn *model.UtilityTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(txn).Error
}

func (r *UtilityTransactionRepository) GetByID(ctx context.Context, id string) (*model.UtilityTransaction, error) {
	var txn model.UtilityTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUtilityTxNotFound
		}
		return nil, err
	}
	return &txn, nil
}

func (r *UtilityTransactionRepository) GetByReference(ctx context.Context, reference string) (*model.UtilityTransaction, error) {
	var txn model.UtilityTransaction
	err := r.db.WithContext(ctx).Where("transaction_reference = ?", reference).First(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUtilityTxNotFound
		}
		return nil, err
	}
	return &txn, nil
}

// Complete finalises a pending purchase row. Guarded on the pending status so
// a row is completed at most once.
func (r *UtilityTransactionRepository) Complete(ctx context.Context, tx *gorm.DB, id, status string, providerRef *string, errorMessage, metaData string) error {
	if tx == nil {
		tx = r.db
	}

	now := time.Now()
	updates := map[string]interface{}{
		"status":        status,
		"error_message": errorMessage,
		"completed_at":  &now,
	}
	if providerRef != nil {
		updates["provider_reference"] = providerRef
	}
	if metaData != "" {
		updates["meta_data"] = metaData
	}

	result := tx.WithContext(ctx).
		Model(&model.UtilityTransaction{}).
		Where("id = ? AND status = ?", id, model.UtilityTxStatusPending).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUtilityTxNotFound
	}
	return nil
}

// UtilityTransactionFilter narrows admin listings. Zero values mean "any".
type UtilityTransactionFilter struct {
	ClientID string
	Type     string
	Status   string
	From     *time.Time
	To       *time.Time
}

func (r *UtilityTransactionRepository) List(ctx context.Context, filter UtilityTransactionFilter, page, pageSize int) ([]*model.UtilityTransaction, int64, error) {
	var txns []*model.UtilityTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.UtilityTransaction{})

	if filter.ClientID != "" {
		query = query.Where("client_id = ?", filter.ClientID)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.From != nil {
		query = query.Where("created_at >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("created_at < ?", *filter.To)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txns).Error

	return txns, total, err
}

// GetStalePending returns pending rows older than the cutoff. These are
// attempts that never resolved, usually a crash between insert and provider
// response.
func (r *UtilityTransactionRepository) GetStalePending(ctx context.Context, before time.Time, limit int) ([]*model.UtilityTransaction, error) {
	var txns []*model.UtilityTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", model.UtilityTxStatusPending, before).
		Limit(limit).
		Find(&txns).Error
	return txns, err
}
