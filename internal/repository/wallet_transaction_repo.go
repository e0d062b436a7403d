package repository

import (
	"context"
	"errors"

	"iutility/internal/model"

	"gorm.io/gorm"
)

type WalletTransactionRepository struct {
	db *gorm.DB
}

func NewWalletTransactionRepository(db *gorm.DB) *WalletTransactionRepository {
	return &WalletTransactionRepository{db: db}
}

// Create appends a ledger entry. The ledger is append-only; no update or
// delete methods exist on this repository.
func (r *WalletTransactionRepository) Create(ctx context.Context, tx *gorm.DB, entry *model.WalletTransaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(entry).Error
}

func (r *WalletTransactionRepository) GetByLedgerNo(ctx context.Context, ledgerNo string) (*model.WalletTransaction, error) {
	var entry model.WalletTransaction
	err := r.db.WithContext(ctx).Where("ledger_no = ?", ledgerNo).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *WalletTransactionRepository) GetByUtilityTransactionID(ctx context.Context, utilityTxID string) (*model.WalletTransaction, error) {
	var entry model.WalletTransaction
	err := r.db.WithContext(ctx).Where("utility_transaction_id = ?", utilityTxID).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &entry, nil
}

func (r *WalletTransactionRepository) ListByClientID(ctx context.Context, clientID string, page, pageSize int) ([]*model.WalletTransaction, int64, error) {
	var entries []*model.WalletTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.WalletTransaction{}).Where("client_id = ?", clientID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error

	return entries, total, err
}
