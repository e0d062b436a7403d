package repository

import (
	"context"
	"errors"
	"time"

	"iutility/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletInactive      = errors.New("wallet is not active")
	ErrInsufficientBalance = errors.New("insufficient wallet balance")
)

type WalletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) *WalletRepository {
	return &WalletRepository{db: db}
}

func (r *WalletRepository) Create(ctx context.Context, tx *gorm.DB, wallet *model.ClientWallet) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(wallet).Error
}

func (r *WalletRepository) GetByClientID(ctx context.Context, clientID string) (*model.ClientWallet, error) {
	var wallet model.ClientWallet
	err := r.db.WithContext(ctx).Where("client_id = ?", clientID).First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// GetByClientIDForUpdate loads the wallet row under an exclusive row lock.
// Every balance mutation must read through this inside a transaction so that
// two concurrent debits cannot both pass the balance check against a stale
// balance.
func (r *WalletRepository) GetByClientIDForUpdate(ctx context.Context, tx *gorm.DB, clientID string) (*model.ClientWallet, error) {
	var wallet model.ClientWallet
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("client_id = ?", clientID).
		First(&wallet).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWalletNotFound
		}
		return nil, err
	}
	return &wallet, nil
}

// SetBalance writes the new balance computed under the row lock. touchTopup
// additionally stamps LastTopupDate (credits only).
func (r *WalletRepository) SetBalance(ctx context.Context, tx *gorm.DB, walletID string, balance decimal.Decimal, touchTopup bool) error {
	updates := map[string]interface{}{
		"balance": balance,
	}
	if touchTopup {
		now := time.Now()
		updates["last_topup_date"] = &now
	}

	result := tx.WithContext(ctx).
		Model(&model.ClientWallet{}).
		Where("id = ?", walletID).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

func (r *WalletRepository) UpdateStatus(ctx context.Context, walletID, status string) error {
	result := r.db.WithContext(ctx).
		Model(&model.ClientWallet{}).
		Where("id = ?", walletID).
		Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// ListBelowThreshold returns active wallets whose balance has dropped below
// their configured low-balance threshold. Used by the balance monitor job.
func (r *WalletRepository) ListBelowThreshold(ctx context.Context, limit int) ([]*model.ClientWallet, error) {
	var wallets []*model.ClientWallet
	err := r.db.WithContext(ctx).
		Where("status = ? AND low_balance_threshold > 0 AND balance < low_balance_threshold", model.WalletStatusActive).
		Limit(limit).
		Find(&wallets).Error
	return wallets, err
}
