package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	WalletStatusActive    = "active"
	WalletStatusSuspended = "suspended"
	WalletStatusClosed    = "closed"
)

// ClientWallet holds one client's prepaid balance. The balance is mutated
// only through the wallet service, always together with a ledger entry in
// the same database transaction.
type ClientWallet struct {
	ID                  string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID            string          `gorm:"type:varchar(36);uniqueIndex;not null" json:"client_id"`
	Balance             decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"balance"`
	Status              string          `gorm:"type:varchar(16);not null;default:active" json:"status"`
	LowBalanceThreshold decimal.Decimal `gorm:"type:decimal(20,2);not null;default:0" json:"low_balance_threshold"`
	LastTopupDate       *time.Time      `json:"last_topup_date"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClientWallet) TableName() string {
	return "client_wallet"
}

func (w *ClientWallet) BeforeCreate(tx *gorm.DB) error {
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	return nil
}

const (
	WalletTxTypeCredit     = "credit"
	WalletTxTypeDebit      = "debit"
	WalletTxTypeRefund     = "refund"
	WalletTxTypeAdjustment = "adjustment"
)

// WalletTransaction is an immutable ledger entry.
//
// Ledger rules:
//  1. Append only. Rows are never updated or deleted.
//  2. BalanceBefore/BalanceAfter are captured at write time, never recomputed.
//  3. At most one of UtilityTransactionID / TopUpRequestID is set.
type WalletTransaction struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	LedgerNo             string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"ledger_no"`
	WalletID             string          `gorm:"type:varchar(36);index;not null" json:"wallet_id"`
	ClientID             string          `gorm:"type:varchar(36);index;not null" json:"client_id"`
	Type                 string          `gorm:"type:varchar(16);not null" json:"type"`
	Amount               decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	BalanceBefore        decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_before"`
	BalanceAfter         decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"balance_after"`
	Description          string          `gorm:"type:varchar(256)" json:"description"`
	Reference            string          `gorm:"type:varchar(64);index" json:"reference"`
	UtilityTransactionID *string         `gorm:"type:varchar(36);index" json:"utility_transaction_id"`
	TopUpRequestID       *string         `gorm:"type:varchar(36);index" json:"topup_request_id"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
}

func (WalletTransaction) TableName() string {
	return "wallet_transaction"
}

func (t *WalletTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
