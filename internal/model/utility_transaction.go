package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	UtilityTxStatusPending = "pending"
	UtilityTxStatusSuccess = "success"
	UtilityTxStatusFail    = "fail"
)

// Provider error categories surfaced to clients out-of-band.
const (
	ErrorTypeProvider        = "PROVIDER_ERROR"
	ErrorTypeMeterValidation = "METER_VALIDATION_ERROR"
	ErrorTypeService         = "SERVICE_ERROR"
)

// UtilityTransaction records one purchase attempt, airtime or cashpower.
// Exactly one row is written per attempt and the row is immutable once
// CompletedAt is set. A success row has exactly one linked debit ledger
// entry; a fail row has none.
type UtilityTransaction struct {
	ID                   string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID             string          `gorm:"type:varchar(36);index;not null" json:"client_id"`
	ApiKeyID             string          `gorm:"type:varchar(36);index;not null" json:"api_key_id"`
	Type                 string          `gorm:"type:varchar(16);index;not null" json:"type"` // airtime | cashpower
	NetworkCode          string          `gorm:"type:varchar(32)" json:"network_code"`
	PhoneNumber          string          `gorm:"type:varchar(32)" json:"phone_number"` // airtime only
	MeterNumber          string          `gorm:"type:varchar(32)" json:"meter_number"` // cashpower only
	Amount               decimal.Decimal `gorm:"type:decimal(20,2);not null" json:"amount"`
	TransactionReference string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_reference"`
	ProviderReference    *string         `gorm:"type:varchar(128)" json:"provider_reference"`
	Status               string          `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	ErrorMessage         string          `gorm:"type:varchar(512)" json:"error_message"`
	MetaData             string          `gorm:"type:text" json:"meta_data"` // JSON bag: ip, token, units
	CompletedAt          *time.Time      `json:"completed_at"`
	CreatedAt            time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (UtilityTransaction) TableName() string {
	return "utility_transaction"
}

func (t *UtilityTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}
