package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	TopUpStatusPending  = "pending"
	TopUpStatusApproved = "approved"
	TopUpStatusRejected = "rejected"
)

// Approved and rejected are terminal. A request leaves pending exactly once.
var validTopUpTransitions = map[string][]string{
	TopUpStatusPending: {TopUpStatusApproved, TopUpStatusRejected},
}

// CanTransitionTopUp reports whether a top-up request may move between the
// given statuses.
func CanTransitionTopUp(currentStatus, targetStatus string) bool {
	allowed, exists := validTopUpTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowed {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// ClientTopUpRequest is a client-submitted, admin-processed wallet funding
// request, evidenced by an uploaded payment receipt.
type ClientTopUpRequest struct {
	ID               string           `gorm:"type:varchar(36);primaryKey" json:"id"`
	RequestNo        string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"request_no"`
	ClientID         string           `gorm:"type:varchar(36);index;not null" json:"client_id"`
	RequestedAmount  decimal.Decimal  `gorm:"type:decimal(20,2);not null" json:"requested_amount"`
	ApprovedAmount   *decimal.Decimal `gorm:"type:decimal(20,2)" json:"approved_amount"` // set on approval, may differ from requested
	PaymentMethod    string           `gorm:"type:varchar(32);not null" json:"payment_method"`
	PaymentReference string           `gorm:"type:varchar(128)" json:"payment_reference"`
	ReceiptFileName  string           `gorm:"type:varchar(255);not null" json:"receipt_file_name"`
	ReceiptFilePath  string           `gorm:"type:varchar(512);not null" json:"-"`
	ReceiptFileSize  int64            `gorm:"not null" json:"receipt_file_size"`
	ReceiptMimeType  string           `gorm:"type:varchar(64);not null" json:"receipt_mime_type"`
	Status           string           `gorm:"type:varchar(16);index;not null;default:pending" json:"status"`
	ClientNotes      string           `gorm:"type:varchar(512)" json:"client_notes"`
	AdminNotes       string           `gorm:"type:varchar(512)" json:"admin_notes"`
	RejectionReason  string           `gorm:"type:varchar(512)" json:"rejection_reason"`
	ProcessedBy      *string          `gorm:"type:varchar(36)" json:"processed_by"`
	ProcessedAt      *time.Time       `json:"processed_at"`
	CreatedAt        time.Time        `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ClientTopUpRequest) TableName() string {
	return "client_topup_request"
}

func (r *ClientTopUpRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
