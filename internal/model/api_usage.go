package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ApiUsage is an append-only audit row written after an API-key call
// completes. Written off the critical path; a lost row never fails a call.
type ApiUsage struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	ApiKeyID     string    `gorm:"type:varchar(36);index;not null" json:"api_key_id"`
	ClientID     string    `gorm:"type:varchar(36);index;not null" json:"client_id"`
	Endpoint     string    `gorm:"type:varchar(128);not null" json:"endpoint"`
	Method       string    `gorm:"type:varchar(8);not null" json:"method"`
	StatusCode   int       `gorm:"not null" json:"status_code"`
	ResponseTime int64     `gorm:"not null" json:"response_time_ms"`
	IPAddress    string    `gorm:"type:varchar(45)" json:"ip_address"`
	Payload      string    `gorm:"type:text" json:"payload"`
	CreatedAt    time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ApiUsage) TableName() string {
	return "api_usage"
}

func (u *ApiUsage) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}
