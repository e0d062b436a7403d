package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Client is a tenant of the platform. Deactivating a client disables all of
// its API keys and wallet operations.
type Client struct {
	ID           string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	ContactName  string    `gorm:"type:varchar(128)" json:"contact_name"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Plan         string    `gorm:"type:varchar(32);not null;default:standard" json:"plan"`
	MonthlyQuota int64     `gorm:"not null;default:0" json:"monthly_quota"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Client) TableName() string {
	return "client"
}

func (c *Client) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}
