package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Service entitlement names used by routes and keys.
const (
	ServiceAirtime   = "airtime"
	ServiceCashpower = "cashpower"
)

// ApiKey is a per-client integrator credential. Keys are revoked by setting
// IsActive=false, never hard-deleted while usage history exists.
type ApiKey struct {
	ID             string     `gorm:"type:varchar(36);primaryKey" json:"id"`
	ClientID       string     `gorm:"type:varchar(36);index;not null" json:"client_id"`
	Key            string     `gorm:"type:varchar(64);uniqueIndex;not null" json:"key"`
	SecretKey      string     `gorm:"type:varchar(80);not null" json:"-"`
	Name           string     `gorm:"type:varchar(128)" json:"name"`
	IsActive       bool       `gorm:"not null;default:true" json:"is_active"`
	IsAirtime      bool       `gorm:"not null;default:false" json:"is_airtime"`
	IsCashpower    bool       `gorm:"not null;default:false" json:"is_cashpower"`
	IsBoth         bool       `gorm:"not null;default:false" json:"is_both"`
	ExpiresAt      *time.Time `json:"expires_at"`
	LastUsedAt     *time.Time `json:"last_used_at"`
	IPRestrictions string     `gorm:"type:varchar(512)" json:"ip_restrictions"` // comma-separated allow-list, empty = any
	CreatedAt      time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ApiKey) TableName() string {
	return "api_key"
}

func (k *ApiKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == "" {
		k.ID = uuid.NewString()
	}
	return nil
}

// AllowsService reports whether the key is entitled to call the given
// service. IsBoth implies both services.
func (k *ApiKey) AllowsService(service string) bool {
	if k.IsBoth {
		return service == ServiceAirtime || service == ServiceCashpower
	}
	switch service {
	case ServiceAirtime:
		return k.IsAirtime
	case ServiceCashpower:
		return k.IsCashpower
	}
	return false
}

// IsExpired reports whether the key has passed its expiry. A nil ExpiresAt
// never expires.
func (k *ApiKey) IsExpired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// AllowsIP reports whether the caller IP passes the key's allow-list. An
// empty list allows any address.
func (k *ApiKey) AllowsIP(ip string) bool {
	if strings.TrimSpace(k.IPRestrictions) == "" {
		return true
	}
	for _, allowed := range strings.Split(k.IPRestrictions, ",") {
		if strings.TrimSpace(allowed) == ip {
			return true
		}
	}
	return false
}
