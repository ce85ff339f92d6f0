package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

// ReferralCode grants a discount when a donation is created.
// Code is stored upper-cased. Donations reference it by value only.
type ReferralCode struct {
	ID            string          `gorm:"type:char(36);primaryKey" json:"id"`
	Code          string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	Description   string          `gorm:"type:text" json:"description"`
	DiscountType  string          `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"discount_value"`
	MaxUses       *int            `json:"max_uses"`
	UsedCount     int             `gorm:"not null;default:0" json:"used_count"`
	ValidFrom     *time.Time      `json:"valid_from"`
	ValidUntil    *time.Time      `json:"valid_until"`
	IsActive      bool            `gorm:"not null" json:"is_active"`
	EventID       *string         `gorm:"type:varchar(64);index" json:"event_id"`
	EventName     string          `gorm:"type:varchar(255)" json:"event_name,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (ReferralCode) TableName() string {
	return "referral_code"
}

func (r *ReferralCode) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}
