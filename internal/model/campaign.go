package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	CampaignStatusActive  = "active"
	CampaignStatusClosed  = "closed"
	CampaignStatusPending = "pending"
)

// Campaign is a fundraising target that donations are credited to.
// CollectedAmount is a cached counter. It is only ever changed by an atomic
// increment inside the same unit of work that marks a donation paid, or an
// atomic decrement when an administrator deletes a paid donation.
type Campaign struct {
	ID              string          `gorm:"type:char(36);primaryKey" json:"id"`
	Slug            string          `gorm:"type:varchar(191);uniqueIndex;not null" json:"slug"`
	Title           string          `gorm:"type:varchar(255);not null" json:"title"`
	TargetAmount    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"target_amount"`
	CollectedAmount decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"collected_amount"`
	Status          string          `gorm:"type:varchar(20);index;not null" json:"status"`
	Donations       []Donation      `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt       time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaign"
}

func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Status == "" {
		c.Status = CampaignStatusActive
	}
	return nil
}

func (c *Campaign) IsActive() bool {
	return c.Status == CampaignStatusActive
}
