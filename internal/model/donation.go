package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DonationStatusPending   = "pending"
	DonationStatusPaid      = "paid"
	DonationStatusDenied    = "denied"
	DonationStatusExpired   = "expired"
	DonationStatusCancelled = "cancelled"
)

// ValidStatusTransitions lists the donation states reachable from each state.
// paid has no entry: once money is credited nothing moves it again. A late
// settlement may still revive a denied, expired or cancelled donation since
// the gateway is the authority on whether money moved.
var ValidStatusTransitions = map[string][]string{
	DonationStatusPending:   {DonationStatusPaid, DonationStatusDenied, DonationStatusExpired, DonationStatusCancelled},
	DonationStatusDenied:    {DonationStatusPaid},
	DonationStatusExpired:   {DonationStatusPaid},
	DonationStatusCancelled: {DonationStatusPaid},
}

func CanTransitionTo(currentStatus, targetStatus string) bool {
	allowedStatuses, exists := ValidStatusTransitions[currentStatus]
	if !exists {
		return false
	}
	for _, s := range allowedStatuses {
		if s == targetStatus {
			return true
		}
	}
	return false
}

// Donation is a pledge against a campaign tracked through its payment lifecycle.
// DonationAmount is what the gateway charges and what the campaign is
// credited with. It always equals FinalPrice.
type Donation struct {
	ID               string          `gorm:"type:char(36);primaryKey" json:"id"`
	CampaignID       string          `gorm:"type:char(36);index;not null" json:"campaign_id"`
	UserID           *string         `gorm:"type:varchar(64);index" json:"user_id"`
	Name             string          `gorm:"type:varchar(255);not null" json:"name"`
	Email            string          `gorm:"type:varchar(255)" json:"email"`
	Phone            string          `gorm:"type:varchar(32)" json:"phone"`
	Anonymous        bool            `gorm:"not null" json:"anonymous"`
	DonationMessage  string          `gorm:"type:text" json:"donation_message"`
	Invoice          string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"invoice"`
	IdempotencyKey   *string         `gorm:"type:varchar(128);uniqueIndex" json:"-"`
	DonationAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"donation_amount"`
	OriginalPrice    decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"original_price"`
	DiscountAmount   decimal.Decimal `gorm:"type:decimal(15,2);not null;default:0" json:"discount_amount"`
	FinalPrice       decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"final_price"`
	ReferralCodeUsed *string         `gorm:"type:varchar(50);index" json:"referral_code_used"`
	Status           string          `gorm:"type:varchar(20);index;not null" json:"status"`
	StatusReason     string          `gorm:"type:varchar(255)" json:"status_reason,omitempty"`
	Transaction      *Transaction    `gorm:"foreignKey:DonationID;constraint:OnDelete:CASCADE" json:"transaction,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Donation) TableName() string {
	return "donation"
}

func (d *Donation) BeforeCreate(tx *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	if d.Status == "" {
		d.Status = DonationStatusPending
	}
	return nil
}

// DisplayName hides the donor's name when the donation was made anonymously.
func (d *Donation) DisplayName() string {
	if d.Anonymous {
		return "Anonymous"
	}
	return d.Name
}
