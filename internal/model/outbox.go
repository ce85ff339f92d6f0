package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage is written in the same database transaction as the state
// change it announces, then drained to Kafka by the outbox sender.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// DonationEventDeleted is the ToStatus of the event emitted when an
// administrator deletes a donation.
const DonationEventDeleted = "deleted"

// DonationStatusEvent is the payload published whenever a donation changes
// status.
type DonationStatusEvent struct {
	DonationID    string    `json:"donation_id"`
	TransactionID string    `json:"transaction_id"`
	CampaignID    string    `json:"campaign_id"`
	Invoice       string    `json:"invoice"`
	Amount        string    `json:"amount"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	Source        string    `json:"source"`
	OccurredAt    time.Time `json:"occurred_at"`
}
