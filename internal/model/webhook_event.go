package model

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent is an append-only record of every callback received, kept
// for support and dispute handling. It is written outside the reconciliation
// unit of work and never read by it.
type WebhookEvent struct {
	ID              int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	Provider        string         `gorm:"type:varchar(20);index;not null" json:"provider"`
	OrderID         string         `gorm:"type:varchar(64);index" json:"order_id"`
	EventType       string         `gorm:"type:varchar(64)" json:"event_type"`
	Payload         datatypes.JSON `json:"payload"`
	SignatureValid  bool           `gorm:"not null" json:"signature_valid"`
	Disposition     string         `gorm:"type:varchar(32);index" json:"disposition"`
	ProcessingError string         `gorm:"type:varchar(512)" json:"processing_error,omitempty"`
	ReceivedAt      time.Time      `gorm:"autoCreateTime;index" json:"received_at"`
}

func (WebhookEvent) TableName() string {
	return "webhook_event"
}
