package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	PaymentMethodManualTransfer = "Manual Transfer"
	PaymentProviderQRIS         = "QRIS"
)

// Transaction is the gateway-facing side of a donation.
// ID is the order id handed to the gateway. Every callback is correlated
// through it, never through the donation id.
type Transaction struct {
	ID                     string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	DonationID             string          `gorm:"type:char(36);uniqueIndex;not null" json:"donation_id"`
	UserID                 *string         `gorm:"type:varchar(64);index" json:"user_id"`
	PaymentMethod          string          `gorm:"type:varchar(64)" json:"payment_method"`
	PaymentProvider        string          `gorm:"type:varchar(64)" json:"payment_provider"`
	VANumber               string          `gorm:"type:varchar(128)" json:"va_number"`
	GatewayTransactionID   string          `gorm:"type:varchar(128);index" json:"gateway_transaction_id"`
	Gateway                string          `gorm:"type:varchar(20);not null" json:"gateway"`
	SnapToken              string          `gorm:"type:varchar(255)" json:"snap_token"`
	PaymentURL             string          `gorm:"type:varchar(512)" json:"payment_url"`
	GrossAmount            decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"gross_amount"`
	TransactionSuccessTime *time.Time      `json:"transaction_success_time"`
	ExpiresAt              time.Time       `gorm:"index;not null" json:"expires_at"`
	CreatedAt              time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Transaction) TableName() string {
	return "donation_transaction"
}

// TransactionPatch carries the gateway facts a status change records on the
// transaction row. Empty fields are left untouched.
type TransactionPatch struct {
	GatewayTransactionID string
	PaymentMethod        string
	PaymentProvider      string
	VANumber             string
	SuccessTime          *time.Time
}

func (p TransactionPatch) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if p.GatewayTransactionID != "" {
		cols["gateway_transaction_id"] = p.GatewayTransactionID
	}
	if p.PaymentMethod != "" {
		cols["payment_method"] = p.PaymentMethod
	}
	if p.PaymentProvider != "" {
		cols["payment_provider"] = p.PaymentProvider
	}
	if p.VANumber != "" {
		cols["va_number"] = p.VANumber
	}
	if p.SuccessTime != nil {
		cols["transaction_success_time"] = *p.SuccessTime
	}
	return cols
}

func (p TransactionPatch) Empty() bool {
	return len(p.Columns()) == 0
}
