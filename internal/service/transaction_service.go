package service

import (
	"context"
	"time"

	"donationpay/internal/model"
	"donationpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var wib = time.FixedZone("WIB", 7*60*60)

type TransactionService struct {
	transactions *repository.TransactionRepository
	donations    *repository.DonationRepository
	events       *repository.WebhookEventRepository
}

func NewTransactionService(db *gorm.DB) *TransactionService {
	return &TransactionService{
		transactions: repository.NewTransactionRepository(db),
		donations:    repository.NewDonationRepository(db),
		events:       repository.NewWebhookEventRepository(db),
	}
}

// InvoiceView is the receipt shown to a donor. Date and time are the
// settlement moment in WIB and are empty until the donation is paid.
type InvoiceView struct {
	ID              string          `json:"id"`
	DonationID      string          `json:"donation_id"`
	Invoice         string          `json:"invoice"`
	Name            string          `json:"name"`
	DonationAmount  decimal.Decimal `json:"donation_amount"`
	OriginalPrice   decimal.Decimal `json:"original_price"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	FinalPrice      decimal.Decimal `json:"final_price"`
	ReferralCode    *string         `json:"referral_code"`
	DonationStatus  string          `json:"donation_status"`
	Date            string          `json:"date"`
	Time            string          `json:"time"`
	PaymentMethod   string          `json:"payment_method"`
	PaymentProvider string          `json:"payment_provider"`
	VANumber        string          `json:"va_number"`
	PaymentURL      string          `json:"payment_url"`
}

func (s *TransactionService) Invoice(ctx context.Context, transactionID string) (*InvoiceView, error) {
	trans, err := s.transactions.GetByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	donation, err := s.donations.GetByID(ctx, nil, trans.DonationID)
	if err != nil {
		return nil, err
	}
	return invoiceView(donation, trans), nil
}

func (s *TransactionService) InvoiceByDonation(ctx context.Context, donationID string) (*InvoiceView, error) {
	donation, err := s.donations.GetByID(ctx, nil, donationID)
	if err != nil {
		return nil, err
	}
	trans, err := s.transactions.GetByDonationID(ctx, nil, donationID)
	if err != nil {
		return nil, err
	}
	return invoiceView(donation, trans), nil
}

func invoiceView(d *model.Donation, t *model.Transaction) *InvoiceView {
	v := &InvoiceView{
		ID:              t.ID,
		DonationID:      d.ID,
		Invoice:         d.Invoice,
		Name:            d.DisplayName(),
		DonationAmount:  d.DonationAmount,
		OriginalPrice:   d.OriginalPrice,
		DiscountAmount:  d.DiscountAmount,
		FinalPrice:      d.FinalPrice,
		ReferralCode:    d.ReferralCodeUsed,
		DonationStatus:  d.Status,
		PaymentMethod:   t.PaymentMethod,
		PaymentProvider: t.PaymentProvider,
		VANumber:        t.VANumber,
		PaymentURL:      t.PaymentURL,
	}
	if t.TransactionSuccessTime != nil {
		at := t.TransactionSuccessTime.In(wib)
		v.Date = at.Format("2006-01-02")
		v.Time = at.Format("15:04:05")
	}
	return v
}

type StatusView struct {
	TransactionID          string     `json:"transaction_id"`
	DonationID             string     `json:"donation_id"`
	Status                 string     `json:"status"`
	Gateway                string     `json:"gateway"`
	PaymentMethod          string     `json:"payment_method"`
	PaymentProvider        string     `json:"payment_provider"`
	VANumber               string     `json:"va_number"`
	TransactionSuccessTime *time.Time `json:"transaction_success_time"`
	ExpiresAt              time.Time  `json:"expires_at"`
}

// Status is what a donor's browser polls while waiting for the gateway.
func (s *TransactionService) Status(ctx context.Context, transactionID string) (*StatusView, error) {
	trans, err := s.transactions.GetByID(ctx, nil, transactionID)
	if err != nil {
		return nil, err
	}
	donation, err := s.donations.GetByID(ctx, nil, trans.DonationID)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		TransactionID:          trans.ID,
		DonationID:             donation.ID,
		Status:                 donation.Status,
		Gateway:                trans.Gateway,
		PaymentMethod:          trans.PaymentMethod,
		PaymentProvider:        trans.PaymentProvider,
		VANumber:               trans.VANumber,
		TransactionSuccessTime: trans.TransactionSuccessTime,
		ExpiresAt:              trans.ExpiresAt,
	}, nil
}

// WebhookEvents lists every callback received for an order in arrival order.
func (s *TransactionService) WebhookEvents(ctx context.Context, transactionID string) ([]*model.WebhookEvent, error) {
	if _, err := s.transactions.GetByID(ctx, nil, transactionID); err != nil {
		return nil, err
	}
	return s.events.ListByOrderID(ctx, transactionID)
}
