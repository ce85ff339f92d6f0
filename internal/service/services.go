package service

import (
	"fmt"
	"net/http"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/gateway"
	"donationpay/internal/infrastructure/lock"

	"gorm.io/gorm"
)

type Services struct {
	Reconcile   *ReconcileService
	Donation    *DonationService
	Campaign    *CampaignService
	Referral    *ReferralService
	Transaction *TransactionService
}

// NewServices wires every service around one ledger store, so webhook,
// admin and expiry writes all share the same lock and outbox topic.
func NewServices(db *gorm.DB, cfg *config.Config, locker lock.Locker, client gateway.Client, sources map[string]WebhookSource) *Services {
	store := newLedgerStore(db, locker, cfg.Kafka.Topic.DonationStatus)
	return &Services{
		Reconcile:   NewReconcileService(store, sources),
		Donation:    NewDonationService(store, client, cfg),
		Campaign:    NewCampaignService(db),
		Referral:    NewReferralService(db),
		Transaction: NewTransactionService(db),
	}
}

// NewGatewayClient builds the client for the provider that opens new
// payments.
func NewGatewayClient(cfg *config.Config) (gateway.Client, error) {
	switch cfg.Gateway.Provider {
	case gateway.ProviderMidtrans:
		client, err := gateway.NewMidtransClient(
			cfg.Midtrans.ServerKey,
			cfg.Midtrans.IsProduction,
			cfg.Gateway.FinishURL,
			cfg.Gateway.CallbackURL,
			gateway.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Midtrans.TimeoutSeconds) * time.Second}),
			gateway.WithMaxTries(cfg.Midtrans.MaxTries),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	case gateway.ProviderTripay:
		client, err := gateway.NewTripayClient(
			cfg.Tripay.APIKey,
			cfg.Tripay.PrivateKey,
			cfg.Tripay.MerchantCode,
			cfg.Tripay.Method,
			cfg.Tripay.IsProduction,
			cfg.Gateway.CallbackURL,
			cfg.Gateway.FinishURL,
			gateway.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Tripay.TimeoutSeconds) * time.Second}),
			gateway.WithMaxTries(cfg.Tripay.MaxTries),
		)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, cfg.Gateway.Provider)
	}
}
