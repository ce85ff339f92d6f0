package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/gateway"
	"donationpay/internal/ledger"
	"donationpay/internal/model"
	"donationpay/internal/referral"
	"donationpay/internal/repository"
	"donationpay/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type DonationService struct {
	store     *ledgerStore
	client    gateway.Client
	referrals *repository.ReferralCodeRepository
	cfg       *config.Config
	now       func() time.Time
}

func NewDonationService(store *ledgerStore, client gateway.Client, cfg *config.Config) *DonationService {
	return &DonationService{
		store:     store,
		client:    client,
		referrals: repository.NewReferralCodeRepository(store.db),
		cfg:       cfg,
		now:       time.Now,
	}
}

type DonateRequest struct {
	CampaignKey    string          `json:"-"`
	UserID         *string         `json:"user_id"`
	Name           string          `json:"name" binding:"required,max=255"`
	Email          string          `json:"email" binding:"omitempty,email"`
	Phone          string          `json:"phone" binding:"omitempty,max=32"`
	Anonymous      bool            `json:"anonymous"`
	Message        string          `json:"donation_message" binding:"max=1000"`
	Amount         decimal.Decimal `json:"amount"`
	ReferralCode   string          `json:"referral_code" binding:"max=50"`
	IdempotencyKey string          `json:"-"`
}

type DonateResponse struct {
	DonationID     string          `json:"donation_id"`
	TransactionID  string          `json:"transaction_id"`
	Invoice        string          `json:"invoice"`
	Status         string          `json:"status"`
	OriginalPrice  decimal.Decimal `json:"original_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	ReferralCode   *string         `json:"referral_code,omitempty"`
	SnapToken      string          `json:"snap_token,omitempty"`
	PaymentURL     string          `json:"payment_url,omitempty"`
	ExpiresAt      time.Time       `json:"expires_at"`
	Replayed       bool            `json:"replayed"`
}

// Donate creates a pending donation with its transaction and opens the
// payment with the gateway. A request repeating an earlier idempotency key
// returns the earlier donation. If the gateway cannot be reached the
// donation stays pending and a retry with the same key reopens the payment.
func (s *DonationService) Donate(ctx context.Context, req *DonateRequest) (*DonateResponse, error) {
	if req.IdempotencyKey != "" {
		existing, err := s.store.donations.GetByIdempotencyKey(ctx, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
		if existing != nil {
			return s.replay(ctx, existing)
		}
	}

	campaign, err := s.store.campaigns.GetBySlugOrID(ctx, req.CampaignKey)
	if err != nil {
		return nil, err
	}
	if !campaign.IsActive() {
		return nil, ErrCampaignNotActive
	}

	minAmount := decimal.NewFromInt(s.cfg.Business.MinDonationAmount)
	if req.Amount.LessThan(minAmount) {
		return nil, fmt.Errorf("%w: minimum donation is %s", ErrInvalidAmount, minAmount.String())
	}
	// Both gateways charge whole rupiah, so prices are kept whole as well and
	// the credited amount equals what the donor is charged.
	original := req.Amount.Round(0)

	now := s.now()
	var code *model.ReferralCode
	var codeUsed *string
	discount := decimal.Zero
	if req.ReferralCode != "" {
		code, err = s.referrals.GetByCode(ctx, nil, referral.NormalizeCode(req.ReferralCode))
		if err != nil {
			return nil, err
		}
		if reason := referral.InvalidReason(code, now); reason != "" {
			return nil, &ReferralInvalidError{Code: code.Code, Reason: reason}
		}
		discount, _ = referral.Apply(code, original)
		codeUsed = &code.Code
	}
	final := original.Sub(discount)
	if !final.IsPositive() {
		return nil, fmt.Errorf("%w: amount after discount must be positive", ErrInvalidAmount)
	}

	donation := &model.Donation{
		CampaignID:       campaign.ID,
		UserID:           req.UserID,
		Name:             req.Name,
		Email:            req.Email,
		Phone:            req.Phone,
		Anonymous:        req.Anonymous,
		DonationMessage:  req.Message,
		Invoice:          idgen.GenerateInvoice(campaign.Slug),
		DonationAmount:   final,
		OriginalPrice:    original,
		DiscountAmount:   discount,
		FinalPrice:       final,
		ReferralCodeUsed: codeUsed,
		Status:           model.DonationStatusPending,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		donation.IdempotencyKey = &key
	}

	trans := &model.Transaction{
		ID:          idgen.GenerateOrderID(),
		UserID:      req.UserID,
		Gateway:     s.client.Provider(),
		GrossAmount: final,
		ExpiresAt:   now.Add(time.Duration(s.cfg.Business.DonationExpiryMinutes) * time.Minute),
	}

	err = s.store.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.store.donations.Create(ctx, tx, donation); err != nil {
			return fmt.Errorf("create donation: %w", err)
		}
		trans.DonationID = donation.ID
		if err := s.store.transactions.Create(ctx, tx, trans); err != nil {
			return fmt.Errorf("create transaction: %w", err)
		}
		if code != nil {
			if err := s.referrals.IncrementUsed(ctx, tx, code.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrReferralExhausted) {
			return nil, err
		}
		// A concurrent request with the same key may have won the insert.
		if req.IdempotencyKey != "" {
			if existing, lerr := s.store.donations.GetByIdempotencyKey(ctx, req.IdempotencyKey); lerr == nil && existing != nil {
				return s.replay(ctx, existing)
			}
		}
		return nil, err
	}

	donation.Transaction = trans
	log.Printf("[Donation] created: donationID=%s, orderID=%s, campaign=%s, amount=%s",
		donation.ID, trans.ID, campaign.Slug, final.StringFixed(2))

	if err := s.openPayment(ctx, donation, campaign.Title); err != nil {
		return nil, err
	}
	return donateResponse(donation, false), nil
}

func (s *DonationService) replay(ctx context.Context, donation *model.Donation) (*DonateResponse, error) {
	if donation.Transaction == nil {
		trans, err := s.store.transactions.GetByDonationID(ctx, nil, donation.ID)
		if err != nil {
			return nil, err
		}
		donation.Transaction = trans
	}

	if donation.Status == model.DonationStatusPending && donation.Transaction.SnapToken == "" {
		campaign, err := s.store.campaigns.GetByID(ctx, nil, donation.CampaignID)
		if err != nil {
			return nil, err
		}
		if err := s.openPayment(ctx, donation, campaign.Title); err != nil {
			return nil, err
		}
	}
	return donateResponse(donation, true), nil
}

// openPayment asks the gateway for a payment session and stores it on the
// transaction.
func (s *DonationService) openPayment(ctx context.Context, donation *model.Donation, campaignTitle string) error {
	trans := donation.Transaction
	session, err := s.client.CreatePayment(ctx, &gateway.PaymentRequest{
		OrderID:       trans.ID,
		Invoice:       donation.Invoice,
		Amount:        donation.DonationAmount,
		CustomerName:  donation.DisplayName(),
		CustomerEmail: donation.Email,
		CustomerPhone: donation.Phone,
		ItemName:      "Donasi " + campaignTitle,
		ExpiresAt:     trans.ExpiresAt,
	})
	if err != nil {
		log.Printf("[Donation] open payment failed: orderID=%s, err=%v", trans.ID, err)
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}

	if err := s.store.transactions.SetPaymentSession(ctx, nil, trans.ID, session.Token, session.RedirectURL); err != nil {
		return fmt.Errorf("store payment session: %w", err)
	}
	trans.SnapToken = session.Token
	trans.PaymentURL = session.RedirectURL
	return nil
}

func donateResponse(d *model.Donation, replayed bool) *DonateResponse {
	resp := &DonateResponse{
		DonationID:     d.ID,
		Invoice:        d.Invoice,
		Status:         d.Status,
		OriginalPrice:  d.OriginalPrice,
		DiscountAmount: d.DiscountAmount,
		FinalPrice:     d.FinalPrice,
		ReferralCode:   d.ReferralCodeUsed,
		Replayed:       replayed,
	}
	if t := d.Transaction; t != nil {
		resp.TransactionID = t.ID
		resp.SnapToken = t.SnapToken
		resp.PaymentURL = t.PaymentURL
		resp.ExpiresAt = t.ExpiresAt
	}
	return resp
}

// Cancel withdraws a pending donation on the donor's request. It is an
// administrator action; donors have no credentials of their own.
func (s *DonationService) Cancel(ctx context.Context, donationID string) (*model.Donation, error) {
	return s.transition(ctx, donationID, "admin", "donor request", func(current string) (ledger.Decision, error) {
		return ledger.Cancel(current)
	})
}

// Approve marks a pending donation paid after an administrator has checked
// a manual transfer.
func (s *DonationService) Approve(ctx context.Context, donationID string) (*model.Donation, error) {
	return s.transition(ctx, donationID, "admin", "", func(current string) (ledger.Decision, error) {
		return ledger.Approve(current, s.now())
	})
}

func (s *DonationService) Reject(ctx context.Context, donationID, reason string) (*model.Donation, error) {
	return s.transition(ctx, donationID, "admin", reason, ledger.Reject)
}

func (s *DonationService) transition(ctx context.Context, donationID, source, reason string, decide func(string) (ledger.Decision, error)) (*model.Donation, error) {
	trans, err := s.store.transactions.GetByDonationID(ctx, nil, donationID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}

	var result *model.Donation
	err = s.store.run(ctx, trans.ID, func(tx *gorm.DB, donation *model.Donation, locked *model.Transaction) error {
		d, err := decide(donation.Status)
		if err != nil {
			if errors.Is(err, ledger.ErrNotPending) {
				return ErrDonationNotPending
			}
			return err
		}
		if err := s.store.persist(ctx, tx, donation, locked, d, source, reason); err != nil {
			return err
		}
		result = donation
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Donation] %s by %s: donationID=%s, orderID=%s", result.Status, source, donationID, trans.ID)
	return result, nil
}

func (s *DonationService) ListPending(ctx context.Context, page, pageSize int) ([]*model.Donation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.store.donations.ListPending(ctx, page, pageSize)
}

// List pages through donations for the admin console. status and
// campaignID filter when set.
func (s *DonationService) List(ctx context.Context, filter repository.DonationFilter) ([]*model.Donation, int64, error) {
	switch filter.Status {
	case "", model.DonationStatusPending, model.DonationStatusPaid, model.DonationStatusDenied,
		model.DonationStatusExpired, model.DonationStatusCancelled:
	default:
		return nil, 0, newValidationError("status", "unknown donation status")
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 || filter.PageSize > 100 {
		filter.PageSize = 20
	}
	return s.store.donations.List(ctx, filter)
}

func (s *DonationService) Get(ctx context.Context, donationID string) (*model.Donation, error) {
	return s.store.donations.GetWithTransaction(ctx, donationID)
}

// Delete removes a donation and its transaction. A paid donation's amount is
// taken back off the campaign total in the same unit of work, under the same
// order lock a settlement would take.
func (s *DonationService) Delete(ctx context.Context, donationID string) (*model.Donation, error) {
	trans, err := s.store.transactions.GetByDonationID(ctx, nil, donationID)
	if err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return nil, ErrDonationNotFound
		}
		return nil, err
	}

	var deleted *model.Donation
	err = s.store.run(ctx, trans.ID, func(tx *gorm.DB, donation *model.Donation, locked *model.Transaction) error {
		if donation.Status == model.DonationStatusPaid {
			if err := s.store.campaigns.DecrementCollected(ctx, tx, donation.CampaignID, donation.DonationAmount); err != nil {
				return fmt.Errorf("debit campaign: %w", err)
			}
		}
		if err := s.store.transactions.Delete(ctx, tx, locked.ID); err != nil {
			return fmt.Errorf("delete transaction: %w", err)
		}
		if err := s.store.donations.Delete(ctx, tx, donation.ID); err != nil {
			return fmt.Errorf("delete donation: %w", err)
		}

		event := model.DonationStatusEvent{
			DonationID:    donation.ID,
			TransactionID: locked.ID,
			CampaignID:    donation.CampaignID,
			Invoice:       donation.Invoice,
			Amount:        donation.DonationAmount.StringFixed(2),
			FromStatus:    donation.Status,
			ToStatus:      model.DonationEventDeleted,
			Source:        "admin",
			OccurredAt:    s.now(),
		}
		if err := s.store.outbox.Enqueue(ctx, tx, s.store.topic, locked.ID, event); err != nil {
			return fmt.Errorf("enqueue delete event: %w", err)
		}

		donation.Transaction = locked
		deleted = donation
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("[Donation] deleted by admin: donationID=%s, orderID=%s, status=%s, amount=%s",
		donationID, trans.ID, deleted.Status, deleted.DonationAmount.StringFixed(2))
	return deleted, nil
}

// ExpireStale moves pending donations whose payment window has closed to
// expired. A donation settled in the meantime is left alone. It returns how
// many donations were expired.
func (s *DonationService) ExpireStale(ctx context.Context, limit int) (int, error) {
	stale, err := s.store.donations.ListStalePending(ctx, s.now(), limit)
	if err != nil {
		return 0, fmt.Errorf("list stale donations: %w", err)
	}

	expired := 0
	for _, d := range stale {
		if _, err := s.transition(ctx, d.ID, "expiry", "payment window closed", ledger.Expire); err != nil {
			if errors.Is(err, ErrDonationNotPending) {
				continue
			}
			log.Printf("[Donation] expire failed: donationID=%s, err=%v", d.ID, err)
			continue
		}
		expired++
	}
	return expired, nil
}
