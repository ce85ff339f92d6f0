package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"donationpay/internal/model"
	"donationpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const summaryDonorLimit = 100

// CampaignService reads campaign totals. The collected amount is a cached
// counter maintained by the ledger; Audit checks it against the paid
// donations it is derived from.
type CampaignService struct {
	db        *gorm.DB
	campaigns *repository.CampaignRepository
}

func NewCampaignService(db *gorm.DB) *CampaignService {
	return &CampaignService{
		db:        db,
		campaigns: repository.NewCampaignRepository(db),
	}
}

type DonationSummary struct {
	TotalCollected decimal.Decimal `json:"total_collected"`
	DonorCount     int64           `json:"donor_count"`
	TargetDonation decimal.Decimal `json:"target_donation"`
	Percentage     decimal.Decimal `json:"percentage"`
	Remaining      decimal.Decimal `json:"remaining"`
}

type DonorView struct {
	DonationID      string          `json:"donation_id"`
	Name            string          `json:"name"`
	Anonymous       bool            `json:"anonymous"`
	DonationAmount  decimal.Decimal `json:"donation_amount"`
	DonationMessage string          `json:"donation_message"`
	DonatedAt       time.Time       `json:"donated_at"`
	Email           *string         `json:"email"`
	Phone           *string         `json:"phone"`
}

type CampaignSummary struct {
	Campaign        *model.Campaign `json:"campaign"`
	DonationSummary DonationSummary `json:"donation_summary"`
	Donors          []DonorView     `json:"donors"`
}

func (s *CampaignService) Summary(ctx context.Context, key string) (*CampaignSummary, error) {
	campaign, err := s.campaigns.GetBySlugOrID(ctx, key)
	if err != nil {
		return nil, err
	}

	count, err := s.campaigns.CountPaid(ctx, campaign.ID)
	if err != nil {
		return nil, fmt.Errorf("count donors: %w", err)
	}
	donations, err := s.campaigns.ListPaidDonors(ctx, campaign.ID, summaryDonorLimit)
	if err != nil {
		return nil, fmt.Errorf("list donors: %w", err)
	}

	donors := make([]DonorView, 0, len(donations))
	for _, d := range donations {
		donors = append(donors, donorView(d))
	}

	return &CampaignSummary{
		Campaign:        campaign,
		DonationSummary: summarize(campaign, count),
		Donors:          donors,
	}, nil
}

func summarize(c *model.Campaign, donorCount int64) DonationSummary {
	sum := DonationSummary{
		TotalCollected: c.CollectedAmount,
		DonorCount:     donorCount,
		TargetDonation: c.TargetAmount,
		Percentage:     decimal.Zero,
		Remaining:      decimal.Zero,
	}
	if c.TargetAmount.IsPositive() {
		sum.Percentage = c.CollectedAmount.Div(c.TargetAmount).Mul(decimal.NewFromInt(100)).Round(2)
		if remaining := c.TargetAmount.Sub(c.CollectedAmount); remaining.IsPositive() {
			sum.Remaining = remaining
		}
	}
	return sum
}

// donorView hides contact details of anonymous donors.
func donorView(d *model.Donation) DonorView {
	v := DonorView{
		DonationID:      d.ID,
		Name:            d.DisplayName(),
		Anonymous:       d.Anonymous,
		DonationAmount:  d.DonationAmount,
		DonationMessage: d.DonationMessage,
		DonatedAt:       d.UpdatedAt,
	}
	if !d.Anonymous {
		email, phone := d.Email, d.Phone
		v.Email = &email
		v.Phone = &phone
	}
	return v
}

type PlatformTotal struct {
	TotalDonation decimal.Decimal `json:"total_donation"`
	LatestUpdate  *time.Time      `json:"latest_update"`
}

// Total sums the collected amount of every campaign.
func (s *CampaignService) Total(ctx context.Context) (*PlatformTotal, error) {
	total, err := s.campaigns.SumCollected(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum collected: %w", err)
	}
	latest, err := s.campaigns.LatestUpdate(ctx)
	if err != nil {
		return nil, fmt.Errorf("latest campaign update: %w", err)
	}
	return &PlatformTotal{TotalDonation: total, LatestUpdate: latest}, nil
}

type AuditReport struct {
	CampaignID string          `json:"campaign_id"`
	Cached     decimal.Decimal `json:"cached"`
	Derived    decimal.Decimal `json:"derived"`
	Drift      decimal.Decimal `json:"drift"`
	Repaired   bool            `json:"repaired"`
}

func (r *AuditReport) Drifted() bool {
	return !r.Drift.IsZero()
}

// Audit compares the cached total with the sum of paid donations. The
// campaign row is locked for the comparison so a settlement cannot land
// between the two reads. With repair set a drifted counter is overwritten
// with the derived sum.
func (s *CampaignService) Audit(ctx context.Context, campaignID string, repair bool) (*AuditReport, error) {
	var report *AuditReport
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		campaign, err := s.campaigns.LockByID(ctx, tx, campaignID)
		if err != nil {
			return err
		}
		derived, err := s.campaigns.SumPaid(ctx, tx, campaignID)
		if err != nil {
			return fmt.Errorf("sum paid donations: %w", err)
		}

		report = &AuditReport{
			CampaignID: campaignID,
			Cached:     campaign.CollectedAmount,
			Derived:    derived,
			Drift:      campaign.CollectedAmount.Sub(derived),
		}
		if !report.Drifted() || !repair {
			return nil
		}

		if err := s.campaigns.SetCollected(ctx, tx, campaignID, derived); err != nil {
			return fmt.Errorf("repair collected amount: %w", err)
		}
		report.Repaired = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if report.Drifted() {
		log.Printf("[Audit] campaign total drift: campaignID=%s, cached=%s, derived=%s, repaired=%t",
			campaignID, report.Cached.StringFixed(2), report.Derived.StringFixed(2), report.Repaired)
	}
	return report, nil
}

// AuditAll audits every campaign and returns the drifted ones.
func (s *CampaignService) AuditAll(ctx context.Context, repair bool) ([]*AuditReport, error) {
	ids, err := s.campaigns.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}

	var drifted []*AuditReport
	for _, id := range ids {
		report, err := s.Audit(ctx, id, repair)
		if err != nil {
			return drifted, fmt.Errorf("audit campaign %s: %w", id, err)
		}
		if report.Drifted() {
			drifted = append(drifted, report)
		}
	}
	return drifted, nil
}
