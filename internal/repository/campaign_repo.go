package repository

import (
	"context"
	"errors"
	"time"

	"donationpay/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type CampaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

func (r *CampaignRepository) Create(ctx context.Context, tx *gorm.DB, campaign *model.Campaign) error {
	return pick(r.db, tx).WithContext(ctx).Create(campaign).Error
}

func (r *CampaignRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&campaign).Error
	if err != nil {
		return nil, notFound(err, ErrCampaignNotFound)
	}
	return &campaign, nil
}

// GetBySlugOrID accepts either public identifier of a campaign.
func (r *CampaignRepository) GetBySlugOrID(ctx context.Context, key string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).Where("slug = ? OR id = ?", key, key).First(&campaign).Error
	if err != nil {
		return nil, notFound(err, ErrCampaignNotFound)
	}
	return &campaign, nil
}

// IncrementCollected adds amount to the cached total in one statement so
// concurrent settlements for the same campaign never lose an update.
func (r *CampaignRepository) IncrementCollected(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"collected_amount": gorm.Expr("collected_amount + ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// DecrementCollected takes amount back off the cached total. Only an
// administrator deleting a paid donation uses it.
func (r *CampaignRepository) DecrementCollected(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"collected_amount": gorm.Expr("collected_amount - ?", amount),
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// SetCollected overwrites the cached total. Only the audit repair path uses it.
func (r *CampaignRepository) SetCollected(ctx context.Context, tx *gorm.DB, id string, amount decimal.Decimal) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Campaign{}).
		Where("id = ?", id).
		Update("collected_amount", amount)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrCampaignNotFound
	}
	return nil
}

// LockByID takes a row lock on the campaign for the rest of tx.
func (r *CampaignRepository) LockByID(ctx context.Context, tx *gorm.DB, id string) (*model.Campaign, error) {
	var campaign model.Campaign
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&campaign).Error
	if err != nil {
		return nil, notFound(err, ErrCampaignNotFound)
	}
	return &campaign, nil
}

// SumPaid derives the collected total from paid donations.
func (r *CampaignRepository) SumPaid(ctx context.Context, tx *gorm.DB, id string) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := pick(r.db, tx).WithContext(ctx).
		Model(&model.Donation{}).
		Select("COALESCE(SUM(donation_amount), 0)").
		Where("campaign_id = ? AND status = ?", id, model.DonationStatusPaid).
		Row().
		Scan(&total)
	return total, err
}

func (r *CampaignRepository) CountPaid(ctx context.Context, id string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Donation{}).
		Where("campaign_id = ? AND status = ?", id, model.DonationStatusPaid).
		Count(&count).Error
	return count, err
}

// ListPaidDonors returns the most recent paid donations of a campaign.
func (r *CampaignRepository) ListPaidDonors(ctx context.Context, id string, limit int) ([]*model.Donation, error) {
	var donations []*model.Donation
	err := r.db.WithContext(ctx).
		Where("campaign_id = ? AND status = ?", id, model.DonationStatusPaid).
		Order("updated_at DESC").
		Limit(limit).
		Find(&donations).Error
	return donations, err
}

func (r *CampaignRepository) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Order("created_at ASC").
		Pluck("id", &ids).Error
	return ids, err
}

// SumCollected totals the cached collected amount across all campaigns.
func (r *CampaignRepository) SumCollected(ctx context.Context) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.WithContext(ctx).
		Model(&model.Campaign{}).
		Select("COALESCE(SUM(collected_amount), 0)").
		Row().
		Scan(&total)
	return total, err
}

// LatestUpdate returns when any campaign last changed, or nil when there are
// no campaigns.
func (r *CampaignRepository) LatestUpdate(ctx context.Context) (*time.Time, error) {
	var campaign model.Campaign
	err := r.db.WithContext(ctx).Order("updated_at DESC").First(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign.UpdatedAt, nil
}
