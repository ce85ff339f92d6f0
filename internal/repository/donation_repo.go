package repository

import (
	"context"
	"errors"
	"time"

	"donationpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) Create(ctx context.Context, tx *gorm.DB, donation *model.Donation) error {
	return pick(r.db, tx).WithContext(ctx).Omit(clause.Associations).Create(donation).Error
}

func (r *DonationRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Donation, error) {
	var donation model.Donation
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&donation).Error
	if err != nil {
		return nil, notFound(err, ErrDonationNotFound)
	}
	return &donation, nil
}

// GetByIDForUpdate reads the donation and holds its row lock until tx ends.
func (r *DonationRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Donation, error) {
	var donation model.Donation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&donation).Error
	if err != nil {
		return nil, notFound(err, ErrDonationNotFound)
	}
	return &donation, nil
}

// GetByIdempotencyKey returns nil, nil when no donation carries the key.
func (r *DonationRepository) GetByIdempotencyKey(ctx context.Context, key string) (*model.Donation, error) {
	var donation model.Donation
	err := r.db.WithContext(ctx).
		Preload("Transaction").
		Where("idempotency_key = ?", key).
		First(&donation).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &donation, nil
}

// UpdateStatus moves a donation from fromStatus to toStatus. The status is
// compared in the WHERE clause, so a concurrent writer that got there first
// makes this call fail with ErrDonationStatusConflict instead of overwriting.
func (r *DonationRepository) UpdateStatus(ctx context.Context, tx *gorm.DB, id, fromStatus, toStatus, reason string) error {
	if !model.CanTransitionTo(fromStatus, toStatus) {
		return ErrDonationStatusConflict
	}

	updates := map[string]interface{}{
		"status": toStatus,
	}
	if reason != "" {
		updates["status_reason"] = reason
	}

	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Donation{}).
		Where("id = ? AND status = ?", id, fromStatus).
		Updates(updates)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonationStatusConflict
	}
	return nil
}

func (r *DonationRepository) ListPending(ctx context.Context, page, pageSize int) ([]*model.Donation, int64, error) {
	var donations []*model.Donation
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Donation{}).Where("status = ?", model.DonationStatusPending)

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Preload("Transaction").
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&donations).Error

	return donations, total, err
}

// ListStalePending returns pending donations whose payment window closed
// before now.
func (r *DonationRepository) ListStalePending(ctx context.Context, now time.Time, limit int) ([]*model.Donation, error) {
	var donations []*model.Donation
	err := r.db.WithContext(ctx).
		Joins("JOIN donation_transaction ON donation_transaction.donation_id = donation.id").
		Where("donation.status = ? AND donation_transaction.expires_at < ?", model.DonationStatusPending, now).
		Order("donation.created_at ASC").
		Limit(limit).
		Find(&donations).Error
	return donations, err
}

type DonationFilter struct {
	Status     string
	CampaignID string
	Page       int
	PageSize   int
}

// List pages through donations newest first, with their transactions.
func (r *DonationRepository) List(ctx context.Context, filter DonationFilter) ([]*model.Donation, int64, error) {
	var donations []*model.Donation
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Donation{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CampaignID != "" {
		query = query.Where("campaign_id = ?", filter.CampaignID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Transaction").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&donations).Error

	return donations, total, err
}

func (r *DonationRepository) GetWithTransaction(ctx context.Context, id string) (*model.Donation, error) {
	var donation model.Donation
	err := r.db.WithContext(ctx).Preload("Transaction").Where("id = ?", id).First(&donation).Error
	if err != nil {
		return nil, notFound(err, ErrDonationNotFound)
	}
	return &donation, nil
}

func (r *DonationRepository) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	result := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).Delete(&model.Donation{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrDonationNotFound
	}
	return nil
}
