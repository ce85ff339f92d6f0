package repository

import (
	"context"
	"strings"

	"donationpay/internal/model"

	"gorm.io/gorm"
)

type ReferralCodeRepository struct {
	db *gorm.DB
}

func NewReferralCodeRepository(db *gorm.DB) *ReferralCodeRepository {
	return &ReferralCodeRepository{db: db}
}

// ReferralCodeFilter narrows the admin listing. Nil fields do not filter.
type ReferralCodeFilter struct {
	Search   string
	IsActive *bool
	EventID  *string
	Page     int
	PageSize int
}

func (r *ReferralCodeRepository) Create(ctx context.Context, code *model.ReferralCode) error {
	return r.db.WithContext(ctx).Create(code).Error
}

// Save writes every column, including zero values such as is_active=false.
func (r *ReferralCodeRepository) Save(ctx context.Context, code *model.ReferralCode) error {
	return r.db.WithContext(ctx).Save(code).Error
}

func (r *ReferralCodeRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.ReferralCode{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReferralCodeNotFound
	}
	return nil
}

func (r *ReferralCodeRepository) GetByID(ctx context.Context, id string) (*model.ReferralCode, error) {
	var code model.ReferralCode
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&code).Error
	if err != nil {
		return nil, notFound(err, ErrReferralCodeNotFound)
	}
	return &code, nil
}

// GetByCode expects an already normalized code.
func (r *ReferralCodeRepository) GetByCode(ctx context.Context, tx *gorm.DB, code string) (*model.ReferralCode, error) {
	var rc model.ReferralCode
	err := pick(r.db, tx).WithContext(ctx).Where("code = ?", code).First(&rc).Error
	if err != nil {
		return nil, notFound(err, ErrReferralCodeNotFound)
	}
	return &rc, nil
}

func (r *ReferralCodeRepository) ExistsCode(ctx context.Context, code, exceptID string) (bool, error) {
	var count int64
	query := r.db.WithContext(ctx).Model(&model.ReferralCode{}).Where("code = ?", code)
	if exceptID != "" {
		query = query.Where("id <> ?", exceptID)
	}
	err := query.Count(&count).Error
	return count > 0, err
}

// IncrementUsed consumes one use. The limit is checked in the same statement,
// so two donations racing for the last use cannot both succeed.
func (r *ReferralCodeRepository) IncrementUsed(ctx context.Context, tx *gorm.DB, id string) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.ReferralCode{}).
		Where("id = ? AND (max_uses IS NULL OR used_count < max_uses)", id).
		UpdateColumn("used_count", gorm.Expr("used_count + 1"))

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReferralCodeExhausted
	}
	return nil
}

func (r *ReferralCodeRepository) SetActive(ctx context.Context, id string, active bool) error {
	result := r.db.WithContext(ctx).
		Model(&model.ReferralCode{}).
		Where("id = ?", id).
		Update("is_active", active)

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrReferralCodeNotFound
	}
	return nil
}

func (r *ReferralCodeRepository) List(ctx context.Context, filter ReferralCodeFilter) ([]*model.ReferralCode, int64, error) {
	var codes []*model.ReferralCode
	var total int64

	query := r.db.WithContext(ctx).Model(&model.ReferralCode{})
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + s + "%"
		query = query.Where("code LIKE ? OR description LIKE ?", strings.ToUpper(like), like)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.EventID != nil {
		query = query.Where("event_id = ?", *filter.EventID)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, pageSize := filter.Page, filter.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}

	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&codes).Error

	return codes, total, err
}
