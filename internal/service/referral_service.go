package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"donationpay/internal/model"
	"donationpay/internal/referral"
	"donationpay/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ReferralService struct {
	codes *repository.ReferralCodeRepository
	now   func() time.Time
}

func NewReferralService(db *gorm.DB) *ReferralService {
	return &ReferralService{
		codes: repository.NewReferralCodeRepository(db),
		now:   time.Now,
	}
}

type ReferralCodeInput struct {
	Code          string          `json:"code" binding:"required,max=50"`
	Description   string          `json:"description" binding:"max=255"`
	DiscountType  string          `json:"discount_type" binding:"required,oneof=percentage fixed"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	MaxUses       *int            `json:"max_uses" binding:"omitempty,min=1"`
	ValidFrom     *time.Time      `json:"valid_from"`
	ValidUntil    *time.Time      `json:"valid_until"`
	IsActive      *bool           `json:"is_active"`
	EventID       *string         `json:"event_id"`
	EventName     string          `json:"event_name" binding:"max=255"`
}

func (in *ReferralCodeInput) validate() error {
	fields := map[string]string{}
	code := referral.NormalizeCode(in.Code)
	switch {
	case code == "":
		fields["code"] = "code is required"
	case len(code) > 50:
		fields["code"] = "code may not be longer than 50 characters"
	}
	if in.DiscountType != model.DiscountTypePercentage && in.DiscountType != model.DiscountTypeFixed {
		fields["discount_type"] = "discount_type must be percentage or fixed"
	}
	if in.DiscountValue.IsNegative() {
		fields["discount_value"] = "discount_value must be at least 0"
	}
	if in.DiscountType == model.DiscountTypePercentage && in.DiscountValue.GreaterThan(decimal.NewFromInt(100)) {
		fields["discount_value"] = "percentage discount may not exceed 100%"
	}
	if in.MaxUses != nil && *in.MaxUses < 1 {
		fields["max_uses"] = "max_uses must be at least 1"
	}
	if in.ValidFrom != nil && in.ValidUntil != nil && !in.ValidUntil.After(*in.ValidFrom) {
		fields["valid_until"] = "valid_until must be after valid_from"
	}
	if len(fields) > 0 {
		return &ValidationError{Fields: fields}
	}
	return nil
}

func (in *ReferralCodeInput) applyTo(code *model.ReferralCode) {
	code.Code = referral.NormalizeCode(in.Code)
	code.Description = in.Description
	code.DiscountType = in.DiscountType
	code.DiscountValue = in.DiscountValue
	code.MaxUses = in.MaxUses
	code.ValidFrom = in.ValidFrom
	code.ValidUntil = in.ValidUntil
	code.EventID = in.EventID
	code.EventName = in.EventName
	if in.IsActive != nil {
		code.IsActive = *in.IsActive
	}
}

// ReferralCodeView is a code with its derived fields.
type ReferralCodeView struct {
	*model.ReferralCode
	DiscountText  string `json:"discount_text"`
	RemainingUses *int   `json:"remaining_uses"`
	IsValid       bool   `json:"is_valid"`
}

func (s *ReferralService) view(code *model.ReferralCode) *ReferralCodeView {
	return &ReferralCodeView{
		ReferralCode:  code,
		DiscountText:  referral.DiscountText(code),
		RemainingUses: referral.RemainingUses(code),
		IsValid:       referral.InvalidReason(code, s.now()) == "",
	}
}

func (s *ReferralService) List(ctx context.Context, filter repository.ReferralCodeFilter) ([]*ReferralCodeView, int64, error) {
	codes, total, err := s.codes.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	views := make([]*ReferralCodeView, 0, len(codes))
	for _, c := range codes {
		views = append(views, s.view(c))
	}
	return views, total, nil
}

func (s *ReferralService) Get(ctx context.Context, id string) (*ReferralCodeView, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(code), nil
}

// Create stores a new code. New codes are active unless the input says
// otherwise.
func (s *ReferralService) Create(ctx context.Context, in *ReferralCodeInput) (*ReferralCodeView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUnique(ctx, referral.NormalizeCode(in.Code), ""); err != nil {
		return nil, err
	}

	code := &model.ReferralCode{IsActive: true}
	in.applyTo(code)
	if err := s.codes.Create(ctx, code); err != nil {
		return nil, fmt.Errorf("create referral code: %w", err)
	}

	log.Printf("[Referral] created: code=%s, type=%s, value=%s", code.Code, code.DiscountType, code.DiscountValue.String())
	return s.view(code), nil
}

// Update replaces the editable fields. used_count is kept, and a limit below
// the uses already consumed is refused.
func (s *ReferralService) Update(ctx context.Context, id string, in *ReferralCodeInput) (*ReferralCodeView, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.MaxUses != nil && *in.MaxUses < code.UsedCount {
		return nil, newValidationError("max_uses", fmt.Sprintf("max_uses may not be below the %d uses already made", code.UsedCount))
	}
	if err := s.ensureUnique(ctx, referral.NormalizeCode(in.Code), id); err != nil {
		return nil, err
	}

	in.applyTo(code)
	if err := s.codes.Save(ctx, code); err != nil {
		return nil, fmt.Errorf("update referral code: %w", err)
	}
	return s.view(code), nil
}

// Delete removes a code that has never been used. Used codes can only be
// deactivated.
func (s *ReferralService) Delete(ctx context.Context, id string) error {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if code.UsedCount > 0 {
		return ErrReferralInUse
	}
	if err := s.codes.Delete(ctx, id); err != nil {
		return err
	}
	log.Printf("[Referral] deleted: code=%s", code.Code)
	return nil
}

func (s *ReferralService) ToggleActive(ctx context.Context, id string) (*model.ReferralCode, error) {
	code, err := s.codes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	code.IsActive = !code.IsActive
	if err := s.codes.SetActive(ctx, id, code.IsActive); err != nil {
		return nil, err
	}
	return code, nil
}

func (s *ReferralService) ensureUnique(ctx context.Context, code, exceptID string) error {
	exists, err := s.codes.ExistsCode(ctx, code, exceptID)
	if err != nil {
		return fmt.Errorf("check referral code: %w", err)
	}
	if exists {
		return ErrReferralCodeTaken
	}
	return nil
}

type PricePreview struct {
	OriginalPrice  decimal.Decimal `json:"original_price"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
	FinalPrice     decimal.Decimal `json:"final_price"`
	YouSave        decimal.Decimal `json:"you_save"`
}

type ReferralPreview struct {
	Code          string          `json:"code"`
	Description   string          `json:"description"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	DiscountText  string          `json:"discount_text"`
	RemainingUses *int            `json:"remaining_uses"`
	ValidUntil    *time.Time      `json:"valid_until"`
	Preview       *PricePreview   `json:"preview,omitempty"`
}

// Preview checks a code for a donor before they commit. A code bound to an
// event is only found when eventID names that event. The price block is
// filled when originalPrice is positive.
func (s *ReferralService) Preview(ctx context.Context, rawCode string, eventID *string, originalPrice decimal.Decimal) (*ReferralPreview, error) {
	code, err := s.codes.GetByCode(ctx, nil, referral.NormalizeCode(rawCode))
	if err != nil {
		return nil, err
	}
	if eventID != nil && (code.EventID == nil || *code.EventID != *eventID) {
		return nil, ErrReferralNotFound
	}
	if reason := referral.InvalidReason(code, s.now()); reason != "" {
		return nil, &ReferralInvalidError{Code: code.Code, Reason: reason}
	}

	p := &ReferralPreview{
		Code:          code.Code,
		Description:   code.Description,
		DiscountType:  code.DiscountType,
		DiscountValue: code.DiscountValue,
		DiscountText:  referral.DiscountText(code),
		RemainingUses: referral.RemainingUses(code),
		ValidUntil:    code.ValidUntil,
	}
	if originalPrice.IsPositive() {
		discount, final := referral.Apply(code, originalPrice)
		p.Preview = &PricePreview{
			OriginalPrice:  originalPrice.Round(0),
			DiscountAmount: discount,
			FinalPrice:     final,
			YouSave:        discount,
		}
	}
	return p, nil
}
