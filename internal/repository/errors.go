package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrDonationNotFound       = errors.New("donation not found")
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrReferralCodeNotFound   = errors.New("referral code not found")
	ErrDonationStatusConflict = errors.New("donation status changed concurrently")
	ErrReferralCodeExhausted  = errors.New("referral code has no uses left")
)

// notFound maps gorm's missing-row error to the repository's own sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return sentinel
	}
	return err
}

func pick(base, tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return base
	}
	return tx
}
