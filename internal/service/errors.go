package service

import (
	"errors"
	"fmt"

	"donationpay/internal/repository"
)

// Webhook reconciliation outcomes that are errors. The handler maps each to
// an HTTP status; anything unlisted is a 500 so the gateway retries.
var (
	ErrInvalidPayload      = errors.New("invalid notification payload")
	ErrInvalidSignature    = errors.New("invalid notification signature")
	ErrUnknownProvider     = errors.New("unknown payment provider")
	ErrTransactionNotFound = repository.ErrTransactionNotFound
	ErrPersistenceFailure  = errors.New("failed to persist reconciliation")
	ErrLockTimeout         = errors.New("timed out waiting for transaction lock")
)

// Donation and referral flow errors.
var (
	ErrInvalidAmount      = errors.New("invalid donation amount")
	ErrCampaignNotFound   = repository.ErrCampaignNotFound
	ErrCampaignNotActive  = errors.New("campaign is not accepting donations")
	ErrDonationNotFound   = repository.ErrDonationNotFound
	ErrDonationNotPending = errors.New("donation is not pending")
	ErrReferralNotFound   = repository.ErrReferralCodeNotFound
	ErrReferralExhausted  = repository.ErrReferralCodeExhausted
	ErrReferralInUse      = errors.New("referral code has already been used")
	ErrReferralCodeTaken  = errors.New("referral code already exists")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)

// ReferralInvalidError carries the reason a referral code was refused.
type ReferralInvalidError struct {
	Code   string
	Reason string
}

func (e *ReferralInvalidError) Error() string {
	return e.Reason
}

// ValidationError is a field level input problem.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", e.Fields)
}

func newValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: message}}
}
