// Package referral computes referral code discounts and validity.
package referral

import (
	"strings"
	"time"

	"donationpay/internal/model"

	"github.com/shopspring/decimal"
)

const (
	ReasonNotActive    = "Referral code is not active"
	ReasonNotAvailable = "Referral code is not available yet"
	ReasonExpired      = "Referral code has expired"
	ReasonExhausted    = "Referral code has reached the maximum usage"
)

var hundred = decimal.NewFromInt(100)

// NormalizeCode trims and upper-cases a code as typed by a user.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Calculate returns the discount the code grants on original. A fixed
// discount never exceeds the price; a percentage is rounded to 2 decimals.
func Calculate(code *model.ReferralCode, original decimal.Decimal) decimal.Decimal {
	if code == nil || !original.IsPositive() || !code.DiscountValue.IsPositive() {
		return decimal.Zero
	}
	switch code.DiscountType {
	case model.DiscountTypeFixed:
		return decimal.Min(code.DiscountValue, original)
	case model.DiscountTypePercentage:
		discount := original.Mul(code.DiscountValue).Div(hundred).Round(2)
		return decimal.Min(discount, original)
	default:
		return decimal.Zero
	}
}

// FinalPrice is the price left to pay after the discount.
func FinalPrice(code *model.ReferralCode, original decimal.Decimal) decimal.Decimal {
	return original.Sub(Calculate(code, original))
}

// Apply prices a donation in whole rupiah, which is what the gateways
// charge. The final price is rounded and the discount absorbs the remainder,
// so discount + final always equals the rounded original.
func Apply(code *model.ReferralCode, original decimal.Decimal) (discount, final decimal.Decimal) {
	original = original.Round(0)
	final = original.Sub(Calculate(code, original)).Round(0)
	return original.Sub(final), final
}

// InvalidReason returns why the code cannot be used at now, or "" when it
// can. Checks run in a fixed order and the first failure wins.
func InvalidReason(code *model.ReferralCode, now time.Time) string {
	switch {
	case !code.IsActive:
		return ReasonNotActive
	case code.ValidFrom != nil && now.Before(*code.ValidFrom):
		return ReasonNotAvailable
	case code.ValidUntil != nil && now.After(*code.ValidUntil):
		return ReasonExpired
	case code.MaxUses != nil && code.UsedCount >= *code.MaxUses:
		return ReasonExhausted
	}
	return ""
}

// RemainingUses returns nil for unlimited codes.
func RemainingUses(code *model.ReferralCode) *int {
	if code.MaxUses == nil {
		return nil
	}
	left := *code.MaxUses - code.UsedCount
	if left < 0 {
		left = 0
	}
	return &left
}

// DiscountText renders the discount for display, e.g. "10%" or "Rp 20.000".
func DiscountText(code *model.ReferralCode) string {
	if code.DiscountType == model.DiscountTypePercentage {
		return code.DiscountValue.String() + "%"
	}
	return "Rp " + thousands(code.DiscountValue.Round(0).String())
}

func thousands(digits string) string {
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
