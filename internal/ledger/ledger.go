// Package ledger decides how a donation moves between states. It is pure:
// callers load the current status under a lock, ask for a Decision and
// persist it in the same unit of work.
package ledger

import (
	"errors"
	"time"

	"donationpay/internal/gateway"
	"donationpay/internal/model"
)

var (
	ErrUnrecognizedStatus = errors.New("ledger: unrecognized provider status")
	ErrNotPending         = errors.New("ledger: donation is not pending")
)

// Decision is the outcome of applying one event to a donation.
type Decision struct {
	From string
	To   string

	// Changed reports that the donation status moves from From to To.
	Changed bool
	// Stale marks a recognized event that cannot apply to the current status,
	// e.g. an expire arriving after a settlement. Nothing is written.
	Stale bool
	// Credit reports that the campaign total must grow by the donation amount.
	Credit bool

	Patch model.TransactionPatch
}

// Decide applies a verified gateway notification to a donation whose status
// is current. A paid donation is never moved.
func Decide(current string, n *gateway.Notification, now time.Time) (Decision, error) {
	d := Decision{From: current, To: current}

	var target string
	var patch model.TransactionPatch

	switch n.Outcome {
	case gateway.OutcomeCaptureAccepted, gateway.OutcomeSettlement:
		target = model.DonationStatusPaid
		success := now
		if n.OccurredAt != nil {
			success = *n.OccurredAt
		}
		patch = model.TransactionPatch{
			GatewayTransactionID: n.GatewayTransactionID,
			PaymentMethod:        n.Payment.Method,
			PaymentProvider:      n.Payment.Provider,
			VANumber:             n.Payment.Reference,
			SuccessTime:          &success,
		}
	case gateway.OutcomeCaptureNotAccepted, gateway.OutcomeDenied:
		target = model.DonationStatusDenied
		patch = model.TransactionPatch{GatewayTransactionID: n.GatewayTransactionID}
	case gateway.OutcomeExpired:
		target = model.DonationStatusExpired
		patch = model.TransactionPatch{GatewayTransactionID: n.GatewayTransactionID}
	case gateway.OutcomePending:
		if current != model.DonationStatusPending {
			d.Stale = true
			return d, nil
		}
		d.Patch = model.TransactionPatch{
			PaymentMethod:   n.Payment.Method,
			PaymentProvider: n.Payment.Provider,
			VANumber:        n.Payment.Reference,
		}
		return d, nil
	default:
		// gateway.OutcomeUnrecognized and anything added later without a rule.
		return d, ErrUnrecognizedStatus
	}

	if current == target {
		// A repeated failure notification. Only the gateway facts may be new.
		d.Patch = patch
		return d, nil
	}
	if !model.CanTransitionTo(current, target) {
		d.Stale = true
		return d, nil
	}

	d.To = target
	d.Changed = true
	d.Credit = target == model.DonationStatusPaid
	d.Patch = patch
	return d, nil
}

// Approve records a manual payment confirmed by an administrator.
func Approve(current string, now time.Time) (Decision, error) {
	if current != model.DonationStatusPending {
		return Decision{From: current, To: current}, ErrNotPending
	}
	return Decision{
		From:    current,
		To:      model.DonationStatusPaid,
		Changed: true,
		Credit:  true,
		Patch: model.TransactionPatch{
			PaymentMethod:   model.PaymentMethodManualTransfer,
			PaymentProvider: model.PaymentProviderQRIS,
			SuccessTime:     &now,
		},
	}, nil
}

// Reject denies a pending donation on an administrator's decision.
func Reject(current string) (Decision, error) {
	return fromPending(current, model.DonationStatusDenied)
}

// Cancel withdraws a pending donation at the donor's request.
func Cancel(current string) (Decision, error) {
	return fromPending(current, model.DonationStatusCancelled)
}

// Expire closes a pending donation whose payment window has passed.
func Expire(current string) (Decision, error) {
	return fromPending(current, model.DonationStatusExpired)
}

func fromPending(current, target string) (Decision, error) {
	if current != model.DonationStatusPending {
		return Decision{From: current, To: current}, ErrNotPending
	}
	return Decision{From: current, To: target, Changed: true}, nil
}
