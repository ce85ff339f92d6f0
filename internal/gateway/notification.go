package gateway

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// Outcome is the provider status reduced to what the ledger acts on. Every
// provider status string maps to exactly one Outcome; anything not known maps
// to OutcomeUnrecognized.
type Outcome int

const (
	OutcomeUnrecognized Outcome = iota
	OutcomeCaptureAccepted
	OutcomeCaptureNotAccepted
	OutcomeSettlement
	OutcomePending
	OutcomeDenied
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCaptureAccepted:
		return "capture_accepted"
	case OutcomeCaptureNotAccepted:
		return "capture_not_accepted"
	case OutcomeSettlement:
		return "settlement"
	case OutcomePending:
		return "pending"
	case OutcomeDenied:
		return "denied"
	case OutcomeExpired:
		return "expired"
	default:
		return "unrecognized"
	}
}

// PaymentDetail describes how the donor paid.
type PaymentDetail struct {
	Method    string
	Provider  string
	Reference string
}

// Notification is a verified callback in provider-neutral form.
type Notification struct {
	Provider             string
	OrderID              string
	StatusCode           string
	GrossAmount          decimal.Decimal
	TransactionStatus    string
	FraudStatus          string
	PaymentType          string
	GatewayTransactionID string
	Payment              PaymentDetail
	OccurredAt           *time.Time
	Outcome              Outcome
}

// Envelope is a decoded but not yet trusted callback. Until the signature has
// been checked only the order id, signed message and declared signature are
// exposed.
type Envelope struct {
	Provider      string
	OrderID       string
	EventType     string
	SignedPayload []byte
	Signature     string

	resolve func() (*Notification, error)
}

// Notification interprets the status fields. Callers must verify the
// signature first.
func (e *Envelope) Notification() (*Notification, error) {
	if e.resolve == nil {
		return nil, ErrMalformedPayload
	}
	return e.resolve()
}

// Decoder parses a provider's callback body and headers.
type Decoder interface {
	Provider() string
	Decode(body []byte, header http.Header) (*Envelope, error)
}
