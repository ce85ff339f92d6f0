package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	midtransSandboxURL    = "https://app.sandbox.midtrans.com"
	midtransProductionURL = "https://app.midtrans.com"

	midtransTimeLayout = "2006-01-02 15:04:05"
)

// Midtrans reports times in Jakarta local time without an offset.
var jakarta = time.FixedZone("WIB", 7*60*60)

type MidtransClient struct {
	serverKey   string
	finishURL   string
	callbackURL string
	opts        clientOption
}

// NewMidtransClient returns a Snap client. isProduction selects the live
// endpoint; WithBaseURL overrides both.
func NewMidtransClient(serverKey string, isProduction bool, finishURL, callbackURL string, options ...ClientOption) (*MidtransClient, error) {
	if serverKey == "" {
		return nil, fmt.Errorf("midtrans: %w", ErrMissingCredentials)
	}
	base := midtransSandboxURL
	if isProduction {
		base = midtransProductionURL
	}
	return &MidtransClient{
		serverKey:   serverKey,
		finishURL:   finishURL,
		callbackURL: callbackURL,
		opts:        buildOptions(base, options),
	}, nil
}

func (c *MidtransClient) Provider() string {
	return ProviderMidtrans
}

type snapTransactionDetails struct {
	OrderID     string `json:"order_id"`
	GrossAmount int64  `json:"gross_amount"`
}

type snapCustomerDetails struct {
	FirstName string `json:"first_name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
}

type snapItem struct {
	ID       string `json:"id"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
	Name     string `json:"name"`
}

type snapExpiry struct {
	StartTime string `json:"start_time"`
	Unit      string `json:"unit"`
	Duration  int64  `json:"duration"`
}

type snapRequest struct {
	TransactionDetails snapTransactionDetails `json:"transaction_details"`
	CustomerDetails    snapCustomerDetails    `json:"customer_details"`
	ItemDetails        []snapItem             `json:"item_details"`
	Callbacks          map[string]string      `json:"callbacks,omitempty"`
	Expiry             *snapExpiry            `json:"expiry,omitempty"`
}

type snapResponse struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
}

func (c *MidtransClient) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error) {
	amount := req.Amount.Round(0).IntPart()
	body := snapRequest{
		TransactionDetails: snapTransactionDetails{OrderID: req.OrderID, GrossAmount: amount},
		CustomerDetails: snapCustomerDetails{
			FirstName: req.CustomerName,
			Email:     req.CustomerEmail,
			Phone:     req.CustomerPhone,
		},
		ItemDetails: []snapItem{{ID: req.Invoice, Price: amount, Quantity: 1, Name: truncate(req.ItemName, 50)}},
	}
	if c.finishURL != "" {
		body.Callbacks = map[string]string{"finish": c.finishURL}
	}
	if !req.ExpiresAt.IsZero() {
		now := time.Now().In(jakarta)
		minutes := int64(req.ExpiresAt.Sub(now) / time.Minute)
		if minutes > 0 {
			body.Expiry = &snapExpiry{
				StartTime: now.Format(midtransTimeLayout + " -0700"),
				Unit:      "minutes",
				Duration:  minutes,
			}
		}
	}

	headers := map[string]string{
		"Authorization": "Basic " + base64.StdEncoding.EncodeToString([]byte(c.serverKey+":")),
	}
	if c.callbackURL != "" {
		headers["X-Override-Notification"] = c.callbackURL
	}

	var resp snapResponse
	if err := postJSON(ctx, c.opts, ProviderMidtrans, c.opts.baseURL+"/snap/v1/transactions", headers, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" {
		return nil, &APIError{Provider: ProviderMidtrans, StatusCode: http.StatusOK, Message: "empty snap token"}
	}

	return &PaymentSession{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// rawText accepts a JSON string or number and keeps its exact text, which the
// signature is computed over.
type rawText string

func (t *rawText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = rawText(s)
		return nil
	}
	*t = rawText(b)
	return nil
}

type midtransVA struct {
	Bank     string `json:"bank"`
	VANumber string `json:"va_number"`
}

type midtransNotification struct {
	OrderID           string       `json:"order_id"`
	StatusCode        rawText      `json:"status_code"`
	GrossAmount       rawText      `json:"gross_amount"`
	SignatureKey      string       `json:"signature_key"`
	TransactionStatus string       `json:"transaction_status"`
	FraudStatus       string       `json:"fraud_status"`
	PaymentType       string       `json:"payment_type"`
	TransactionID     string       `json:"transaction_id"`
	TransactionTime   string       `json:"transaction_time"`
	SettlementTime    string       `json:"settlement_time"`
	VANumbers         []midtransVA `json:"va_numbers"`
	PermataVANumber   string       `json:"permata_va_number"`
	BillerCode        string       `json:"biller_code"`
	BillKey           string       `json:"bill_key"`
	PaymentCode       string       `json:"payment_code"`
	Store             string       `json:"store"`
	Issuer            string       `json:"issuer"`
	Acquirer          string       `json:"acquirer"`
	Bank              string       `json:"bank"`
}

// MidtransDecoder decodes HTTP notifications sent by Midtrans.
type MidtransDecoder struct{}

func (MidtransDecoder) Provider() string {
	return ProviderMidtrans
}

// Decode extracts the signed fields. The signed message is
// order_id + status_code + gross_amount; the verifier appends the server key.
func (MidtransDecoder) Decode(body []byte, _ http.Header) (*Envelope, error) {
	var n midtransNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if n.OrderID == "" || n.StatusCode == "" || n.GrossAmount == "" || n.SignatureKey == "" || n.TransactionStatus == "" {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedPayload)
	}

	return &Envelope{
		Provider:      ProviderMidtrans,
		OrderID:       n.OrderID,
		EventType:     n.TransactionStatus,
		SignedPayload: []byte(n.OrderID + string(n.StatusCode) + string(n.GrossAmount)),
		Signature:     n.SignatureKey,
		resolve:       func() (*Notification, error) { return n.resolve() },
	}, nil
}

func (n midtransNotification) resolve() (*Notification, error) {
	gross, err := decimal.NewFromString(string(n.GrossAmount))
	if err != nil {
		return nil, fmt.Errorf("%w: gross_amount %q", ErrMalformedPayload, n.GrossAmount)
	}

	out := &Notification{
		Provider:             ProviderMidtrans,
		OrderID:              n.OrderID,
		StatusCode:           string(n.StatusCode),
		GrossAmount:          gross,
		TransactionStatus:    n.TransactionStatus,
		FraudStatus:          n.FraudStatus,
		PaymentType:          n.PaymentType,
		GatewayTransactionID: n.TransactionID,
		Payment:              n.paymentDetail(),
		Outcome:              classifyMidtrans(n.TransactionStatus, n.FraudStatus),
	}

	ts := n.SettlementTime
	if ts == "" {
		ts = n.TransactionTime
	}
	if ts != "" {
		if t, err := time.ParseInLocation(midtransTimeLayout, ts, jakarta); err == nil {
			out.OccurredAt = &t
		}
	}
	return out, nil
}

func classifyMidtrans(transactionStatus, fraudStatus string) Outcome {
	switch transactionStatus {
	case "capture":
		if fraudStatus == "accept" {
			return OutcomeCaptureAccepted
		}
		return OutcomeCaptureNotAccepted
	case "settlement":
		return OutcomeSettlement
	case "pending":
		return OutcomePending
	case "deny", "cancel":
		return OutcomeDenied
	case "expire":
		return OutcomeExpired
	default:
		return OutcomeUnrecognized
	}
}

func (n midtransNotification) paymentDetail() PaymentDetail {
	d := PaymentDetail{Method: n.PaymentType}
	switch {
	case len(n.VANumbers) > 0:
		d.Provider = n.VANumbers[0].Bank
		d.Reference = n.VANumbers[0].VANumber
	case n.PermataVANumber != "":
		d.Provider = "permata"
		d.Reference = n.PermataVANumber
	case n.BillerCode != "" || n.BillKey != "":
		d.Provider = "mandiri"
		d.Reference = n.BillerCode + "/" + n.BillKey
	case n.PaymentCode != "":
		d.Provider = n.Store
		d.Reference = n.PaymentCode
	case n.Issuer != "":
		d.Provider = n.Issuer
	case n.Acquirer != "":
		d.Provider = n.Acquirer
	case n.Bank != "":
		d.Provider = n.Bank
	}
	if d.Provider == "" {
		d.Provider = n.PaymentType
	}
	return d
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
