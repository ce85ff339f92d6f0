package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Tripay is the older integration. New payments default to Midtrans; Tripay
// stays selectable and its callbacks keep being reconciled.

const (
	tripaySandboxURL    = "https://tripay.co.id/api-sandbox"
	tripayProductionURL = "https://tripay.co.id/api"

	TripayCallbackEventHeader     = "X-Callback-Event"
	TripayCallbackSignatureHeader = "X-Callback-Signature"
	tripayPaymentStatusEvent      = "payment_status"
)

type TripayClient struct {
	apiKey       string
	privateKey   string
	merchantCode string
	method       string
	callbackURL  string
	returnURL    string
	opts         clientOption
}

func NewTripayClient(apiKey, privateKey, merchantCode, method string, isProduction bool, callbackURL, returnURL string, options ...ClientOption) (*TripayClient, error) {
	if apiKey == "" || privateKey == "" || merchantCode == "" {
		return nil, fmt.Errorf("tripay: %w", ErrMissingCredentials)
	}
	base := tripaySandboxURL
	if isProduction {
		base = tripayProductionURL
	}
	return &TripayClient{
		apiKey:       apiKey,
		privateKey:   privateKey,
		merchantCode: merchantCode,
		method:       method,
		callbackURL:  callbackURL,
		returnURL:    returnURL,
		opts:         buildOptions(base, options),
	}, nil
}

func (c *TripayClient) Provider() string {
	return ProviderTripay
}

type tripayItem struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity int    `json:"quantity"`
}

type tripayCreateRequest struct {
	Method        string       `json:"method"`
	MerchantRef   string       `json:"merchant_ref"`
	Amount        int64        `json:"amount"`
	CustomerName  string       `json:"customer_name"`
	CustomerEmail string       `json:"customer_email"`
	CustomerPhone string       `json:"customer_phone"`
	OrderItems    []tripayItem `json:"order_items"`
	CallbackURL   string       `json:"callback_url,omitempty"`
	ReturnURL     string       `json:"return_url,omitempty"`
	ExpiredTime   int64        `json:"expired_time,omitempty"`
	Signature     string       `json:"signature"`
}

type tripayCreateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
		PayCode     string `json:"pay_code"`
	} `json:"data"`
}

// RequestSignature signs a create-transaction request:
// hex(hmac_sha256(merchant_code + merchant_ref + amount, private_key)).
func (c *TripayClient) RequestSignature(merchantRef string, amount int64) string {
	mac := hmac.New(sha256.New, []byte(c.privateKey))
	mac.Write([]byte(c.merchantCode + merchantRef + strconv.FormatInt(amount, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *TripayClient) CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error) {
	amount := req.Amount.Round(0).IntPart()
	body := tripayCreateRequest{
		Method:        c.method,
		MerchantRef:   req.OrderID,
		Amount:        amount,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		CustomerPhone: req.CustomerPhone,
		OrderItems:    []tripayItem{{Name: truncate(req.ItemName, 50), Price: amount, Quantity: 1}},
		CallbackURL:   c.callbackURL,
		ReturnURL:     c.returnURL,
		Signature:     c.RequestSignature(req.OrderID, amount),
	}
	if !req.ExpiresAt.IsZero() {
		body.ExpiredTime = req.ExpiresAt.Unix()
	}

	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}

	var resp tripayCreateResponse
	if err := postJSON(ctx, c.opts, ProviderTripay, c.opts.baseURL+"/transaction/create", headers, body, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, &APIError{Provider: ProviderTripay, StatusCode: http.StatusOK, Message: resp.Message}
	}

	return &PaymentSession{
		Token:       resp.Data.Reference,
		RedirectURL: resp.Data.CheckoutURL,
		Reference:   resp.Data.Reference,
	}, nil
}

type tripayCallback struct {
	Reference         string          `json:"reference"`
	MerchantRef       string          `json:"merchant_ref"`
	PaymentMethod     string          `json:"payment_method"`
	PaymentMethodCode string          `json:"payment_method_code"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
	FeeCustomer       decimal.Decimal `json:"fee_customer"`
	Status            string          `json:"status"`
	PaidAt            *int64          `json:"paid_at"`
	Note              string          `json:"note"`
}

// TripayDecoder decodes Tripay callbacks. The whole raw body is signed.
type TripayDecoder struct{}

func (TripayDecoder) Provider() string {
	return ProviderTripay
}

func (TripayDecoder) Decode(body []byte, header http.Header) (*Envelope, error) {
	if event := header.Get(TripayCallbackEventHeader); event != tripayPaymentStatusEvent {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedEvent, event)
	}

	var cb tripayCallback
	if err := json.Unmarshal(body, &cb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if cb.MerchantRef == "" || cb.Status == "" {
		return nil, fmt.Errorf("%w: missing required field", ErrMalformedPayload)
	}

	return &Envelope{
		Provider:      ProviderTripay,
		OrderID:       cb.MerchantRef,
		EventType:     tripayPaymentStatusEvent,
		SignedPayload: body,
		Signature:     header.Get(TripayCallbackSignatureHeader),
		resolve:       func() (*Notification, error) { return cb.resolve(), nil },
	}, nil
}

func (cb tripayCallback) resolve() *Notification {
	n := &Notification{
		Provider:             ProviderTripay,
		OrderID:              cb.MerchantRef,
		GrossAmount:          cb.TotalAmount.Sub(cb.FeeCustomer),
		TransactionStatus:    cb.Status,
		PaymentType:          cb.PaymentMethodCode,
		GatewayTransactionID: cb.Reference,
		Payment: PaymentDetail{
			Method:    cb.PaymentMethodCode,
			Provider:  cb.PaymentMethod,
			Reference: cb.Reference,
		},
		Outcome: classifyTripay(cb.Status),
	}
	if cb.PaidAt != nil && *cb.PaidAt > 0 {
		t := time.Unix(*cb.PaidAt, 0)
		n.OccurredAt = &t
	}
	return n
}

func classifyTripay(status string) Outcome {
	switch status {
	case "PAID":
		return OutcomeSettlement
	case "UNPAID":
		return OutcomePending
	case "FAILED":
		return OutcomeDenied
	case "EXPIRED":
		return OutcomeExpired
	default:
		return OutcomeUnrecognized
	}
}
