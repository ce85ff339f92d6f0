// Package gateway talks to the payment providers. Clients open payments and
// Decoders turn inbound callbacks into provider-neutral notifications.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/shopspring/decimal"
)

const (
	ProviderMidtrans = "midtrans"
	ProviderTripay   = "tripay"
)

var (
	ErrMissingCredentials = errors.New("gateway: missing credentials")
	ErrMalformedPayload   = errors.New("gateway: malformed notification payload")
	ErrUnsupportedEvent   = errors.New("gateway: unsupported callback event")
)

// Client opens a payment with a provider. Implementations hold only immutable
// configuration and are safe for concurrent use.
type Client interface {
	Provider() string
	CreatePayment(ctx context.Context, req *PaymentRequest) (*PaymentSession, error)
}

type PaymentRequest struct {
	OrderID       string
	Invoice       string
	Amount        decimal.Decimal
	CustomerName  string
	CustomerEmail string
	CustomerPhone string
	ItemName      string
	ExpiresAt     time.Time
}

// PaymentSession is what the frontend needs to complete the payment. It is
// opaque to the rest of the system.
type PaymentSession struct {
	Token       string `json:"token"`
	RedirectURL string `json:"redirect_url"`
	Reference   string `json:"reference,omitempty"`
}

// APIError is a non-2xx answer from a provider.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error: %d %s", e.Provider, e.StatusCode, e.Message)
}

type clientOption struct {
	baseURL    string
	httpClient *http.Client
	newBackOff func() backoff.BackOff
	maxTries   uint
}

// ClientOption configures a gateway client.
type ClientOption func(*clientOption)

// WithBaseURL overrides the provider endpoint, mainly for tests.
func WithBaseURL(url string) ClientOption {
	return func(opt *clientOption) {
		opt.baseURL = url
	}
}

func WithHTTPClient(client *http.Client) ClientOption {
	return func(opt *clientOption) {
		opt.httpClient = client
	}
}

// WithBackOff sets the retry schedule used for network errors and 5xx answers.
func WithBackOff(newBackOff func() backoff.BackOff) ClientOption {
	return func(opt *clientOption) {
		opt.newBackOff = newBackOff
	}
}

// WithMaxTries bounds the number of attempts per call. 1 disables retries.
func WithMaxTries(n uint) ClientOption {
	return func(opt *clientOption) {
		opt.maxTries = n
	}
}

func buildOptions(defaultBaseURL string, options []ClientOption) clientOption {
	opts := clientOption{
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
		maxTries:   3,
	}
	for _, option := range options {
		option(&opts)
	}
	if opts.maxTries == 0 {
		opts.maxTries = 1
	}
	return opts
}

type retryableError struct {
	Err error
}

func (e retryableError) Error() string {
	return e.Err.Error()
}

func (e retryableError) Unwrap() error {
	return e.Err
}

// postJSON sends body to url and decodes a 2xx answer into out. Transport
// failures and 5xx answers are retried; 4xx answers are not.
func postJSON(ctx context.Context, opts clientOption, provider, url string, headers map[string]string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := opts.httpClient.Do(req)
		if err != nil {
			return nil, retryableError{Err: fmt.Errorf("failed to make request: %w", err)}
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retryableError{Err: fmt.Errorf("failed to read response body: %w", err)}
		}

		if resp.StatusCode >= 500 {
			return nil, retryableError{Err: &APIError{Provider: provider, StatusCode: resp.StatusCode, Message: string(respBody)}}
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(&APIError{Provider: provider, StatusCode: resp.StatusCode, Message: string(respBody)})
		}
		return respBody, nil
	}

	respBody, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(opts.newBackOff()),
		backoff.WithMaxTries(opts.maxTries),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
