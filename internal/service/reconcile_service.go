package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/gateway"
	"donationpay/internal/ledger"
	"donationpay/internal/model"
	"donationpay/internal/repository"
	"donationpay/internal/signature"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Dispositions of an accepted notification.
const (
	DispositionApplied          = "applied"
	DispositionRecorded         = "recorded"
	DispositionAlreadyProcessed = "already_processed"
	DispositionStale            = "stale"
	DispositionIgnored          = "ignored"
	DispositionRejected         = "rejected"
)

// WebhookSource pairs a provider's callback decoder with the verifier for
// its secret.
type WebhookSource struct {
	Decoder  gateway.Decoder
	Verifier signature.Verifier
}

// DefaultWebhookSources accepts callbacks from every supported provider. A
// provider without a configured secret is still decoded, but its signatures
// never verify.
func DefaultWebhookSources(cfg *config.Config) map[string]WebhookSource {
	return map[string]WebhookSource{
		gateway.ProviderMidtrans: {
			Decoder:  gateway.MidtransDecoder{},
			Verifier: signature.NewMidtransVerifier(cfg.Midtrans.ServerKey),
		},
		gateway.ProviderTripay: {
			Decoder:  gateway.TripayDecoder{},
			Verifier: signature.NewTripayVerifier(cfg.Tripay.PrivateKey),
		},
	}
}

type ReconcileResult struct {
	Provider    string `json:"provider"`
	OrderID     string `json:"order_id"`
	Disposition string `json:"disposition"`
	FromStatus  string `json:"from_status,omitempty"`
	ToStatus    string `json:"to_status,omitempty"`
}

type ReconcileService struct {
	store   *ledgerStore
	sources map[string]WebhookSource
	events  *repository.WebhookEventRepository
	now     func() time.Time
}

func NewReconcileService(store *ledgerStore, sources map[string]WebhookSource) *ReconcileService {
	return &ReconcileService{
		store:   store,
		sources: sources,
		events:  repository.NewWebhookEventRepository(store.db),
		now:     time.Now,
	}
}

// HandleNotification authenticates one gateway callback and applies it to
// the donation ledger. Redelivery of an already applied callback is a
// success with no writes. Every callback is recorded in webhook_event
// whatever the result.
func (s *ReconcileService) HandleNotification(ctx context.Context, provider string, body []byte, header http.Header) (*ReconcileResult, error) {
	src, ok := s.sources[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	event := &model.WebhookEvent{Provider: provider, Payload: rawPayload(body)}
	result, err := s.reconcile(ctx, src, body, header, event)
	s.record(ctx, event, result, err)
	return result, err
}

func (s *ReconcileService) reconcile(ctx context.Context, src WebhookSource, body []byte, header http.Header, event *model.WebhookEvent) (*ReconcileResult, error) {
	env, err := src.Decoder.Decode(body, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	event.OrderID = env.OrderID
	event.EventType = env.EventType

	if !src.Verifier.Verify(env.SignedPayload, env.Signature) {
		log.Printf("[SECURITY] invalid %s signature: orderID=%s", env.Provider, env.OrderID)
		return nil, ErrInvalidSignature
	}
	event.SignatureValid = true

	n, err := env.Notification()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	// Unknown order ids are answered before any lock is taken.
	if _, err := s.store.transactions.GetByID(ctx, nil, n.OrderID); err != nil {
		if errors.Is(err, repository.ErrTransactionNotFound) {
			log.Printf("[Reconcile] transaction not found: provider=%s, orderID=%s", n.Provider, n.OrderID)
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	result := &ReconcileResult{Provider: n.Provider, OrderID: n.OrderID}
	err = s.store.run(ctx, n.OrderID, func(tx *gorm.DB, donation *model.Donation, trans *model.Transaction) error {
		result.FromStatus = donation.Status
		result.ToStatus = donation.Status

		if donation.Status == model.DonationStatusPaid {
			result.Disposition = DispositionAlreadyProcessed
			return nil
		}

		if !n.GrossAmount.Equal(donation.DonationAmount) {
			log.Printf("[SECURITY] gross amount mismatch: orderID=%s, notified=%s, expected=%s",
				n.OrderID, n.GrossAmount.String(), donation.DonationAmount.StringFixed(2))
		}

		d, err := ledger.Decide(donation.Status, n, s.now())
		if errors.Is(err, ledger.ErrUnrecognizedStatus) {
			log.Printf("[Reconcile] unrecognized status ignored: orderID=%s, transaction_status=%s, fraud_status=%s",
				n.OrderID, n.TransactionStatus, n.FraudStatus)
			result.Disposition = DispositionIgnored
			return nil
		}
		if err != nil {
			return err
		}
		if d.Stale {
			log.Printf("[Reconcile] stale notification: orderID=%s, current=%s, outcome=%s",
				n.OrderID, donation.Status, n.Outcome)
			result.Disposition = DispositionStale
			return nil
		}

		if err := s.store.persist(ctx, tx, donation, trans, d, n.Provider, ""); err != nil {
			return err
		}

		result.ToStatus = d.To
		if d.Changed {
			result.Disposition = DispositionApplied
		} else {
			result.Disposition = DispositionRecorded
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrLockTimeout) {
			log.Printf("[Reconcile] lock timeout: orderID=%s", n.OrderID)
			return nil, err
		}
		log.Printf("[Reconcile] persist failed, rolled back: orderID=%s, err=%v", n.OrderID, err)
		return nil, fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
	}

	if result.Disposition == DispositionApplied {
		log.Printf("[Reconcile] donation %s: orderID=%s, %s -> %s", result.ToStatus, n.OrderID, result.FromStatus, result.ToStatus)
	}
	return result, nil
}

// record stores the callback for audit. Failure here never changes the
// answer given to the gateway.
func (s *ReconcileService) record(ctx context.Context, event *model.WebhookEvent, result *ReconcileResult, err error) {
	if result != nil {
		event.Disposition = result.Disposition
	}
	if err != nil {
		event.Disposition = DispositionRejected
		event.ProcessingError = truncate(err.Error(), 512)
	}

	if rerr := s.events.Create(context.WithoutCancel(ctx), event); rerr != nil {
		log.Printf("[Reconcile] record webhook event failed: orderID=%s, err=%v", event.OrderID, rerr)
	}
}

// rawPayload keeps the body as JSON. A body that is not JSON is stored as a
// JSON string so the column stays queryable.
func rawPayload(body []byte) datatypes.JSON {
	if json.Valid(body) {
		return datatypes.JSON(body)
	}
	quoted, _ := json.Marshal(string(body))
	return datatypes.JSON(quoted)
}

// truncate cuts s to at most n characters without splitting a rune.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
