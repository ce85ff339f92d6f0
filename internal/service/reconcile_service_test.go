package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"donationpay/internal/gateway"
	"donationpay/internal/infrastructure/lock"
	"donationpay/internal/model"
	"donationpay/internal/signature"
	"donationpay/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestHandleNotificationSettlementCreditsCampaign(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "banjir-demak", 1000000)
	donation, trans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX1", 50000)

	body := midtransBody(t, "TRX1", "200", "50000.00", "settlement", map[string]any{
		"settlement_time": "2024-05-01 10:11:12",
		"va_numbers":      []map[string]string{{"bank": "bca", "va_number": "8800123"}},
	})

	result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, http.Header{})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)
	assert.Equal(t, model.DonationStatusPending, result.FromStatus)
	assert.Equal(t, model.DonationStatusPaid, result.ToStatus)

	assert.Equal(t, model.DonationStatusPaid, reloadDonation(t, env.db, donation.ID).Status)
	assert.True(t, decimal.NewFromInt(50000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))

	tr := reloadTransaction(t, env.db, trans.ID)
	assert.Equal(t, "bank_transfer", tr.PaymentMethod)
	assert.Equal(t, "bca", tr.PaymentProvider)
	assert.Equal(t, "8800123", tr.VANumber)
	assert.Equal(t, "gw-TRX1", tr.GatewayTransactionID)
	require.NotNil(t, tr.TransactionSuccessTime)
	assert.Equal(t, time.Date(2024, 5, 1, 3, 11, 12, 0, time.UTC), tr.TransactionSuccessTime.UTC())

	var msgs []model.OutboxMessage
	require.NoError(t, env.db.Find(&msgs).Error)
	require.Len(t, msgs, 1)
	assert.Equal(t, "donation-status", msgs[0].Topic)
	assert.Equal(t, "TRX1", msgs[0].MessageKey)
	var event model.DonationStatusEvent
	require.NoError(t, json.Unmarshal([]byte(msgs[0].Payload), &event))
	assert.Equal(t, model.DonationStatusPaid, event.ToStatus)
	assert.Equal(t, gateway.ProviderMidtrans, event.Source)

	var recorded []model.WebhookEvent
	require.NoError(t, env.db.Find(&recorded).Error)
	require.Len(t, recorded, 1)
	assert.True(t, recorded[0].SignatureValid)
	assert.Equal(t, DispositionApplied, recorded[0].Disposition)
	assert.Equal(t, "TRX1", recorded[0].OrderID)
}

func TestHandleNotificationRedeliveryIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "replay", 1000000)
	testutil.CreatePendingDonation(t, env.db, campaign, "TRX2", 75000)

	body := midtransBody(t, "TRX2", "200", "75000.00", "settlement", nil)

	for i := 0; i < 5; i++ {
		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
		require.NoError(t, err)
		if i == 0 {
			assert.Equal(t, DispositionApplied, result.Disposition)
		} else {
			assert.Equal(t, DispositionAlreadyProcessed, result.Disposition)
		}
	}

	assert.True(t, decimal.NewFromInt(75000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
	assert.Equal(t, int64(1), countRows(t, env.db, &model.OutboxMessage{}))
	assert.Equal(t, int64(5), countRows(t, env.db, &model.WebhookEvent{}))
}

func TestHandleNotificationConcurrentDeliveriesCreditOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "race", 1000000)
	testutil.CreatePendingDonation(t, env.db, campaign, "TRX3", 20000)

	body := midtransBody(t, "TRX3", "200", "20000.00", "settlement", nil)

	const n = 10
	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
			if assert.NoError(t, err) {
				results <- result.Disposition
			}
		}()
	}
	wg.Wait()
	close(results)

	applied := 0
	for d := range results {
		if d == DispositionApplied {
			applied++
		} else {
			assert.Equal(t, DispositionAlreadyProcessed, d)
		}
	}
	assert.Equal(t, 1, applied)
	assert.True(t, decimal.NewFromInt(20000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
}

func TestHandleNotificationRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "forged", 1000000)
	donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX4", 10000)

	body := midtransBody(t, "TRX4", "200", "10000.00", "settlement", map[string]any{
		"signature_key": signature.NewMidtransVerifier("wrong-key").Sign([]byte("TRX420010000.00")),
	})

	_, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.Equal(t, model.DonationStatusPending, reloadDonation(t, env.db, donation.ID).Status)
	assert.True(t, reloadCampaign(t, env.db, campaign.ID).CollectedAmount.IsZero())

	var recorded model.WebhookEvent
	require.NoError(t, env.db.First(&recorded).Error)
	assert.False(t, recorded.SignatureValid)
	assert.Equal(t, DispositionRejected, recorded.Disposition)
	assert.NotEmpty(t, recorded.ProcessingError)
}

func TestHandleNotificationErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Reconcile.HandleNotification(ctx, "xendit", []byte(`{}`), nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)

	_, err = env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, []byte(`order_id=TRX1`), nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)

	body := midtransBody(t, "TRX-MISSING", "200", "10000.00", "settlement", nil)
	_, err = env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	var payloads []model.WebhookEvent
	require.NoError(t, env.db.Order("id").Find(&payloads).Error)
	require.Len(t, payloads, 2)
	assert.JSONEq(t, `"order_id=TRX1"`, string(payloads[0].Payload))
}

func TestHandleNotificationNonSettlementOutcomes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "outcomes", 1000000)

	t.Run("unrecognized status is ignored", func(t *testing.T) {
		donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX10", 10000)
		body := midtransBody(t, "TRX10", "200", "10000.00", "refund", nil)

		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
		require.NoError(t, err)
		assert.Equal(t, DispositionIgnored, result.Disposition)
		assert.Equal(t, model.DonationStatusPending, reloadDonation(t, env.db, donation.ID).Status)
	})

	t.Run("pending records the virtual account", func(t *testing.T) {
		donation, trans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX11", 10000)
		body := midtransBody(t, "TRX11", "201", "10000.00", "pending", map[string]any{
			"permata_va_number": "8562000",
			"payment_type":      "bank_transfer",
		})

		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
		require.NoError(t, err)
		assert.Equal(t, DispositionRecorded, result.Disposition)
		assert.Equal(t, model.DonationStatusPending, reloadDonation(t, env.db, donation.ID).Status)
		assert.Equal(t, "8562000", reloadTransaction(t, env.db, trans.ID).VANumber)
	})

	t.Run("capture with challenge is denied", func(t *testing.T) {
		donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX12", 10000)
		body := midtransBody(t, "TRX12", "200", "10000.00", "capture", map[string]any{"fraud_status": "challenge"})

		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
		require.NoError(t, err)
		assert.Equal(t, DispositionApplied, result.Disposition)
		assert.Equal(t, model.DonationStatusDenied, reloadDonation(t, env.db, donation.ID).Status)
	})

	t.Run("deny after expire is stale", func(t *testing.T) {
		donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX13", 10000)
		expire := midtransBody(t, "TRX13", "407", "10000.00", "expire", nil)
		deny := midtransBody(t, "TRX13", "202", "10000.00", "deny", nil)

		_, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, expire, nil)
		require.NoError(t, err)
		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, deny, nil)
		require.NoError(t, err)
		assert.Equal(t, DispositionStale, result.Disposition)
		assert.Equal(t, model.DonationStatusExpired, reloadDonation(t, env.db, donation.ID).Status)
	})

	t.Run("late settlement revives a cancelled donation", func(t *testing.T) {
		donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX14", 10000)
		_, err := env.svc.Donation.Cancel(ctx, donation.ID)
		require.NoError(t, err)

		body := midtransBody(t, "TRX14", "200", "10000.00", "settlement", nil)
		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
		require.NoError(t, err)
		assert.Equal(t, DispositionApplied, result.Disposition)
		assert.Equal(t, model.DonationStatusCancelled, result.FromStatus)
		assert.Equal(t, model.DonationStatusPaid, reloadDonation(t, env.db, donation.ID).Status)
	})

	assert.True(t, decimal.NewFromInt(10000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
}

func TestHandleNotificationRollsBackOnFailure(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "atomic", 1000000)
	donation, trans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX20", 30000)

	const hook = "test:fail_campaign_update"
	require.NoError(t, env.db.Callback().Update().Before("gorm:update").Register(hook, func(tx *gorm.DB) {
		if tx.Statement.Table == "campaign" {
			_ = tx.AddError(errors.New("campaign table unavailable"))
		}
	}))

	body := midtransBody(t, "TRX20", "200", "30000.00", "settlement", nil)
	_, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
	assert.ErrorIs(t, err, ErrPersistenceFailure)

	assert.Equal(t, model.DonationStatusPending, reloadDonation(t, env.db, donation.ID).Status)
	assert.Empty(t, reloadTransaction(t, env.db, trans.ID).GatewayTransactionID)
	assert.Equal(t, int64(0), countRows(t, env.db, &model.OutboxMessage{}))

	require.NoError(t, env.db.Callback().Update().Remove(hook))

	result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)
	assert.True(t, decimal.NewFromInt(30000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
}

func TestHandleNotificationLockTimeout(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "busy", 1000000)
	testutil.CreatePendingDonation(t, env.db, campaign, "TRX30", 10000)

	locker := lock.NewLocalLocker(50 * time.Millisecond)
	svc := NewServices(env.db, env.cfg, locker, env.client, DefaultWebhookSources(env.cfg))

	unlock, err := locker.Lock(ctx, lock.OrderLockKey("TRX30"), "holder")
	require.NoError(t, err)
	defer unlock()

	body := midtransBody(t, "TRX30", "200", "10000.00", "settlement", nil)
	_, err = svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, nil)
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestHandleNotificationTripaySettlement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "legacy", 1000000)
	donation, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX40", 40000)

	body := []byte(`{"reference":"T1","merchant_ref":"TRX40","payment_method":"BNIVA","payment_method_code":"BNIVA","total_amount":44250,"fee_customer":4250,"status":"PAID","paid_at":1714533072}`)
	header := http.Header{}
	header.Set(gateway.TripayCallbackEventHeader, "payment_status")
	header.Set(gateway.TripayCallbackSignatureHeader, signature.NewTripayVerifier("tripay-private").Sign(body))

	result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderTripay, body, header)
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)
	assert.Equal(t, model.DonationStatusPaid, reloadDonation(t, env.db, donation.ID).Status)
}

func TestDonateThenSettlementEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "ujung-ke-ujung", 1000000)

	resp, err := env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey: "ujung-ke-ujung",
		Name:        "Rina",
		Amount:      decimal.NewFromInt(100000),
	})
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusPending, resp.Status)
	assert.True(t, reloadCampaign(t, env.db, campaign.ID).CollectedAmount.IsZero())

	body := midtransBody(t, resp.TransactionID, "200", "100000.00", "settlement", nil)
	want := []string{DispositionApplied, DispositionAlreadyProcessed, DispositionAlreadyProcessed}
	for i, disposition := range want {
		result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans, body, http.Header{})
		require.NoError(t, err, "delivery %d", i+1)
		assert.Equal(t, disposition, result.Disposition, "delivery %d", i+1)
	}

	assert.Equal(t, model.DonationStatusPaid, reloadDonation(t, env.db, resp.DonationID).Status)
	assert.NotNil(t, reloadTransaction(t, env.db, resp.TransactionID).TransactionSuccessTime)
	assert.True(t, decimal.NewFromInt(100000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
	assert.Equal(t, int64(1), countRows(t, env.db, &model.OutboxMessage{}))
	assert.Equal(t, int64(3), countRows(t, env.db, &model.WebhookEvent{}))
}

func TestTruncateKeepsRunes(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))

	s := strings.Repeat("é", 600)
	cut := truncate(s, 512)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, 512, utf8.RuneCountInString(cut))

	assert.Equal(t, "Rp 1", truncate("Rp 1.000 ✓", 4))
}
