package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"donationpay/internal/gateway"
	"donationpay/internal/infrastructure/lock"
	"donationpay/internal/model"
	"donationpay/internal/referral"
	"donationpay/internal/repository"
	"donationpay/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createReferral(t *testing.T, env *testEnv, code, kind string, value int64, maxUses *int) *model.ReferralCode {
	t.Helper()
	rc := &model.ReferralCode{
		Code:          code,
		DiscountType:  kind,
		DiscountValue: decimal.NewFromInt(value),
		MaxUses:       maxUses,
		IsActive:      true,
	}
	require.NoError(t, env.db.Create(rc).Error)
	return rc
}

func TestDonateOpensPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "air-bersih", 5000000)

	var captured *gateway.PaymentRequest
	env.client.CreatePaymentFunc = func(_ context.Context, req *gateway.PaymentRequest) (*gateway.PaymentSession, error) {
		captured = req
		return &gateway.PaymentSession{Token: "snap-token", RedirectURL: "https://pay.example/snap-token"}, nil
	}

	resp, err := env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey: "air-bersih",
		Name:        "Siti",
		Email:       "siti@example.com",
		Anonymous:   true,
		Amount:      decimal.NewFromInt(150000),
	})
	require.NoError(t, err)

	assert.Equal(t, model.DonationStatusPending, resp.Status)
	assert.Equal(t, "snap-token", resp.SnapToken)
	assert.Equal(t, "https://pay.example/snap-token", resp.PaymentURL)
	assert.True(t, strings.HasPrefix(resp.Invoice, "DON_AIR"), resp.Invoice)
	assert.True(t, strings.HasPrefix(resp.TransactionID, "TRX"), resp.TransactionID)
	assert.False(t, resp.Replayed)

	require.NotNil(t, captured)
	assert.Equal(t, resp.TransactionID, captured.OrderID)
	assert.Equal(t, "Anonymous", captured.CustomerName)
	assert.True(t, decimal.NewFromInt(150000).Equal(captured.Amount))

	tr := reloadTransaction(t, env.db, resp.TransactionID)
	assert.Equal(t, "snap-token", tr.SnapToken)
	assert.Equal(t, gateway.ProviderMidtrans, tr.Gateway)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), tr.ExpiresAt, time.Minute)

	d := reloadDonation(t, env.db, resp.DonationID)
	assert.Equal(t, campaign.ID, d.CampaignID)
	assert.True(t, d.DonationAmount.Equal(d.FinalPrice))
}

func TestDonateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	closed := testutil.CreateCampaign(t, env.db, "closed", 100000)
	require.NoError(t, env.db.Model(closed).Update("status", model.CampaignStatusClosed).Error)
	testutil.CreateCampaign(t, env.db, "open", 100000)

	_, err := env.svc.Donation.Donate(ctx, &DonateRequest{CampaignKey: "missing", Name: "A", Amount: decimal.NewFromInt(10000)})
	assert.ErrorIs(t, err, ErrCampaignNotFound)

	_, err = env.svc.Donation.Donate(ctx, &DonateRequest{CampaignKey: "closed", Name: "A", Amount: decimal.NewFromInt(10000)})
	assert.ErrorIs(t, err, ErrCampaignNotActive)

	_, err = env.svc.Donation.Donate(ctx, &DonateRequest{CampaignKey: "open", Name: "A", Amount: decimal.NewFromInt(999)})
	assert.ErrorIs(t, err, ErrInvalidAmount)

	assert.Equal(t, int64(0), countRows(t, env.db, &model.Donation{}))
	assert.Equal(t, int32(0), env.client.calls.Load())
}

func TestDonateWithReferralCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.CreateCampaign(t, env.db, "beasiswa", 5000000)
	one := 1
	rc := createReferral(t, env, "HEMAT10", model.DiscountTypePercentage, 10, &one)

	resp, err := env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey:  "beasiswa",
		Name:         "Budi",
		Amount:       decimal.NewFromInt(100000),
		ReferralCode: " hemat10 ",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(100000).Equal(resp.OriginalPrice))
	assert.True(t, decimal.NewFromInt(10000).Equal(resp.DiscountAmount))
	assert.True(t, decimal.NewFromInt(90000).Equal(resp.FinalPrice))
	require.NotNil(t, resp.ReferralCode)
	assert.Equal(t, "HEMAT10", *resp.ReferralCode)

	var stored model.ReferralCode
	require.NoError(t, env.db.First(&stored, "id = ?", rc.ID).Error)
	assert.Equal(t, 1, stored.UsedCount)

	_, err = env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey:  "beasiswa",
		Name:         "Citra",
		Amount:       decimal.NewFromInt(100000),
		ReferralCode: "HEMAT10",
	})
	var invalid *ReferralInvalidError
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, referral.ReasonExhausted, invalid.Reason)

	_, err = env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey:  "beasiswa",
		Name:         "Dewi",
		Amount:       decimal.NewFromInt(100000),
		ReferralCode: "NOPE",
	})
	assert.ErrorIs(t, err, ErrReferralNotFound)
	assert.Equal(t, int64(1), countRows(t, env.db, &model.Donation{}))
}

func TestDonateFixedDiscountCannotZeroThePrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.CreateCampaign(t, env.db, "gratis", 5000000)
	createReferral(t, env, "FREE", model.DiscountTypeFixed, 50000, nil)

	_, err := env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey:  "gratis",
		Name:         "Eka",
		Amount:       decimal.NewFromInt(20000),
		ReferralCode: "FREE",
	})
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDonateIdempotencyKey(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	testutil.CreateCampaign(t, env.db, "idem", 5000000)

	fail := true
	env.client.CreatePaymentFunc = func(_ context.Context, req *gateway.PaymentRequest) (*gateway.PaymentSession, error) {
		if fail {
			return nil, &gateway.APIError{Provider: gateway.ProviderMidtrans, StatusCode: 503, Message: "down"}
		}
		return &gateway.PaymentSession{Token: "tok-" + req.OrderID, RedirectURL: "https://pay.example/" + req.OrderID}, nil
	}

	req := &DonateRequest{CampaignKey: "idem", Name: "Fajar", Amount: decimal.NewFromInt(25000), IdempotencyKey: "key-1"}

	_, err := env.svc.Donation.Donate(ctx, req)
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Equal(t, int64(1), countRows(t, env.db, &model.Donation{}))

	fail = false
	first, err := env.svc.Donation.Donate(ctx, req)
	require.NoError(t, err)
	assert.True(t, first.Replayed)
	assert.Equal(t, "tok-"+first.TransactionID, first.SnapToken)

	second, err := env.svc.Donation.Donate(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.DonationID, second.DonationID)
	assert.Equal(t, first.SnapToken, second.SnapToken)

	assert.Equal(t, int64(1), countRows(t, env.db, &model.Donation{}))
	assert.Equal(t, int32(2), env.client.calls.Load())
}

func TestApproveAndReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "manual", 1000000)
	approved, approvedTrans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX50", 60000)
	rejected, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX51", 70000)

	d, err := env.svc.Donation.Approve(ctx, approved.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusPaid, d.Status)

	tr := reloadTransaction(t, env.db, approvedTrans.ID)
	assert.Equal(t, model.PaymentMethodManualTransfer, tr.PaymentMethod)
	assert.Equal(t, model.PaymentProviderQRIS, tr.PaymentProvider)
	assert.NotNil(t, tr.TransactionSuccessTime)
	assert.True(t, decimal.NewFromInt(60000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))

	_, err = env.svc.Donation.Approve(ctx, approved.ID)
	assert.ErrorIs(t, err, ErrDonationNotPending)

	d, err = env.svc.Donation.Reject(ctx, rejected.ID, "transfer proof unreadable")
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusDenied, d.Status)
	assert.Equal(t, "transfer proof unreadable", reloadDonation(t, env.db, rejected.ID).StatusReason)

	_, err = env.svc.Donation.Cancel(ctx, rejected.ID)
	assert.ErrorIs(t, err, ErrDonationNotPending)

	_, err = env.svc.Donation.Approve(ctx, "missing")
	assert.ErrorIs(t, err, ErrDonationNotFound)

	assert.Equal(t, int64(2), countRows(t, env.db, &model.OutboxMessage{}))
}

func TestListPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "list", 1000000)
	testutil.CreatePendingDonation(t, env.db, campaign, "TRX60", 10000)
	paid, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX61", 10000)
	_, err := env.svc.Donation.Approve(ctx, paid.ID)
	require.NoError(t, err)

	list, total, err := env.svc.Donation.ListPending(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, list, 1)
	require.NotNil(t, list[0].Transaction)
	assert.Equal(t, "TRX60", list[0].Transaction.ID)
}

func TestExpireStale(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "expiry", 1000000)
	old, oldTrans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX70", 10000)
	fresh, freshTrans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX71", 10000)

	now := time.Now()
	require.NoError(t, env.db.Model(oldTrans).Update("expires_at", now.Add(-time.Hour)).Error)
	require.NoError(t, env.db.Model(freshTrans).Update("expires_at", now.Add(time.Hour)).Error)

	n, err := env.svc.Donation.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, model.DonationStatusExpired, reloadDonation(t, env.db, old.ID).Status)
	assert.Equal(t, model.DonationStatusPending, reloadDonation(t, env.db, fresh.ID).Status)

	n, err = env.svc.Donation.ExpireStale(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestDonateChargesWholeRupiahAfterDiscount(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "pecahan", 5000000)
	createReferral(t, env, "TENPCT", model.DiscountTypePercentage, 10, nil)

	var charged decimal.Decimal
	env.client.CreatePaymentFunc = func(_ context.Context, req *gateway.PaymentRequest) (*gateway.PaymentSession, error) {
		charged = req.Amount
		return &gateway.PaymentSession{Token: "snap"}, nil
	}

	resp, err := env.svc.Donation.Donate(ctx, &DonateRequest{
		CampaignKey:  "pecahan",
		Name:         "Eka",
		Amount:       decimal.NewFromInt(75001),
		ReferralCode: "TENPCT",
	})
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(67501).Equal(resp.FinalPrice), resp.FinalPrice.String())
	assert.True(t, decimal.NewFromInt(7500).Equal(resp.DiscountAmount), resp.DiscountAmount.String())
	assert.True(t, decimal.NewFromInt(67501).Equal(charged), charged.String())

	d := reloadDonation(t, env.db, resp.DonationID)
	assert.True(t, decimal.NewFromInt(67501).Equal(d.DonationAmount), d.DonationAmount.String())
	assert.True(t, decimal.NewFromInt(67501).Equal(reloadTransaction(t, env.db, resp.TransactionID).GrossAmount))

	result, err := env.svc.Reconcile.HandleNotification(ctx, gateway.ProviderMidtrans,
		midtransBody(t, resp.TransactionID, "200", "67501.00", "settlement", nil), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, DispositionApplied, result.Disposition)
	assert.True(t, decimal.NewFromInt(67501).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
}

func TestListAndGetDonations(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := testutil.CreateCampaign(t, env.db, "list-a", 1000000)
	second := testutil.CreateCampaign(t, env.db, "list-b", 1000000)
	testutil.CreatePendingDonation(t, env.db, first, "TRX110", 10000)
	paid, _ := testutil.CreatePendingDonation(t, env.db, first, "TRX111", 20000)
	testutil.CreatePendingDonation(t, env.db, second, "TRX112", 30000)
	_, err := env.svc.Donation.Approve(ctx, paid.ID)
	require.NoError(t, err)

	all, total, err := env.svc.Donation.List(ctx, repository.DonationFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	byCampaign, total, err := env.svc.Donation.List(ctx, repository.DonationFilter{CampaignID: first.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, byCampaign, 2)

	paidOnly, total, err := env.svc.Donation.List(ctx, repository.DonationFilter{Status: model.DonationStatusPaid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, paidOnly, 1)
	assert.Equal(t, paid.ID, paidOnly[0].ID)
	require.NotNil(t, paidOnly[0].Transaction)
	assert.Equal(t, "TRX111", paidOnly[0].Transaction.ID)

	_, _, err = env.svc.Donation.List(ctx, repository.DonationFilter{Status: "refunded"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "status")

	d, err := env.svc.Donation.Get(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, model.DonationStatusPaid, d.Status)
	require.NotNil(t, d.Transaction)
	assert.NotNil(t, d.Transaction.TransactionSuccessTime)

	_, err = env.svc.Donation.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrDonationNotFound)
}

func TestDeleteDonation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "hapus", 1000000)
	paid, paidTrans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX120", 40000)
	kept, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX121", 25000)
	pending, _ := testutil.CreatePendingDonation(t, env.db, campaign, "TRX122", 15000)

	for _, id := range []string{paid.ID, kept.ID} {
		_, err := env.svc.Donation.Approve(ctx, id)
		require.NoError(t, err)
	}
	require.True(t, decimal.NewFromInt(65000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))

	deleted, err := env.svc.Donation.Delete(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, paid.ID, deleted.ID)
	assert.Equal(t, model.DonationStatusPaid, deleted.Status)

	assert.True(t, decimal.NewFromInt(25000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))
	report, err := env.svc.Campaign.Audit(ctx, campaign.ID, false)
	require.NoError(t, err)
	assert.False(t, report.Drifted())

	var n int64
	require.NoError(t, env.db.Model(&model.Transaction{}).Where("id = ?", paidTrans.ID).Count(&n).Error)
	assert.Zero(t, n)
	_, err = env.svc.Donation.Get(ctx, paid.ID)
	assert.ErrorIs(t, err, ErrDonationNotFound)

	var msg model.OutboxMessage
	require.NoError(t, env.db.Where("message_key = ?", paidTrans.ID).Order("id DESC").First(&msg).Error)
	var event model.DonationStatusEvent
	require.NoError(t, json.Unmarshal([]byte(msg.Payload), &event))
	assert.Equal(t, model.DonationStatusPaid, event.FromStatus)
	assert.Equal(t, model.DonationEventDeleted, event.ToStatus)
	assert.Equal(t, "admin", event.Source)

	// an unpaid donation never touched the total
	_, err = env.svc.Donation.Delete(ctx, pending.ID)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(25000).Equal(reloadCampaign(t, env.db, campaign.ID).CollectedAmount))

	_, err = env.svc.Donation.Delete(ctx, paid.ID)
	assert.ErrorIs(t, err, ErrDonationNotFound)
	assert.Equal(t, int64(1), countRows(t, env.db, &model.Donation{}))
}

func TestDeleteDonationWaitsForOrderLock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	campaign := testutil.CreateCampaign(t, env.db, "hapus-lock", 1000000)
	d, trans := testutil.CreatePendingDonation(t, env.db, campaign, "TRX130", 10000)

	locker := lock.NewLocalLocker(50 * time.Millisecond)
	svc := NewServices(env.db, env.cfg, locker, env.client, DefaultWebhookSources(env.cfg))

	unlock, err := locker.Lock(ctx, lock.OrderLockKey(trans.ID), "holder")
	require.NoError(t, err)
	defer unlock()

	_, err = svc.Donation.Delete(ctx, d.ID)
	assert.ErrorIs(t, err, ErrLockTimeout)
	assert.Equal(t, int64(1), countRows(t, env.db, &model.Donation{}))
}
