package service

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/gateway"
	"donationpay/internal/infrastructure/lock"
	"donationpay/internal/model"
	"donationpay/internal/signature"
	"donationpay/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testServerKey = "SB-Mid-server-test"

type fakeClient struct {
	CreatePaymentFunc func(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentSession, error)
	calls             atomic.Int32
}

func (f *fakeClient) Provider() string {
	return gateway.ProviderMidtrans
}

func (f *fakeClient) CreatePayment(ctx context.Context, req *gateway.PaymentRequest) (*gateway.PaymentSession, error) {
	f.calls.Add(1)
	if f.CreatePaymentFunc != nil {
		return f.CreatePaymentFunc(ctx, req)
	}
	return &gateway.PaymentSession{
		Token:       "snap-" + req.OrderID,
		RedirectURL: "https://app.sandbox.midtrans.com/snap/v2/vtweb/snap-" + req.OrderID,
	}, nil
}

type testEnv struct {
	db     *gorm.DB
	cfg    *config.Config
	locker *lock.LocalLocker
	client *fakeClient
	svc    *Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	cfg := config.Default()
	cfg.Midtrans.ServerKey = testServerKey
	cfg.Tripay.PrivateKey = "tripay-private"

	locker := lock.NewLocalLocker(5 * time.Second)
	client := &fakeClient{}
	return &testEnv{
		db:     db,
		cfg:    cfg,
		locker: locker,
		client: client,
		svc:    NewServices(db, cfg, locker, client, DefaultWebhookSources(cfg)),
	}
}

// midtransBody builds a correctly signed Midtrans notification. extra fields
// are merged over the signed ones.
func midtransBody(t *testing.T, orderID, statusCode, gross, status string, extra map[string]any) []byte {
	t.Helper()

	sig := signature.NewMidtransVerifier(testServerKey).Sign([]byte(orderID + statusCode + gross))
	payload := map[string]any{
		"order_id":           orderID,
		"status_code":        statusCode,
		"gross_amount":       gross,
		"signature_key":      sig,
		"transaction_status": status,
		"transaction_id":     "gw-" + orderID,
		"payment_type":       "bank_transfer",
	}
	for k, v := range extra {
		payload[k] = v
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func reloadDonation(t *testing.T, db *gorm.DB, id string) *model.Donation {
	t.Helper()
	var d model.Donation
	require.NoError(t, db.Where("id = ?", id).First(&d).Error)
	return &d
}

func reloadTransaction(t *testing.T, db *gorm.DB, id string) *model.Transaction {
	t.Helper()
	var tr model.Transaction
	require.NoError(t, db.Where("id = ?", id).First(&tr).Error)
	return &tr
}

func reloadCampaign(t *testing.T, db *gorm.DB, id string) *model.Campaign {
	t.Helper()
	var c model.Campaign
	require.NoError(t, db.Where("id = ?", id).First(&c).Error)
	return &c
}

func countRows(t *testing.T, db *gorm.DB, m any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(m).Count(&n).Error)
	return n
}
