// Package testutil provides shared helpers for package tests.
package testutil

import (
	"fmt"
	"testing"

	"donationpay/internal/infrastructure/database"
	"donationpay/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewDB returns an isolated in-memory SQLite database with the full schema.
// The pool is pinned to one connection so the shared-cache database lives as
// long as the test and concurrent callers queue instead of failing with
// SQLITE_BUSY.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateCampaign inserts an active campaign.
func CreateCampaign(t *testing.T, db *gorm.DB, slug string, target int64) *model.Campaign {
	t.Helper()

	c := &model.Campaign{
		Slug:            slug,
		Title:           "Campaign " + slug,
		TargetAmount:    decimal.NewFromInt(target),
		CollectedAmount: decimal.Zero,
		Status:          model.CampaignStatusActive,
	}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return c
}

// CreatePendingDonation inserts a pending donation with its transaction.
func CreatePendingDonation(t *testing.T, db *gorm.DB, campaign *model.Campaign, orderID string, amount int64) (*model.Donation, *model.Transaction) {
	t.Helper()

	value := decimal.NewFromInt(amount)
	d := &model.Donation{
		CampaignID:     campaign.ID,
		Name:           "Donor " + orderID,
		Email:          "donor@example.com",
		Invoice:        "DON_" + orderID,
		DonationAmount: value,
		OriginalPrice:  value,
		DiscountAmount: decimal.Zero,
		FinalPrice:     value,
		Status:         model.DonationStatusPending,
	}
	if err := db.Create(d).Error; err != nil {
		t.Fatalf("create donation: %v", err)
	}

	tr := &model.Transaction{
		ID:          orderID,
		DonationID:  d.ID,
		Gateway:     "midtrans",
		GrossAmount: value,
	}
	if err := db.Create(tr).Error; err != nil {
		t.Fatalf("create transaction: %v", err)
	}
	return d, tr
}
