package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"donationpay/internal/infrastructure/lock"
	"donationpay/internal/ledger"
	"donationpay/internal/model"
	"donationpay/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ledgerStore is the only writer of donation status. Webhooks, admin
// decisions and deletes, and expiry all go through run, so they serialise on
// the same order lock and row locks.
type ledgerStore struct {
	db           *gorm.DB
	locker       lock.Locker
	donations    *repository.DonationRepository
	transactions *repository.TransactionRepository
	campaigns    *repository.CampaignRepository
	outbox       *repository.OutboxRepository
	topic        string
}

func newLedgerStore(db *gorm.DB, locker lock.Locker, topic string) *ledgerStore {
	return &ledgerStore{
		db:           db,
		locker:       locker,
		donations:    repository.NewDonationRepository(db),
		transactions: repository.NewTransactionRepository(db),
		campaigns:    repository.NewCampaignRepository(db),
		outbox:       repository.NewOutboxRepository(db),
		topic:        topic,
	}
}

// run takes the order lock, opens a transaction, locks the transaction and
// donation rows and loads the owning campaign, then hands them to fn. Inside
// fn only tx may be used.
func (s *ledgerStore) run(ctx context.Context, orderID string, fn func(tx *gorm.DB, donation *model.Donation, trans *model.Transaction) error) error {
	unlock, err := s.locker.Lock(ctx, lock.OrderLockKey(orderID), uuid.NewString())
	if err != nil {
		if errors.Is(err, lock.ErrLockFailed) {
			return ErrLockTimeout
		}
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	defer unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trans, err := s.transactions.GetByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		donation, err := s.donations.GetByIDForUpdate(ctx, tx, trans.DonationID)
		if err != nil {
			return err
		}
		if _, err := s.campaigns.GetByID(ctx, tx, donation.CampaignID); err != nil {
			return err
		}
		return fn(tx, donation, trans)
	})
}

// persist writes a decision: status swap, transaction facts, campaign credit
// and the status event. Either all of it commits with tx or none of it does.
func (s *ledgerStore) persist(ctx context.Context, tx *gorm.DB, donation *model.Donation, trans *model.Transaction, d ledger.Decision, source, reason string) error {
	if d.Changed {
		if err := s.donations.UpdateStatus(ctx, tx, donation.ID, d.From, d.To, reason); err != nil {
			return fmt.Errorf("update donation status: %w", err)
		}
	}

	if err := s.transactions.ApplyPatch(ctx, tx, trans.ID, d.Patch); err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	if d.Credit {
		if err := s.campaigns.IncrementCollected(ctx, tx, donation.CampaignID, donation.DonationAmount); err != nil {
			return fmt.Errorf("credit campaign: %w", err)
		}
	}

	if d.Changed {
		event := model.DonationStatusEvent{
			DonationID:    donation.ID,
			TransactionID: trans.ID,
			CampaignID:    donation.CampaignID,
			Invoice:       donation.Invoice,
			Amount:        donation.DonationAmount.StringFixed(2),
			FromStatus:    d.From,
			ToStatus:      d.To,
			Source:        source,
			OccurredAt:    time.Now(),
		}
		if err := s.outbox.Enqueue(ctx, tx, s.topic, trans.ID, event); err != nil {
			return fmt.Errorf("enqueue status event: %w", err)
		}
	}

	donation.Status = d.To
	return nil
}
