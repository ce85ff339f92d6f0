package job

import (
	"context"
	"log"
	"time"

	"donationpay/internal/config"
)

// DonationExpirer is the part of the donation service the expiry job drives.
type DonationExpirer interface {
	ExpireStale(ctx context.Context, limit int) (int, error)
}

// DonationExpiryJob closes pending donations whose payment window passed
// without a final notification from the gateway.
type DonationExpiryJob struct {
	donations DonationExpirer
	stopCh    chan struct{}
	interval  time.Duration
	batchSize int
}

func NewDonationExpiryJob(donations DonationExpirer, cfg *config.Config) *DonationExpiryJob {
	return &DonationExpiryJob{
		donations: donations,
		stopCh:    make(chan struct{}),
		interval:  time.Duration(cfg.Business.ExpiryJobIntervalSeconds) * time.Second,
		batchSize: 100,
	}
}

func (j *DonationExpiryJob) Start(ctx context.Context) {
	log.Println("[DonationExpiryJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[DonationExpiryJob] context done, exiting")
			return
		case <-j.stopCh:
			log.Println("[DonationExpiryJob] stopped")
			return
		case <-ticker.C:
			j.expire(ctx)
		}
	}
}

func (j *DonationExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *DonationExpiryJob) expire(ctx context.Context) {
	n, err := j.donations.ExpireStale(ctx, j.batchSize)
	if err != nil {
		log.Printf("[DonationExpiryJob] expire failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[DonationExpiryJob] expired %d donations", n)
	}
}
