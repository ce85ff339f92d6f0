package job

import (
	"context"
	"log"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/service"
)

// CampaignAuditor is the part of the campaign service the audit job drives.
type CampaignAuditor interface {
	AuditAll(ctx context.Context, repair bool) ([]*service.AuditReport, error)
}

// CampaignAuditJob periodically compares every campaign's cached total with
// its paid donations. It only reports; repairs are run by hand with
// `donationpay audit --repair`.
type CampaignAuditJob struct {
	campaigns CampaignAuditor
	stopCh    chan struct{}
	interval  time.Duration
}

func NewCampaignAuditJob(campaigns CampaignAuditor, cfg *config.Config) *CampaignAuditJob {
	return &CampaignAuditJob{
		campaigns: campaigns,
		stopCh:    make(chan struct{}),
		interval:  time.Duration(cfg.Business.AuditJobIntervalSeconds) * time.Second,
	}
}

func (j *CampaignAuditJob) Start(ctx context.Context) {
	log.Println("[CampaignAuditJob] started")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[CampaignAuditJob] context done, exiting")
			return
		case <-j.stopCh:
			log.Println("[CampaignAuditJob] stopped")
			return
		case <-ticker.C:
			j.audit(ctx)
		}
	}
}

func (j *CampaignAuditJob) Stop() {
	close(j.stopCh)
}

func (j *CampaignAuditJob) audit(ctx context.Context) int {
	drifted, err := j.campaigns.AuditAll(ctx, false)
	if err != nil {
		log.Printf("[CampaignAuditJob] audit failed: %v", err)
	}
	if len(drifted) > 0 {
		log.Printf("[CampaignAuditJob] %d campaigns drifted from their paid donations", len(drifted))
	}
	return len(drifted)
}
