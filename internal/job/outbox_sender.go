package job

import (
	"context"
	"log"
	"time"

	"donationpay/internal/config"
	"donationpay/internal/infrastructure/mq"
	"donationpay/internal/model"
	"donationpay/internal/repository"

	"gorm.io/gorm"
)

// OutboxSender drains donation status events to Kafka. Messages are
// delivered at least once and in id order within a batch.
type OutboxSender struct {
	outboxRepo *repository.OutboxRepository
	publisher  mq.Publisher
	maxRetries int
	stopCh     chan struct{}
	interval   time.Duration
	batchSize  int
}

func NewOutboxSender(db *gorm.DB, publisher mq.Publisher, cfg *config.Config) *OutboxSender {
	return &OutboxSender{
		outboxRepo: repository.NewOutboxRepository(db),
		publisher:  publisher,
		maxRetries: cfg.Business.MaxRetryCount,
		stopCh:     make(chan struct{}),
		interval:   time.Duration(cfg.Business.OutboxIntervalMs) * time.Millisecond,
		batchSize:  100,
	}
}

func (s *OutboxSender) Start(ctx context.Context) {
	log.Println("[OutboxSender] started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[OutboxSender] context done, exiting")
			return
		case <-s.stopCh:
			log.Println("[OutboxSender] stopped")
			return
		case <-ticker.C:
			s.processPendingMessages(ctx)
		}
	}
}

func (s *OutboxSender) Stop() {
	close(s.stopCh)
}

func (s *OutboxSender) processPendingMessages(ctx context.Context) {
	messages, err := s.outboxRepo.GetPendingMessages(ctx, s.batchSize)
	if err != nil {
		log.Printf("[OutboxSender] query pending messages failed: %v", err)
		return
	}

	for _, msg := range messages {
		s.sendMessage(ctx, msg)
	}
}

func (s *OutboxSender) sendMessage(ctx context.Context, msg *model.OutboxMessage) {
	err := s.publisher.Publish(msg.Topic, msg.MessageKey, msg.Payload)
	if err == nil {
		if updateErr := s.outboxRepo.MarkSent(ctx, msg.ID); updateErr != nil {
			log.Printf("[OutboxSender] mark sent failed: id=%d, err=%v", msg.ID, updateErr)
		}
		return
	}

	log.Printf("[OutboxSender] publish failed: id=%d, err=%v", msg.ID, err)

	exhausted, err := s.outboxRepo.RecordFailure(ctx, msg.ID, msg.RetryCount, s.maxRetries)
	if err != nil {
		log.Printf("[OutboxSender] record failure failed: id=%d, err=%v", msg.ID, err)
		return
	}
	if exhausted {
		log.Printf("[OutboxSender] retries exhausted, marked FAILED: id=%d, key=%s", msg.ID, msg.MessageKey)
	}
}

// RequeueFailed gives FAILED messages a fresh retry budget. It returns how
// many were requeued.
func (s *OutboxSender) RequeueFailed(ctx context.Context, limit int) (int, error) {
	messages, err := s.outboxRepo.GetFailedMessages(ctx, limit)
	if err != nil {
		return 0, err
	}

	requeued := 0
	for _, msg := range messages {
		if err := s.outboxRepo.Requeue(ctx, msg.ID); err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}
