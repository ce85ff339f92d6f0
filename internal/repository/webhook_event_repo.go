package repository

import (
	"context"

	"donationpay/internal/model"

	"gorm.io/gorm"
)

type WebhookEventRepository struct {
	db *gorm.DB
}

func NewWebhookEventRepository(db *gorm.DB) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

func (r *WebhookEventRepository) Create(ctx context.Context, event *model.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *WebhookEventRepository) ListByOrderID(ctx context.Context, orderID string) ([]*model.WebhookEvent, error) {
	var events []*model.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}
