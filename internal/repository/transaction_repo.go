package repository

import (
	"context"

	"donationpay/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	return pick(r.db, tx).WithContext(ctx).Create(trans).Error
}

// GetByID looks a transaction up by the gateway order id.
func (r *TransactionRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error) {
	var trans model.Transaction
	err := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).First(&trans).Error
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByIDForUpdate(ctx context.Context, tx *gorm.DB, id string) (*model.Transaction, error) {
	var trans model.Transaction
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&trans).Error
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &trans, nil
}

func (r *TransactionRepository) GetByDonationID(ctx context.Context, tx *gorm.DB, donationID string) (*model.Transaction, error) {
	var trans model.Transaction
	err := pick(r.db, tx).WithContext(ctx).Where("donation_id = ?", donationID).First(&trans).Error
	if err != nil {
		return nil, notFound(err, ErrTransactionNotFound)
	}
	return &trans, nil
}

// ApplyPatch writes the non-empty fields of patch. An empty patch is a no-op.
// Callers hold the row FOR UPDATE, so RowsAffected is not checked: MySQL
// reports 0 for an update that leaves every column unchanged.
func (r *TransactionRepository) ApplyPatch(ctx context.Context, tx *gorm.DB, id string, patch model.TransactionPatch) error {
	cols := patch.Columns()
	if len(cols) == 0 {
		return nil
	}

	return pick(r.db, tx).WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(cols).Error
}

func (r *TransactionRepository) SetPaymentSession(ctx context.Context, tx *gorm.DB, id, token, paymentURL string) error {
	result := pick(r.db, tx).WithContext(ctx).
		Model(&model.Transaction{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"snap_token":  token,
			"payment_url": paymentURL,
		})

	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *TransactionRepository) Delete(ctx context.Context, tx *gorm.DB, id string) error {
	result := pick(r.db, tx).WithContext(ctx).Where("id = ?", id).Delete(&model.Transaction{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionNotFound
	}
	return nil
}
