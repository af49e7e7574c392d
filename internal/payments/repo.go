package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/enums"
)

// TransactionRepository persists payment attempts.
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	// Create inserts a PENDING attempt. It reports false when the order
	// already has one.
	Create(ctx context.Context, txn *models.PaymentTransaction) (bool, error)
	FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error)
	FindByProviderTransactionID(ctx context.Context, providerTransactionID string) (*models.PaymentTransaction, error)
	SetPayURL(ctx context.Context, id uuid.UUID, payURL string) error
	// Finalize moves a PENDING attempt to a terminal status. Only the first
	// caller wins.
	Finalize(ctx context.Context, id uuid.UUID, result Finalization) (bool, error)
	ListPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]models.PaymentTransaction, error)
}

// Finalization is the terminal data written onto an attempt.
type Finalization struct {
	Status          enums.TransactionStatus
	ResultCode      *int
	Message         string
	ProviderOrderID string
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	if tx == nil {
		return r
	}
	return &transactionRepository{db: tx}
}

func (r *transactionRepository) Create(ctx context.Context, txn *models.PaymentTransaction) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(txn)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) FindPendingByOrder(ctx context.Context, orderID uuid.UUID) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND status = ?", orderID, enums.TransactionStatusPending).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) FindByProviderTransactionID(ctx context.Context, providerTransactionID string) (*models.PaymentTransaction, error) {
	var txn models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider_transaction_id = ?", providerTransactionID).
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *transactionRepository) SetPayURL(ctx context.Context, id uuid.UUID, payURL string) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"pay_url":    payURL,
			"updated_at": time.Now().UTC(),
		}).Error
}

func (r *transactionRepository) Finalize(ctx context.Context, id uuid.UUID, result Finalization) (bool, error) {
	now := time.Now().UTC()
	updates := map[string]any{
		"status":       result.Status,
		"finalized_at": now,
		"updated_at":   now,
	}
	if result.ResultCode != nil {
		updates["result_code"] = *result.ResultCode
	}
	if result.Message != "" {
		updates["message"] = result.Message
	}
	if result.ProviderOrderID != "" {
		updates["provider_order_id"] = result.ProviderOrderID
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ? AND status = ?", id, enums.TransactionStatusPending).
		UpdateColumns(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *transactionRepository) ListPendingCreatedBefore(ctx context.Context, before time.Time, limit int) ([]models.PaymentTransaction, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.TransactionStatusPending, before).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}
