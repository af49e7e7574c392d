package cart

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
)

// CartRepository defines the persistence surface required by the cart service.
type CartRepository interface {
	WithTx(tx *gorm.DB) CartRepository
	FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error)
	Create(ctx context.Context, record *models.Cart) (bool, error)
	Touch(ctx context.Context, cartID uuid.UUID) error
	FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error)
	InsertItem(ctx context.Context, item *models.CartItem) error
	IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (bool, error)
	DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error
	DeleteItems(ctx context.Context, cartID uuid.UUID) error
	RecordMerge(ctx context.Context, merge *models.CartMerge) (bool, error)
}

// Repository persists server carts with gorm.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a cart repository bound to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx binds the repository to a transaction.
func (r *Repository) WithTx(tx *gorm.DB) CartRepository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// FindByOwner loads the owner's cart with items in display order.
func (r *Repository) FindByOwner(ctx context.Context, ownerID uuid.UUID) (*models.Cart, error) {
	var record models.Cart
	err := r.db.WithContext(ctx).
		Preload("Items", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("position ASC").Order("created_at ASC")
		}).
		Where("owner_id = ?", ownerID).
		First(&record).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Create inserts the cart unless the owner already has one. It reports whether a row was written.
func (r *Repository) Create(ctx context.Context, record *models.Cart) (bool, error) {
	res := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "owner_id"}}, DoNothing: true}).
		Create(record)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Touch bumps updated_at so concurrent readers see the cart changed.
func (r *Repository) Touch(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Cart{}).
		Where("id = ?", cartID).
		Update("updated_at", gorm.Expr("CURRENT_TIMESTAMP")).Error
}

func (r *Repository) FindItemByProduct(ctx context.Context, cartID, productID uuid.UUID) (*models.CartItem, error) {
	var item models.CartItem
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND product_id = ?", cartID, productID).
		First(&item).Error
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// InsertItem appends a line after the current last position.
func (r *Repository) InsertItem(ctx context.Context, item *models.CartItem) error {
	var last int64
	if err := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("cart_id = ?", item.CartID).
		Select("COALESCE(MAX(position), -1)").
		Row().Scan(&last); err != nil {
		return err
	}
	item.Position = int(last) + 1
	return r.db.WithContext(ctx).Create(item).Error
}

// IncrementItem adds delta in SQL so concurrent adds from two devices both count.
func (r *Repository) IncrementItem(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ?", itemID).
		UpdateColumns(map[string]any{
			"quantity":   gorm.Expr("quantity + ?", delta),
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		}).Error
}

// UpdateItemQuantity reports whether a row in the cart was changed.
func (r *Repository) UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartItem{}).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		UpdateColumns(map[string]any{
			"quantity":   qty,
			"updated_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *Repository) DeleteItem(ctx context.Context, cartID, itemID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND cart_id = ?", itemID, cartID).
		Delete(&models.CartItem{}).Error
}

func (r *Repository) DeleteItems(ctx context.Context, cartID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("cart_id = ?", cartID).
		Delete(&models.CartItem{}).Error
}

// RecordMerge returns false when the merge key was already applied.
func (r *Repository) RecordMerge(ctx context.Context, merge *models.CartMerge) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(merge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
