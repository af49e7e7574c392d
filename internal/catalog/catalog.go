// Package catalog resolves product display data for cart lines.
package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// PlaceholderName is shown for lines whose product cannot be resolved.
const PlaceholderName = "Unavailable product"

// Product is the catalog projection a cart line needs.
type Product struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Price     int64     `json:"price"`
	ImageURL  *string   `json:"image_url,omitempty"`
	Available bool      `json:"available"`
}

// Placeholder returns the degraded projection for an unknown product.
func Placeholder(id uuid.UUID) Product {
	return Product{ID: id, Name: PlaceholderName}
}

// Lookup resolves products by id.
type Lookup interface {
	Get(ctx context.Context, id uuid.UUID) (Product, error)
	GetMany(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]Product
}

// Repository reads the products table.
type Repository struct {
	db   *gorm.DB
	logg *logger.Logger
}

func NewRepository(db *gorm.DB, logg *logger.Logger) *Repository {
	return &Repository{db: db, logg: logg}
}

// Get returns an active product or gorm.ErrRecordNotFound.
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&row).Error
	if err != nil {
		return Product{}, err
	}
	return fromModel(row), nil
}

// GetMany never fails: ids that are missing or unreadable map to placeholders.
func (r *Repository) GetMany(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]Product {
	out := make(map[uuid.UUID]Product, len(ids))
	for _, id := range ids {
		out[id] = Placeholder(id)
	}
	if len(ids) == 0 {
		return out
	}

	var rows []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND active = ?", ids, true).
		Find(&rows).Error
	if err != nil {
		if r.logg != nil {
			r.logg.Warn(r.logg.WithField(ctx, "product_count", len(ids)), fmt.Sprintf("catalog.lookup_failed: %v", err))
		}
		return out
	}
	for _, row := range rows {
		out[row.ID] = fromModel(row)
	}
	return out
}

func fromModel(row models.Product) Product {
	return Product{
		ID:        row.ID,
		Name:      row.Name,
		Price:     row.Price,
		ImageURL:  row.ImageURL,
		Available: row.Active,
	}
}
