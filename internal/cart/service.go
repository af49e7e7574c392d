package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the server-backed cart resource of authenticated owners.
type Service interface {
	Get(ctx context.Context, ownerID uuid.UUID) (Cart, error)
	AddItem(ctx context.Context, ownerID uuid.UUID, line Item) error
	SetQuantity(ctx context.Context, ownerID, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, ownerID, itemID uuid.UUID) error
	Clear(ctx context.Context, ownerID uuid.UUID) error
	Merge(ctx context.Context, ownerID uuid.UUID, mergeKey string, items []Item) (MergeResult, error)
}

// MergeResult describes an anonymous-to-server merge.
type MergeResult struct {
	Applied    bool `json:"applied"`
	ItemsMoved int  `json:"items_moved"`
}

type service struct {
	repo CartRepository
	tx   txRunner
}

// NewService builds the server cart service.
func NewService(repo CartRepository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("cart repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx}, nil
}

// Get returns the owner's cart, creating an empty one on first access.
func (s *service) Get(ctx context.Context, ownerID uuid.UUID) (Cart, error) {
	if ownerID == uuid.Nil {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	record, err := s.ensureCart(ctx, s.repo, ownerID)
	if err != nil {
		return Cart{}, err
	}
	return fromRecord(record), nil
}

func (s *service) AddItem(ctx context.Context, ownerID uuid.UUID, line Item) error {
	if line.Quantity < 1 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	if line.UnitPrice < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "unit price must be non-negative")
	}
	return s.mutate(ctx, ownerID, func(repo CartRepository, cart *models.Cart) error {
		existing, err := repo.FindItemByProduct(ctx, cart.ID, line.ProductID)
		switch {
		case err == nil:
			return repo.IncrementItem(ctx, existing.ID, line.Quantity)
		case errors.Is(err, gorm.ErrRecordNotFound):
			return repo.InsertItem(ctx, &models.CartItem{
				CartID:      cart.ID,
				ProductID:   line.ProductID,
				ProductName: line.Name,
				ImageURL:    line.ImageURL,
				Quantity:    line.Quantity,
				UnitPrice:   line.UnitPrice,
			})
		default:
			return err
		}
	})
}

// SetQuantity with qty 0 removes the line.
func (s *service) SetQuantity(ctx context.Context, ownerID, itemID uuid.UUID, qty int) error {
	if qty < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}
	if qty == 0 {
		return s.RemoveItem(ctx, ownerID, itemID)
	}
	return s.mutate(ctx, ownerID, func(repo CartRepository, cart *models.Cart) error {
		updated, err := repo.UpdateItemQuantity(ctx, cart.ID, itemID, qty)
		if err != nil {
			return err
		}
		if !updated {
			return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
		}
		return nil
	})
}

// RemoveItem is idempotent.
func (s *service) RemoveItem(ctx context.Context, ownerID, itemID uuid.UUID) error {
	return s.mutate(ctx, ownerID, func(repo CartRepository, cart *models.Cart) error {
		return repo.DeleteItem(ctx, cart.ID, itemID)
	})
}

func (s *service) Clear(ctx context.Context, ownerID uuid.UUID) error {
	return s.mutate(ctx, ownerID, func(repo CartRepository, cart *models.Cart) error {
		return repo.DeleteItems(ctx, cart.ID)
	})
}

// Merge folds anonymous lines into the server cart once per merge key.
func (s *service) Merge(ctx context.Context, ownerID uuid.UUID, mergeKey string, items []Item) (MergeResult, error) {
	mergeKey = strings.TrimSpace(mergeKey)
	if mergeKey == "" {
		return MergeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "merge key is required")
	}
	for _, item := range items {
		if item.Quantity < 1 {
			return MergeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "merged quantities must be at least 1")
		}
	}

	var result MergeResult
	err := s.mutate(ctx, ownerID, func(repo CartRepository, cart *models.Cart) error {
		applied, err := repo.RecordMerge(ctx, &models.CartMerge{
			CartID:     cart.ID,
			MergeKey:   mergeKey,
			ItemsMoved: len(items),
		})
		if err != nil || !applied {
			return err
		}
		for _, item := range items {
			existing, err := repo.FindItemByProduct(ctx, cart.ID, item.ProductID)
			switch {
			case err == nil:
				err = repo.IncrementItem(ctx, existing.ID, item.Quantity)
			case errors.Is(err, gorm.ErrRecordNotFound):
				err = repo.InsertItem(ctx, &models.CartItem{
					CartID:      cart.ID,
					ProductID:   item.ProductID,
					ProductName: item.Name,
					ImageURL:    item.ImageURL,
					Quantity:    item.Quantity,
					UnitPrice:   item.UnitPrice,
				})
			}
			if err != nil {
				return err
			}
		}
		result = MergeResult{Applied: true, ItemsMoved: len(items)}
		return nil
	})
	if err != nil {
		return MergeResult{}, err
	}
	return result, nil
}

func (s *service) mutate(ctx context.Context, ownerID uuid.UUID, fn func(repo CartRepository, cart *models.Cart) error) error {
	if ownerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "owner id is required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		record, err := s.ensureCart(ctx, repo, ownerID)
		if err != nil {
			return err
		}
		if err := fn(repo, record); err != nil {
			return err
		}
		return repo.Touch(ctx, record.ID)
	})
	return asServiceError(err, "update cart")
}

func (s *service) ensureCart(ctx context.Context, repo CartRepository, ownerID uuid.UUID) (*models.Cart, error) {
	record, err := repo.FindByOwner(ctx, ownerID)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, asServiceError(err, "load cart")
	}

	record = &models.Cart{OwnerID: ownerID}
	created, err := repo.Create(ctx, record)
	if err != nil {
		return nil, asServiceError(err, "create cart")
	}
	if !created {
		// another request created it first
		record, err = repo.FindByOwner(ctx, ownerID)
		if err != nil {
			return nil, asServiceError(err, "load cart")
		}
	}
	return record, nil
}

func asServiceError(err error, action string) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, action)
}

func fromRecord(record *models.Cart) Cart {
	id := record.ID
	out := Cart{
		ID:        &id,
		Items:     make([]Item, 0, len(record.Items)),
		UpdatedAt: record.UpdatedAt,
	}
	for _, row := range record.Items {
		out.Items = append(out.Items, Item{
			ItemID:    row.ID,
			ProductID: row.ProductID,
			Name:      row.ProductName,
			ImageURL:  row.ImageURL,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
			Available: true,
		})
	}
	return out
}
