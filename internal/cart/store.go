package cart

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopflow-backend/internal/catalog"
	"github.com/angelmondragon/shopflow-backend/internal/localstate"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
	"github.com/angelmondragon/shopflow-backend/pkg/logger"
)

// Store answers "what is in the cart right now" for an owner, backed by the
// session-local record for anonymous shoppers and the server cart otherwise.
type Store struct {
	local   localstate.Store
	remote  Service
	catalog catalog.Lookup
	fees    FeeSchedule
	taxRate decimal.Decimal
	logg    *logger.Logger
	now     func() time.Time
}

// StoreParams wires a Store.
type StoreParams struct {
	Local   localstate.Store
	Remote  Service
	Catalog catalog.Lookup
	Fees    FeeSchedule
	TaxRate decimal.Decimal
	Logger  *logger.Logger
}

// NewStore builds a Store. Local, Remote, Catalog and Fees are required.
func NewStore(params StoreParams) (*Store, error) {
	if params.Local == nil {
		return nil, fmt.Errorf("local state store required")
	}
	if params.Remote == nil {
		return nil, fmt.Errorf("cart service required")
	}
	if params.Catalog == nil {
		return nil, fmt.Errorf("catalog lookup required")
	}
	if params.Fees == nil {
		return nil, fmt.Errorf("fee schedule required")
	}
	return &Store{
		local:   params.Local,
		remote:  params.Remote,
		catalog: params.Catalog,
		fees:    params.Fees,
		taxRate: params.TaxRate,
		logg:    params.Logger,
		now:     time.Now,
	}, nil
}

// Load returns the current cart. A missing anonymous cart is an empty cart; a
// missing server cart is created.
func (s *Store) Load(ctx context.Context, owner Owner) (Cart, error) {
	if err := owner.validate(); err != nil {
		return Cart{}, err
	}
	cart, err := s.fetch(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	return s.enrich(ctx, cart), nil
}

// Add merges qty into the product's line or appends a new line.
func (s *Store) Add(ctx context.Context, owner Owner, productID uuid.UUID, qty int) (Cart, error) {
	if err := owner.validate(); err != nil {
		return Cart{}, err
	}
	if qty < 1 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	product, err := s.catalog.Get(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Cart{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}

	line := Item{
		ProductID: product.ID,
		Name:      product.Name,
		ImageURL:  product.ImageURL,
		Quantity:  qty,
		UnitPrice: product.Price,
		Available: true,
	}
	return s.apply(ctx, owner,
		func(c *Cart) error {
			c.addLine(line)
			return nil
		},
		func(ctx context.Context, ownerID uuid.UUID) error {
			return s.remote.AddItem(ctx, ownerID, line)
		},
	)
}

// SetQuantity replaces a line's quantity; 0 removes it and negatives are rejected.
func (s *Store) SetQuantity(ctx context.Context, owner Owner, itemID uuid.UUID, qty int) (Cart, error) {
	if err := owner.validate(); err != nil {
		return Cart{}, err
	}
	if qty < 0 {
		return Cart{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be non-negative")
	}
	return s.apply(ctx, owner,
		func(c *Cart) error {
			if qty > 0 && c.indexOfItem(itemID) < 0 {
				return pkgerrors.New(pkgerrors.CodeNotFound, "cart item not found")
			}
			c.setQuantity(itemID, qty)
			return nil
		},
		func(ctx context.Context, ownerID uuid.UUID) error {
			return s.remote.SetQuantity(ctx, ownerID, itemID, qty)
		},
	)
}

// Remove drops a line. Removing an absent line succeeds.
func (s *Store) Remove(ctx context.Context, owner Owner, itemID uuid.UUID) (Cart, error) {
	if err := owner.validate(); err != nil {
		return Cart{}, err
	}
	return s.apply(ctx, owner,
		func(c *Cart) error {
			c.remove(itemID)
			return nil
		},
		func(ctx context.Context, ownerID uuid.UUID) error {
			return s.remote.RemoveItem(ctx, ownerID, itemID)
		},
	)
}

// Clear empties the cart and its backing record.
func (s *Store) Clear(ctx context.Context, owner Owner) error {
	if err := owner.validate(); err != nil {
		return err
	}
	if owner.Authenticated() {
		return s.remote.Clear(ctx, *owner.UserID)
	}
	if err := s.local.Delete(ctx, owner.SessionID, localstate.KeyCart); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear cart")
	}
	return nil
}

// Totals prices a cart; distanceKm is nil until a delivery point is known.
func (s *Store) Totals(c Cart, distanceKm *float64) Totals {
	return ComputeTotals(c, s.fees, s.taxRate, distanceKm)
}

// MergeAnonymous folds the session's anonymous cart into the owner's server
// cart. The merge key names the anonymous cart by token and revision, so a
// replay never adds quantities twice and a later cart in the same session
// always merges.
func (s *Store) MergeAnonymous(ctx context.Context, owner Owner) (Cart, MergeResult, error) {
	if !owner.Authenticated() || owner.SessionID == "" {
		return Cart{}, MergeResult{}, pkgerrors.New(pkgerrors.CodeValidation, "merge requires a signed-in owner and a cart session")
	}
	anonymous, err := s.loadLocal(ctx, owner.SessionID)
	if err != nil {
		return Cart{}, MergeResult{}, err
	}

	var result MergeResult
	if !anonymous.Empty() {
		if anonymous.Token == "" {
			// records written before tokens existed get one now, persisted so a
			// retried merge of the same cart resolves to the same key
			anonymous.Token = uuid.NewString()
			if err := s.local.Save(ctx, owner.SessionID, localstate.KeyCart, anonymous); err != nil {
				return Cart{}, MergeResult{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
			}
		}
		key := mergeKey(owner.SessionID, anonymous)
		result, err = s.remote.Merge(ctx, *owner.UserID, key, anonymous.Items)
		if err != nil {
			return Cart{}, MergeResult{}, err
		}
		// the key is unique to this cart and revision, so an unapplied merge
		// means these exact lines are already in the server cart
		if err := s.local.Delete(ctx, owner.SessionID, localstate.KeyCart); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithSessionID(ctx, owner.SessionID), fmt.Sprintf("cart.merge.local_cleanup_failed: %v", err))
		}
		if s.logg != nil {
			logCtx := s.logg.WithFields(ctx, map[string]any{
				"merge_key":   key,
				"applied":     result.Applied,
				"items_moved": result.ItemsMoved,
			})
			s.logg.Info(logCtx, "cart.merged")
		}
	}

	merged, err := s.Load(ctx, Owner{UserID: owner.UserID})
	if err != nil {
		return Cart{}, MergeResult{}, err
	}
	return merged, result, nil
}

func mergeKey(session string, anonymous Cart) string {
	return fmt.Sprintf("%s:%s:%d", session, anonymous.Token, anonymous.Revision)
}

func (s *Store) apply(
	ctx context.Context,
	owner Owner,
	mutate func(*Cart) error,
	remote func(context.Context, uuid.UUID) error,
) (Cart, error) {
	current, err := s.fetch(ctx, owner)
	if err != nil {
		return Cart{}, err
	}

	var commit func(context.Context, Cart) error
	var refetch func(context.Context) (Cart, error)
	if owner.Authenticated() {
		ownerID := *owner.UserID
		commit = func(ctx context.Context, _ Cart) error {
			return remote(ctx, ownerID)
		}
		refetch = func(ctx context.Context) (Cart, error) {
			fresh, err := s.remote.Get(ctx, ownerID)
			if err != nil && s.logg != nil {
				s.logg.Warn(s.logg.WithUserID(ctx, ownerID.String()), fmt.Sprintf("cart.refetch_failed: %v", err))
			}
			return fresh, err
		}
	} else {
		var saved Cart
		commit = func(ctx context.Context, next Cart) error {
			if next.Token == "" {
				next.Token = uuid.NewString()
			}
			next.Revision++
			next.UpdatedAt = s.now().UTC()
			if err := s.local.Save(ctx, owner.SessionID, localstate.KeyCart, next); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cart")
			}
			saved = next
			return nil
		}
		refetch = func(context.Context) (Cart, error) {
			return saved, nil
		}
	}

	next, err := applyThenReconcile(ctx, current, Cart.Clone, mutate, commit, refetch)
	return s.enrich(ctx, next), err
}

func (s *Store) fetch(ctx context.Context, owner Owner) (Cart, error) {
	if owner.Authenticated() {
		return s.remote.Get(ctx, *owner.UserID)
	}
	return s.loadLocal(ctx, owner.SessionID)
}

func (s *Store) loadLocal(ctx context.Context, session string) (Cart, error) {
	var c Cart
	found, err := s.local.Load(ctx, session, localstate.KeyCart, &c)
	if err != nil {
		return Cart{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cart")
	}
	if !found {
		return Cart{Items: []Item{}}, nil
	}
	c.ID = nil
	if c.Items == nil {
		c.Items = []Item{}
	}
	// a tampered record must not reintroduce zero or negative lines
	kept := c.Items[:0]
	for _, item := range c.Items {
		if item.Quantity >= 1 && item.UnitPrice >= 0 {
			kept = append(kept, item)
		}
	}
	c.Items = kept
	return c, nil
}

// enrich refreshes display data from the catalog. Unit prices stay as captured.
func (s *Store) enrich(ctx context.Context, c Cart) Cart {
	if len(c.Items) == 0 {
		return c
	}
	ids := make([]uuid.UUID, 0, len(c.Items))
	for _, item := range c.Items {
		ids = append(ids, item.ProductID)
	}
	products := s.catalog.GetMany(ctx, ids)

	out := c.Clone()
	for i, item := range out.Items {
		product, ok := products[item.ProductID]
		if !ok || !product.Available {
			out.Items[i].Name = catalog.PlaceholderName
			out.Items[i].Available = false
			continue
		}
		out.Items[i].Name = product.Name
		out.Items[i].ImageURL = product.ImageURL
		out.Items[i].Available = true
	}
	return out
}
