package cart

import (
	"strings"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

// Owner is the identity a cart belongs to: an authenticated user, an anonymous
// session, or both while a shopper signs in.
type Owner struct {
	UserID    *uuid.UUID
	SessionID string
}

// Authenticated reports whether the owner carries a server identity.
func (o Owner) Authenticated() bool {
	return o.UserID != nil && *o.UserID != uuid.Nil
}

// Anonymous reports whether only a session identifies the owner.
func (o Owner) Anonymous() bool {
	return !o.Authenticated()
}

// StateSession names the local-state bucket for non-cart records such as the
// pending payment marker: the cart session when present, else a per-user bucket.
func (o Owner) StateSession() string {
	if s := strings.TrimSpace(o.SessionID); s != "" {
		return s
	}
	if o.Authenticated() {
		return "user:" + o.UserID.String()
	}
	return ""
}

func (o Owner) validate() error {
	if o.Authenticated() || strings.TrimSpace(o.SessionID) != "" {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "cart owner is required")
}

// Item is one product line.
type Item struct {
	ItemID    uuid.UUID `json:"item_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name"`
	ImageURL  *string   `json:"image_url,omitempty"`
	Quantity  int       `json:"quantity"`
	UnitPrice int64     `json:"unit_price"`
	Available bool      `json:"available"`
}

// LineTotal is unit price times quantity.
func (i Item) LineTotal() int64 {
	return i.UnitPrice * int64(i.Quantity)
}

// Cart is the shopper's pending selection. Anonymous carts have no ID; they
// carry a Token instead, stamped on the first local write and never reused by
// a later cart in the same session.
type Cart struct {
	ID        *uuid.UUID `json:"cart_id"`
	Token     string     `json:"token,omitempty"`
	Items     []Item     `json:"items"`
	Revision  int64      `json:"revision"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Empty reports whether the cart has no lines.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy; snapshots taken for orders never alias the live cart.
func (c Cart) Clone() Cart {
	out := c
	if c.ID != nil {
		id := *c.ID
		out.ID = &id
	}
	out.Items = make([]Item, len(c.Items))
	for i, item := range c.Items {
		if item.ImageURL != nil {
			img := *item.ImageURL
			item.ImageURL = &img
		}
		out.Items[i] = item
	}
	return out
}

func (c Cart) indexOfItem(itemID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ItemID == itemID {
			return i
		}
	}
	return -1
}

func (c Cart) indexOfProduct(productID uuid.UUID) int {
	for i, item := range c.Items {
		if item.ProductID == productID {
			return i
		}
	}
	return -1
}

// addLine merges into an existing product line or appends a new one.
func (c *Cart) addLine(line Item) {
	if idx := c.indexOfProduct(line.ProductID); idx >= 0 {
		c.Items[idx].Quantity += line.Quantity
		return
	}
	if line.ItemID == uuid.Nil {
		line.ItemID = uuid.New()
	}
	c.Items = append(c.Items, line)
}

// setQuantity removes the line when qty is zero. Unknown items are a no-op.
func (c *Cart) setQuantity(itemID uuid.UUID, qty int) {
	idx := c.indexOfItem(itemID)
	if idx < 0 {
		return
	}
	if qty == 0 {
		c.Items = append(c.Items[:idx], c.Items[idx+1:]...)
		return
	}
	c.Items[idx].Quantity = qty
}

func (c *Cart) remove(itemID uuid.UUID) {
	c.setQuantity(itemID, 0)
}
