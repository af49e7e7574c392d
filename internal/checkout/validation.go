package checkout

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopflow-backend/internal/cart"
	"github.com/angelmondragon/shopflow-backend/internal/orders"
	pkgerrors "github.com/angelmondragon/shopflow-backend/pkg/errors"
)

// LineViolation describes a cart line that cannot be ordered as-is.
type LineViolation struct {
	ItemID    uuid.UUID `json:"item_id"`
	ProductID uuid.UUID `json:"product_id"`
	Name      string    `json:"name,omitempty"`
	Reason    string    `json:"reason"`
}

// validateShipping checks the contact and destination fields before any
// network call is made.
func validateShipping(info orders.ShippingInfo) error {
	missing := []string{}
	if strings.TrimSpace(info.RecipientName) == "" {
		missing = append(missing, "recipient_name")
	}
	if strings.TrimSpace(info.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(info.Address) == "" {
		missing = append(missing, "address")
	}
	if len(missing) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "shipping info is incomplete").WithDetails(map[string]any{
		"missing": missing,
	})
}

// validateLines rejects lines a shopper could only have produced by tampering
// with the stored cart.
func validateLines(items []cart.Item) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	var violations []LineViolation
	for _, item := range items {
		reason := ""
		switch {
		case item.ProductID == uuid.Nil:
			reason = "missing product"
		case item.Quantity < 1:
			reason = "quantity must be at least 1"
		case item.UnitPrice < 0:
			reason = "unit price must be non-negative"
		}
		if reason == "" {
			continue
		}
		violations = append(violations, LineViolation{
			ItemID:    item.ItemID,
			ProductID: item.ProductID,
			Name:      item.Name,
			Reason:    reason,
		})
	}
	if len(violations) == 0 {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("%d cart line(s) cannot be ordered", len(violations))).WithDetails(map[string]any{
		"violations": violations,
	})
}

// orderLines copies the cart snapshot into order lines at captured prices.
func orderLines(items []cart.Item) []orders.Line {
	lines := make([]orders.Line, 0, len(items))
	for _, item := range items {
		var image *string
		if item.ImageURL != nil {
			v := *item.ImageURL
			image = &v
		}
		lines = append(lines, orders.Line{
			ProductID: item.ProductID,
			Name:      item.Name,
			ImageURL:  image,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return lines
}
