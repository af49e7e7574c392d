package cart

import (
	"math"

	"github.com/shopspring/decimal"
)

const (
	ShippingSourceDistance = "distance"
	ShippingSourceDefault  = "default"
)

// FeeSchedule prices a delivery distance.
type FeeSchedule interface {
	Fee(distanceKm float64) int64
	DefaultFee() int64
}

// Totals is derived from a cart on demand and never stored.
type Totals struct {
	ItemCount      int    `json:"item_count"`
	Subtotal       int64  `json:"subtotal"`
	Tax            int64  `json:"tax"`
	ShippingFee    int64  `json:"shipping_fee"`
	ShippingSource string `json:"shipping_source"`
	GrandTotal     int64  `json:"grand_total"`
}

// Subtotal sums every line total.
func Subtotal(items []Item) int64 {
	var sum int64
	for _, item := range items {
		sum += item.LineTotal()
	}
	return sum
}

// ComputeTotals prices a cart. A nil or unusable distance bills the default fee;
// an empty cart ships nothing.
func ComputeTotals(c Cart, fees FeeSchedule, taxRate decimal.Decimal, distanceKm *float64) Totals {
	t := Totals{Subtotal: Subtotal(c.Items)}
	for _, item := range c.Items {
		t.ItemCount += item.Quantity
	}

	t.Tax = decimal.NewFromInt(t.Subtotal).Mul(taxRate).Round(0).IntPart()

	switch {
	case t.ItemCount == 0:
		// nothing ships
	case distanceKm != nil && !math.IsNaN(*distanceKm) && !math.IsInf(*distanceKm, 0) && *distanceKm >= 0:
		t.ShippingFee = fees.Fee(*distanceKm)
		t.ShippingSource = ShippingSourceDistance
	default:
		t.ShippingFee = fees.DefaultFee()
		t.ShippingSource = ShippingSourceDefault
	}

	t.GrandTotal = t.Subtotal + t.Tax + t.ShippingFee
	return t
}
