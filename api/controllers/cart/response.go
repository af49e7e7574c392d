package cart

import (
	cartsvc "github.com/angelmondragon/shopflow-backend/internal/cart"
)

type cartView struct {
	Cart   cartsvc.Cart   `json:"cart"`
	Totals cartsvc.Totals `json:"totals"`
}

type mergeView struct {
	cartView
	Merge cartsvc.MergeResult `json:"merge"`
}

func newCartView(c cartsvc.Cart, totals cartsvc.Totals) cartView {
	if c.Items == nil {
		c.Items = []cartsvc.Item{}
	}
	c.Token = ""
	return cartView{Cart: c, Totals: totals}
}
