package cart

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-storefront/internal/pricing"
)

// Unlimited is the stock ceiling used when no limit applies.
const Unlimited = math.MaxInt

// LineItem is one product entry in a cart.
type LineItem struct {
	ProductID         string           `json:"product_id"`
	Name              string           `json:"name,omitempty"`
	UnitPrice         pricing.Money    `json:"unit_price"`
	OriginalPrice     *pricing.Money   `json:"original_price,omitempty"`
	VATRate           *decimal.Decimal `json:"vat_rate,omitempty"`
	Quantity          int              `json:"quantity"`
	AvailableQuantity *int             `json:"available_quantity,omitempty"`
}

// Cart is an ordered list of line items with cached aggregate totals.
type Cart struct {
	Products []LineItem `json:"products"`
	pricing.Totals
}

// Collection is the ordered list of carts. Only index 0 is ever populated.
type Collection []Cart

// Product is the catalog record handed to Add.
type Product struct {
	ID            string
	Name          string
	Price         pricing.Money
	OriginalPrice *pricing.Money
	VATRate       *decimal.Decimal
	Stock         *int
}

func (p Product) lineItem(qty int) LineItem {
	item := LineItem{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  qty,
	}
	if p.OriginalPrice != nil {
		v := *p.OriginalPrice
		item.OriginalPrice = &v
	}
	if p.VATRate != nil {
		v := *p.VATRate
		item.VATRate = &v
	}
	if p.Stock != nil {
		v := *p.Stock
		item.AvailableQuantity = &v
	}
	return item
}

func lines(items []LineItem) []pricing.Line {
	out := make([]pricing.Line, 0, len(items))
	for _, it := range items {
		out = append(out, pricing.Line{
			UnitPrice:     it.UnitPrice,
			OriginalPrice: it.OriginalPrice,
			VATRate:       it.VATRate,
			Quantity:      it.Quantity,
		})
	}
	return out
}

func (c Cart) clone() Cart {
	out := Cart{Totals: c.Totals, Products: make([]LineItem, len(c.Products))}
	for i, it := range c.Products {
		cp := it
		if it.OriginalPrice != nil {
			v := *it.OriginalPrice
			cp.OriginalPrice = &v
		}
		if it.VATRate != nil {
			v := *it.VATRate
			cp.VATRate = &v
		}
		if it.AvailableQuantity != nil {
			v := *it.AvailableQuantity
			cp.AvailableQuantity = &v
		}
		out.Products[i] = cp
	}
	return out
}

func (c Collection) clone() Collection {
	out := make(Collection, len(c))
	for i, cart := range c {
		out[i] = cart.clone()
	}
	return out
}

func (c Cart) indexOf(productID string) int {
	for i, it := range c.Products {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// ItemCount returns the total number of units across all line items.
func (c Cart) ItemCount() int {
	n := 0
	for _, it := range c.Products {
		n += it.Quantity
	}
	return n
}
