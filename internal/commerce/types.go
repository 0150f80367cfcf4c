package commerce

import (
	"time"

	"github.com/shopspring/decimal"
)

// Category groups products in the commerce catalog.
type Category struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Discount is an active price reduction attached to a product.
type Discount struct {
	ID         string          `json:"id"`
	Percentage decimal.Decimal `json:"percentage"`
	FlatAmount decimal.Decimal `json:"flat_amount"`
	IsActive   bool            `json:"is_active"`
}

// Product is a sellable item as served by the commerce API. VAT is a
// percentage and may arrive as a string or a number.
type Product struct {
	ID          string          `json:"id"`
	SKU         string          `json:"sku,omitempty"`
	Name        string          `json:"name"`
	Price       decimal.Decimal `json:"price"`
	VAT         decimal.Decimal `json:"vat"`
	Stock       *int            `json:"stock,omitempty"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Discounts   []Discount      `json:"discounts,omitempty"`
	Category    *Category       `json:"Category,omitempty"`
	CategoryID  *int            `json:"category_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// DiscountedPrice applies the first active discount to Price. The second
// return value reports whether a discount was applied.
func (p Product) DiscountedPrice() (decimal.Decimal, bool) {
	for _, d := range p.Discounts {
		if !d.IsActive {
			continue
		}
		price := p.Price
		if d.Percentage.IsPositive() {
			price = price.Sub(price.Mul(d.Percentage).Shift(-2))
		}
		if d.FlatAmount.IsPositive() {
			price = price.Sub(d.FlatAmount)
		}
		if price.IsNegative() {
			price = decimal.Zero
		}
		return price, price.LessThan(p.Price)
	}
	return p.Price, false
}

// ProductQuery filters the product listing.
type ProductQuery struct {
	CategoryID *int
	Page       int
	Limit      int
	Search     string
}

// ProductPage is one page of the product listing.
type ProductPage struct {
	Products   []Product `json:"products"`
	Total      int       `json:"total"`
	Page       int       `json:"page"`
	Limit      int       `json:"limit"`
	TotalPages int       `json:"totalPages"`
}

// StoreStock is the quantity of a product held by one store.
type StoreStock struct {
	ID        string    `json:"id"`
	Quantity  int       `json:"quantity"`
	Remarks   *string   `json:"remarks"`
	CreatedAt time.Time `json:"created_at"`
}

// StockLevel aggregates store stock for one product.
type StockLevel struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	Stores    []StoreStock `json:"stores,omitempty"`
}

// SaleLine is one product of a sale submission.
type SaleLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// SalePayload is the body of POST /sales/create.
type SalePayload struct {
	Products      []SaleLine       `json:"products"`
	PaymentMethod string           `json:"payment_method"`
	PhoneNumber   string           `json:"phone_number,omitempty"`
	CustomerName  string           `json:"customer_name,omitempty"`
	Subtotal      *decimal.Decimal `json:"subtotal,omitempty"`
	Tax           *decimal.Decimal `json:"tax,omitempty"`
	Total         *decimal.Decimal `json:"total,omitempty"`
}

// SaleReceipt is the decoded result of a sale submission.
type SaleReceipt struct {
	ID      string `json:"id,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"-"`
}
