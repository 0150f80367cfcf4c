package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary amount. Amounts are exact decimals so totals
// round-trip through storage without float drift.
type Money = decimal.Decimal

// Money is written as a bare JSON number, the shape stored carts and the
// commerce API use. Quoted amounts are still accepted on decode.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// Variant names understood by ForVariant.
const (
	VariantSale = "sale"
	VariantCart = "cart"
)

// Line describes a line item used for totals calculation. Nil pointers mean
// the value was not provided.
type Line struct {
	UnitPrice     Money
	OriginalPrice *Money
	VATRate       *decimal.Decimal
	Quantity      int
}

// Totals aggregates computed pricing components. The total_* fields mirror
// their short counterparts and are kept for consumers that read those names.
type Totals struct {
	Subtotal      Money `json:"subtotal"`
	Tax           Money `json:"tax"`
	Discount      Money `json:"discount"`
	Total         Money `json:"total"`
	TotalDiscount Money `json:"total_discount"`
	TotalTax      Money `json:"total_tax"`
	TotalSubtotal Money `json:"total_subtotal"`
	TotalPayment  Money `json:"total_payment"`
}

// Calculator derives Totals from an ordered list of lines.
type Calculator func([]Line) Totals

// ForVariant returns the calculator for the named variant, defaulting to the
// VAT-aware Compute.
func ForVariant(name string) Calculator {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case VariantCart:
		return ComputeSimple
	default:
		return Compute
	}
}

// Compute calculates VAT and discount aware totals for the provided lines.
func Compute(lines []Line) Totals {
	var subtotal, tax, discount, originalSubtotal Money
	for _, line := range lines {
		unitPrice := nonNegative(line.UnitPrice)
		qty := decimal.NewFromInt(int64(max(line.Quantity, 0)))
		vatRate := decimal.Zero
		if line.VATRate != nil {
			vatRate = nonNegative(*line.VATRate)
		}
		originalUnitPrice := unitPrice
		if line.OriginalPrice != nil {
			originalUnitPrice = nonNegative(*line.OriginalPrice)
		}
		perUnitDiscount := nonNegative(originalUnitPrice.Sub(unitPrice))

		lineSubtotal := unitPrice.Mul(qty)
		subtotal = subtotal.Add(lineSubtotal)
		originalSubtotal = originalSubtotal.Add(originalUnitPrice.Mul(qty))
		discount = discount.Add(perUnitDiscount.Mul(qty))
		tax = tax.Add(lineSubtotal.Mul(vatRate).Shift(-2))
	}
	total := subtotal.Add(tax)
	return Totals{
		Subtotal:      subtotal,
		Tax:           tax,
		Discount:      discount,
		Total:         total,
		TotalDiscount: discount,
		TotalTax:      tax,
		TotalSubtotal: originalSubtotal,
		TotalPayment:  total,
	}
}

// ComputeSimple sums price × quantity. A zero quantity counts as one unit.
func ComputeSimple(lines []Line) Totals {
	var subtotal Money
	for _, line := range lines {
		qty := line.Quantity
		if qty == 0 {
			qty = 1
		}
		qtyDec := decimal.NewFromInt(int64(max(qty, 0)))
		subtotal = subtotal.Add(nonNegative(line.UnitPrice).Mul(qtyDec))
	}
	return Totals{
		Subtotal:      subtotal,
		Total:         subtotal,
		TotalSubtotal: subtotal,
		TotalPayment:  subtotal,
	}
}

func nonNegative(v Money) Money {
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}
