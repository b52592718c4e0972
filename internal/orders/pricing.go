package orders

import "github.com/shopspring/decimal"

// TaxRate is the flat 18% GST applied to every order. Fixed by contract,
// not configurable per product or jurisdiction.
var TaxRate = decimal.RequireFromString("0.18")

// Totals computes subtotal, tax, and total for a set of line snapshots.
// Tax is computed on the aggregated subtotal, not per line, and rounded
// half-away-from-zero to 2 decimals after multiplication. Per-line rounding
// could differ by a cent; the aggregate behavior is the contract.
func Totals(items []OrderItem) (subtotal, tax, total decimal.Decimal) {
	for _, it := range items {
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	subtotal = subtotal.Round(2)
	tax = subtotal.Mul(TaxRate).Round(2)
	total = subtotal.Add(tax).Round(2)
	return subtotal, tax, total
}
