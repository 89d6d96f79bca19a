package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InvoiceTotals is a totals snapshot. All fields are fixed two-decimal strings.
type InvoiceTotals struct {
	Subtotal     string `json:"subtotal"`
	Discount     string `json:"discount"`
	TotalExclTax string `json:"total_excl_tax"`
	Tax          string `json:"tax"`
	Total        string `json:"total"`
}

// LineResult holds one row's rounded figures.
type LineResult struct {
	Gross    decimal.Decimal // price * quantity
	Discount decimal.Decimal
	Amount   decimal.Decimal // Gross - Discount
	Tax      decimal.Decimal
	Rate     TaxRate
	HasRate  bool
	Skipped  bool // price or quantity was not numeric
}

// CalculateLine computes a single row. Each figure is rounded to cents before it is used
// further, so displayed rows always add up to displayed totals.
// A row with an unparseable or negative price or quantity contributes zero.
func CalculateLine(item LineItem, rates TaxRates) LineResult {
	price, okPrice := ParseAmount(item.UnitPrice)
	qty, okQty := ParseAmount(item.Quantity)
	if !okPrice || !okQty || price.IsNegative() || qty.IsNegative() {
		return LineResult{Skipped: true}
	}

	exact := price.Mul(qty)
	gross := round2(exact)
	discount := round2(discountAmount(item.Discount, exact))
	if discount.GreaterThan(gross) {
		discount = gross
	}
	amount := gross.Sub(discount)

	res := LineResult{Gross: gross, Discount: discount, Amount: amount, Tax: decimal.Zero}
	if rate, ok := lookupCode(rates, item.TaxCode); ok {
		res.Rate = rate
		res.HasRate = true
		res.Tax = round2(amount.Mul(rate.Percent).Shift(-2))
	}
	return res
}

// CalculateTotals reduces items to a totals snapshot.
func CalculateTotals(items []LineItem, rates TaxRates) InvoiceTotals {
	subtotal, discount, tax := decimal.Zero, decimal.Zero, decimal.Zero
	for _, item := range items {
		line := CalculateLine(item, rates)
		subtotal = subtotal.Add(line.Gross)
		discount = discount.Add(line.Discount)
		tax = tax.Add(line.Tax)
	}
	exclTax := subtotal.Sub(discount)
	return InvoiceTotals{
		Subtotal:     FormatAmount(subtotal),
		Discount:     FormatAmount(discount),
		TotalExclTax: FormatAmount(exclTax),
		Tax:          FormatAmount(tax),
		Total:        FormatAmount(exclTax.Add(tax)),
	}
}

// WithComputed returns a copy of items with ComputedAmount and ComputedTax filled in.
func WithComputed(items []LineItem, rates TaxRates) []LineItem {
	out := make([]LineItem, len(items))
	for i, item := range items {
		line := CalculateLine(item, rates)
		item.ComputedAmount = FormatAmount(line.Amount)
		item.ComputedTax = FormatAmount(line.Tax)
		out[i] = item
	}
	return out
}

// discountAmount reads a discount as an absolute amount or, with a trailing '%', as a
// percentage of gross. Anything unparseable or negative is no discount.
func discountAmount(raw string, gross decimal.Decimal) decimal.Decimal {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero
	}
	if strings.HasSuffix(s, "%") {
		pct, ok := ParseAmount(strings.TrimSuffix(s, "%"))
		if !ok || pct.IsNegative() {
			return decimal.Zero
		}
		if pct.GreaterThan(hundred) {
			pct = hundred
		}
		return gross.Mul(pct).Shift(-2)
	}
	d, ok := ParseAmount(s)
	if !ok || d.IsNegative() {
		return decimal.Zero
	}
	return d
}
