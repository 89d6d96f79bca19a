package invoicing

import "github.com/shopspring/decimal"

// LineItem is one editable invoice row as the form holds it.
// Price, quantity and discount stay as typed; ComputedAmount and ComputedTax are derived.
type LineItem struct {
	ProductID      string `json:"product_id" bson:"product_id"`
	Description    string `json:"description,omitempty" bson:"description,omitempty"`
	UnitPrice      string `json:"unit_price" bson:"unit_price"`
	Quantity       string `json:"quantity" bson:"quantity"`
	Discount       string `json:"discount,omitempty" bson:"discount,omitempty"` // amount ("10") or percent of the line ("10%")
	TaxCode        string `json:"tax_code,omitempty" bson:"tax_code,omitempty"`
	ComputedTax    string `json:"computed_tax,omitempty" bson:"-"`
	ComputedAmount string `json:"computed_amount,omitempty" bson:"-"`
}

// InvoiceFormValues is the state of one invoice editing session. Dates use YYYY-MM-DD.
type InvoiceFormValues struct {
	CustomerID     string     `json:"customer_id" bson:"customer_id"`
	InvoiceDate    string     `json:"invoice_date" bson:"invoice_date"`
	DueDate        string     `json:"due_date,omitempty" bson:"due_date,omitempty"`
	PaymentTerms   string     `json:"payment_terms,omitempty" bson:"payment_terms,omitempty"`
	ReferenceCode  string     `json:"reference_code,omitempty" bson:"reference_code,omitempty"`
	Notes          string     `json:"notes,omitempty" bson:"notes,omitempty"`
	PaymentDetails string     `json:"payment_details,omitempty" bson:"payment_details,omitempty"`
	LineItems      []LineItem `json:"line_items" bson:"line_items"`
}

// Product is what the catalog returns for a product reference.
type Product struct {
	ID              string              `json:"id"`
	Code            string              `json:"code,omitempty"`
	SaleDescription string              `json:"saleDescription,omitempty"`
	SalePrice       decimal.NullDecimal `json:"salePrice"`
	TaxCode         string              `json:"taxCode,omitempty"`
	TaxPercent      decimal.NullDecimal `json:"taxPercent"`
}

// LineItemFromProduct pre-fills a new row from a catalog product.
func LineItemFromProduct(p Product) LineItem {
	item := LineItem{
		ProductID:   p.ID,
		Description: p.SaleDescription,
		Quantity:    "1",
		TaxCode:     p.TaxCode,
	}
	if p.SalePrice.Valid {
		item.UnitPrice = FormatAmount(p.SalePrice.Decimal)
	}
	return item
}

// ProductTaxRate returns the rate the catalog advertises for p, if it carries one.
func ProductTaxRate(p Product) (TaxRate, bool) {
	if p.TaxCode == "" || !p.TaxPercent.Valid {
		return TaxRate{}, false
	}
	return TaxRate{Code: p.TaxCode, Percent: p.TaxPercent.Decimal}, true
}
