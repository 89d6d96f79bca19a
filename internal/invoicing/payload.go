package invoicing

import "github.com/shopspring/decimal"

// AmountTaxStatusExclusive tells the accounting API that line prices exclude tax.
const AmountTaxStatusExclusive = "Exclusive"

// EntityRef points at a record in the accounting API.
type EntityRef struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// InvoiceRequest is the create/update body the accounting API expects.
type InvoiceRequest struct {
	Customer        EntityRef            `json:"customer"`
	InvoiceDate     string               `json:"invoiceDate"`
	DueDate         string               `json:"dueDate,omitempty"`
	PaymentTerms    string               `json:"paymentTerms,omitempty"`
	Reference       string               `json:"reference,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	PaymentDetails  string               `json:"paymentDetails,omitempty"`
	AmountTaxStatus string               `json:"amountTaxStatus"`
	LineItems       []InvoiceLineRequest `json:"lineItems"`
	Subtotal        string               `json:"subtotal"`
	DiscountTotal   string               `json:"discountTotal"`
	TotalExclTax    string               `json:"totalExTax"`
	TaxTotal        string               `json:"tax"`
	Total           string               `json:"total"`
}

// InvoiceLineRequest is one row of an InvoiceRequest.
type InvoiceLineRequest struct {
	LineNumber     int        `json:"lineNumber"`
	Item           EntityRef  `json:"item"`
	Description    string     `json:"description,omitempty"`
	Quantity       string     `json:"quantity"`
	UnitPriceExTax string     `json:"unitPriceExTax"`
	DiscountAmount string     `json:"discountAmount"`
	TaxRate        *EntityRef `json:"taxRate,omitempty"`
	Tax            string     `json:"tax"`
	AmountExTax    string     `json:"amountExTax"`
}

// InvoiceRecord is an invoice as the accounting API returns it. Most fields may be null.
type InvoiceRecord struct {
	ID             string              `json:"id"`
	InvoiceNumber  *string             `json:"invoiceNumber"`
	Status         *string             `json:"status"`
	Customer       *EntityRef          `json:"customer"`
	InvoiceDate    *string             `json:"invoiceDate"`
	DueDate        *string             `json:"dueDate"`
	PaymentTerms   *string             `json:"paymentTerms"`
	Reference      *string             `json:"reference"`
	Notes          *string             `json:"notes"`
	PaymentDetails *string             `json:"paymentDetails"`
	LineItems      []InvoiceLineRecord `json:"lineItems"`
	Total          decimal.NullDecimal `json:"total"` // as stored; never trusted
}

// InvoiceLineRecord is one row of an InvoiceRecord.
type InvoiceLineRecord struct {
	Item           *EntityRef          `json:"item"`
	Description    *string             `json:"description"`
	Quantity       decimal.NullDecimal `json:"quantity"`
	UnitPriceExTax decimal.NullDecimal `json:"unitPriceExTax"`
	DiscountAmount decimal.NullDecimal `json:"discountAmount"`
	TaxRate        *EntityRef          `json:"taxRate"`
	Tax            decimal.NullDecimal `json:"tax"`
	AmountExTax    decimal.NullDecimal `json:"amountExTax"`
}
