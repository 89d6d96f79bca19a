package invoicing

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Validate checks form state before it may be mapped to a request.
// It returns nil or a *ValidationError listing every offending field.
func Validate(form InvoiceFormValues, rates TaxRates) error {
	verr := &ValidationError{}

	if strings.TrimSpace(form.CustomerID) == "" {
		verr.add("customer_id", "customer is required")
	}

	var invoiceDate, dueDate time.Time
	if strings.TrimSpace(form.InvoiceDate) == "" {
		verr.add("invoice_date", "invoice date is required")
	} else if t, err := ParseDate(form.InvoiceDate); err != nil {
		verr.add("invoice_date", "invoice date must be YYYY-MM-DD")
	} else {
		invoiceDate = t
	}
	if strings.TrimSpace(form.DueDate) != "" {
		if t, err := ParseDate(form.DueDate); err != nil {
			verr.add("due_date", "due date must be YYYY-MM-DD")
		} else {
			dueDate = t
		}
	}
	if !invoiceDate.IsZero() && !dueDate.IsZero() && dateOnly(invoiceDate).After(dateOnly(dueDate)) {
		verr.add("due_date", "due date must not be before the invoice date")
	}

	if len(form.LineItems) == 0 {
		verr.add("line_items", "at least one line item is required")
	}
	for i, item := range form.LineItems {
		validateLine(verr, fmt.Sprintf("line_items[%d]", i), item, rates)
	}

	if len(verr.Fields) > 0 {
		return verr
	}
	return nil
}

func validateLine(verr *ValidationError, prefix string, item LineItem, rates TaxRates) {
	if strings.TrimSpace(item.ProductID) == "" {
		verr.add(prefix+".product_id", "product is required")
	}

	qtyOK := false
	if strings.TrimSpace(item.Quantity) == "" {
		verr.add(prefix+".quantity", "quantity is required")
	} else if qty, ok := ParseAmount(item.Quantity); !ok {
		verr.add(prefix+".quantity", "quantity must be a number")
	} else if !qty.IsPositive() {
		verr.add(prefix+".quantity", "quantity must be greater than zero")
	} else {
		qtyOK = true
	}

	priceOK := false
	if strings.TrimSpace(item.UnitPrice) == "" {
		verr.add(prefix+".unit_price", "price is required")
	} else if price, ok := ParseAmount(item.UnitPrice); !ok {
		verr.add(prefix+".unit_price", "price must be a number")
	} else if price.IsNegative() {
		verr.add(prefix+".unit_price", "price must not be negative")
	} else {
		priceOK = true
	}

	if d := strings.TrimSpace(item.Discount); d != "" {
		if amt, ok := ParseAmount(strings.TrimSuffix(d, "%")); !ok {
			verr.add(prefix+".discount", "discount must be an amount or a percentage")
		} else if amt.IsNegative() {
			verr.add(prefix+".discount", "discount must not be negative")
		} else if qtyOK && priceOK {
			price, _ := ParseAmount(item.UnitPrice)
			qty, _ := ParseAmount(item.Quantity)
			exact := price.Mul(qty)
			if round2(discountAmount(d, exact)).GreaterThan(round2(exact)) ||
				(strings.HasSuffix(d, "%") && mustAmount(strings.TrimSuffix(d, "%")).GreaterThan(hundred)) {
				verr.add(prefix+".discount", "discount exceeds the line amount")
			}
		}
	}

	if code := strings.TrimSpace(item.TaxCode); code != "" {
		if _, ok := lookupCode(rates, code); !ok {
			verr.add(prefix+".tax_code", "unknown tax code %q", code)
		}
	}
}

func mustAmount(s string) decimal.Decimal {
	d, _ := ParseAmount(s)
	return d
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
