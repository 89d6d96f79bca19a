package invoicing

import (
	"strings"
)

// ToAPI validates form and converts it to the accounting API's request body.
// It returns a *PreconditionError without a book and a *ValidationError for bad input;
// in both cases the returned request is empty.
func ToAPI(book BookContext, form InvoiceFormValues, rates TaxRates) (InvoiceRequest, error) {
	if err := book.Require(); err != nil {
		return InvoiceRequest{}, err
	}
	if err := Validate(form, rates); err != nil {
		return InvoiceRequest{}, err
	}
	return Transform(form, rates), nil
}

// Transform maps form state to a request body without validating it.
// Callers outside this package should use ToAPI.
func Transform(form InvoiceFormValues, rates TaxRates) InvoiceRequest {
	req := InvoiceRequest{
		Customer:        EntityRef{ID: strings.TrimSpace(form.CustomerID)},
		InvoiceDate:     NormalizeDate(form.InvoiceDate),
		DueDate:         NormalizeDate(form.DueDate),
		PaymentTerms:    strings.TrimSpace(form.PaymentTerms),
		Reference:       strings.TrimSpace(form.ReferenceCode),
		Notes:           form.Notes,
		PaymentDetails:  form.PaymentDetails,
		AmountTaxStatus: AmountTaxStatusExclusive,
		LineItems:       make([]InvoiceLineRequest, 0, len(form.LineItems)),
	}

	for i, item := range form.LineItems {
		line := CalculateLine(item, rates)
		price, _ := ParseAmount(item.UnitPrice)
		qty, _ := ParseAmount(item.Quantity)

		row := InvoiceLineRequest{
			LineNumber:     i + 1,
			Item:           EntityRef{ID: strings.TrimSpace(item.ProductID)},
			Description:    item.Description,
			Quantity:       qty.String(),
			UnitPriceExTax: FormatUnitPrice(price),
			DiscountAmount: FormatAmount(line.Discount),
			Tax:            FormatAmount(line.Tax),
			AmountExTax:    FormatAmount(line.Amount),
		}
		if line.HasRate {
			row.TaxRate = &EntityRef{ID: line.Rate.ID, Name: line.Rate.Code}
		}
		req.LineItems = append(req.LineItems, row)
	}

	totals := CalculateTotals(form.LineItems, rates)
	req.Subtotal = totals.Subtotal
	req.DiscountTotal = totals.Discount
	req.TotalExclTax = totals.TotalExclTax
	req.TaxTotal = totals.Tax
	req.Total = totals.Total
	return req
}

// FromAPI turns a stored invoice back into editable form state.
// Totals are recomputed from the rows; the stored totals are ignored.
func FromAPI(book BookContext, rec InvoiceRecord, rates TaxRates) (InvoiceFormValues, InvoiceTotals, error) {
	if err := book.Require(); err != nil {
		return InvoiceFormValues{}, InvoiceTotals{}, err
	}

	form := InvoiceFormValues{
		InvoiceDate:    NormalizeDate(deref(rec.InvoiceDate)),
		DueDate:        NormalizeDate(deref(rec.DueDate)),
		PaymentTerms:   deref(rec.PaymentTerms),
		ReferenceCode:  deref(rec.Reference),
		Notes:          deref(rec.Notes),
		PaymentDetails: deref(rec.PaymentDetails),
		LineItems:      make([]LineItem, 0, len(rec.LineItems)),
	}
	if rec.Customer != nil {
		form.CustomerID = rec.Customer.ID
	}

	for _, row := range rec.LineItems {
		item := LineItem{Description: deref(row.Description)}
		if row.Item != nil {
			item.ProductID = row.Item.ID
		}
		if row.UnitPriceExTax.Valid {
			item.UnitPrice = FormatUnitPrice(row.UnitPriceExTax.Decimal)
		}
		if row.Quantity.Valid {
			item.Quantity = row.Quantity.Decimal.String()
		}
		if row.DiscountAmount.Valid && !row.DiscountAmount.Decimal.IsZero() {
			item.Discount = FormatAmount(row.DiscountAmount.Decimal)
		}
		if row.TaxRate != nil {
			if rate, ok := lookupID(rates, row.TaxRate.ID); ok {
				item.TaxCode = rate.Code
			} else if rate, ok := lookupCode(rates, row.TaxRate.Name); ok {
				item.TaxCode = rate.Code
			}
		}
		form.LineItems = append(form.LineItems, item)
	}

	form.LineItems = WithComputed(form.LineItems, rates)
	return form, CalculateTotals(form.LineItems, rates), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
