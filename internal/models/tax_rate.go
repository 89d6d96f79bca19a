package models

import (
	"fmt"

	"github.com/shopspring/decimal"

	"ledgerly/einvoice/internal/invoicing"
)

// TaxRateOverride is a locally maintained tax rate that takes precedence over the accounting API's table.
// Percent is stored as a decimal string.
type TaxRateOverride struct {
	Base    `bson:",inline"`
	BookID  string `bson:"book_id" json:"book_id"` // "*" applies to every book
	Code    string `bson:"code" json:"code"`
	RateID  string `bson:"rate_id,omitempty" json:"rate_id,omitempty"`
	Name    string `bson:"name,omitempty" json:"name,omitempty"`
	Percent string `bson:"percent" json:"percent"`
}

// TaxRate converts the stored override. A missing RateID falls back to the code.
func (o TaxRateOverride) TaxRate() (invoicing.TaxRate, error) {
	pct, err := decimal.NewFromString(o.Percent)
	if err != nil {
		return invoicing.TaxRate{}, fmt.Errorf("invalid percent %q for tax code %s: %w", o.Percent, o.Code, err)
	}
	id := o.RateID
	if id == "" {
		id = o.Code
	}
	return invoicing.TaxRate{ID: id, Code: o.Code, Name: o.Name, Percent: pct}, nil
}
