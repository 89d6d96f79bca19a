package invoicing

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// TaxRate is one entry of a book's tax rate table.
// ID is the accounting API's identifier, Code is what users pick in the form (e.g. "GST").
type TaxRate struct {
	ID      string          `json:"id"`
	Code    string          `json:"code"`
	Name    string          `json:"name,omitempty"`
	Percent decimal.Decimal `json:"percent"`
}

// TaxRates resolves tax codes and tax rate IDs.
type TaxRates interface {
	ByCode(code string) (TaxRate, bool)
	ByID(id string) (TaxRate, bool)
}

// RateTable is an immutable TaxRates backed by maps. Codes match case-insensitively.
type RateTable struct {
	byCode map[string]TaxRate
	byID   map[string]TaxRate
}

// NewRateTable builds a table. Later entries replace earlier ones with the same code or ID.
func NewRateTable(rates ...TaxRate) *RateTable {
	t := &RateTable{
		byCode: make(map[string]TaxRate, len(rates)),
		byID:   make(map[string]TaxRate, len(rates)),
	}
	for _, r := range rates {
		if key := codeKey(r.Code); key != "" {
			if prev, ok := t.byCode[key]; ok && prev.ID != "" {
				delete(t.byID, prev.ID)
			}
			t.byCode[key] = r
		}
		if r.ID != "" {
			t.byID[r.ID] = r
		}
	}
	return t
}

// ByCode implements TaxRates.
func (t *RateTable) ByCode(code string) (TaxRate, bool) {
	if t == nil {
		return TaxRate{}, false
	}
	r, ok := t.byCode[codeKey(code)]
	return r, ok
}

// ByID implements TaxRates.
func (t *RateTable) ByID(id string) (TaxRate, bool) {
	if t == nil {
		return TaxRate{}, false
	}
	r, ok := t.byID[strings.TrimSpace(id)]
	return r, ok
}

// Rates returns the table's entries ordered by code.
func (t *RateTable) Rates() []TaxRate {
	if t == nil {
		return nil
	}
	out := make([]TaxRate, 0, len(t.byCode))
	for _, r := range t.byCode {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// ExtendRates returns base with extra layered on top.
func ExtendRates(base TaxRates, extra ...TaxRate) TaxRates {
	if len(extra) == 0 {
		return base
	}
	return &overlay{top: NewRateTable(extra...), base: base}
}

type overlay struct {
	top  *RateTable
	base TaxRates
}

func (o *overlay) ByCode(code string) (TaxRate, bool) {
	if r, ok := o.top.ByCode(code); ok {
		return r, true
	}
	return lookupCode(o.base, code)
}

func (o *overlay) ByID(id string) (TaxRate, bool) {
	if r, ok := o.top.ByID(id); ok {
		return r, true
	}
	return lookupID(o.base, id)
}

func codeKey(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// lookupCode tolerates a nil table.
func lookupCode(rates TaxRates, code string) (TaxRate, bool) {
	if rates == nil || strings.TrimSpace(code) == "" {
		return TaxRate{}, false
	}
	return rates.ByCode(code)
}

func lookupID(rates TaxRates, id string) (TaxRate, bool) {
	if rates == nil || strings.TrimSpace(id) == "" {
		return TaxRate{}, false
	}
	return rates.ByID(id)
}
