package invoicing

import (
	"strings"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// CleanPrice strips everything from a user-typed amount except digits and the decimal point.
func CleanPrice(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ParseAmount cleans and parses a user-typed amount.
// A '-' ahead of the first digit makes the result negative, so "-$5" and "$ -5" both read as -5.
// The boolean is false when nothing numeric remains after cleaning.
func ParseAmount(s string) (decimal.Decimal, bool) {
	cleaned := CleanPrice(s)
	if cleaned == "" || cleaned == "." {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, false
	}
	if hasLeadingMinus(s) {
		d = d.Neg()
	}
	return d, true
}

func hasLeadingMinus(s string) bool {
	for _, r := range s {
		switch {
		case r == '-':
			return true
		case (r >= '0' && r <= '9') || r == '.':
			return false
		}
	}
	return false
}

// FormatPrice normalizes a user-typed amount to exactly two decimal places.
// "$1,234.5" becomes "1234.50"; input with no numeric content becomes "".
// The result is a display value and never carries a sign.
func FormatPrice(s string) string {
	d, ok := ParseAmount(s)
	if !ok {
		return ""
	}
	return FormatAmount(d.Abs())
}

// FormatAmount renders d with exactly two decimal places.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatUnitPrice renders a unit price with at least two decimal places, keeping any
// extra precision the user entered so price * quantity is unchanged after a round trip.
func FormatUnitPrice(d decimal.Decimal) string {
	places := -d.Exponent()
	if places < 2 {
		places = 2
	}
	return d.StringFixed(places)
}

func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
