package invoicing

import (
	"fmt"
	"strings"
	"time"
)

// FormDateLayout is how the form represents dates.
const FormDateLayout = "2006-01-02"

var acceptedDateLayouts = []string{
	FormDateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

// ParseDate accepts the form layout and the timestamp shapes the accounting API returns.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range acceptedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// NormalizeDate rewrites s to YYYY-MM-DD. Blank stays blank and unparseable input
// is returned trimmed so validation can point at it.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	t, err := ParseDate(s)
	if err != nil {
		return s
	}
	return t.Format(FormDateLayout)
}
