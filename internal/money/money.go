// Package money formats amounts as Colombian pesos.
package money

import (
	"fmt"
	"math"
	"strings"
)

// FormatCOP formats an amount as COP for the es-CO locale: dollar sign, dot
// thousands separators, no decimals (e.g. $ 1.450.000). Screen views and the
// exported document both go through this function so the two always match
// byte for byte.
func FormatCOP(amount float64) string {
	negative := false
	if amount < 0 {
		negative = true
		amount = -amount
	}

	// COP quotations carry no cents; round to the nearest peso.
	raw := fmt.Sprintf("%.0f", math.Round(amount))

	result := "$ " + applyThousandsGrouping(raw)
	if negative {
		result = "-" + result
	}
	return result
}

// applyThousandsGrouping inserts dots into an integer string, grouping digits
// in threes from the right (es-CO convention).
func applyThousandsGrouping(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var groups []string
	for n > 3 {
		groups = append([]string{s[n-3:]}, groups...)
		s = s[:n-3]
		n = len(s)
	}
	return s + "." + strings.Join(groups, ".")
}
