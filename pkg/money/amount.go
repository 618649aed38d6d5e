package money

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// FromBaseUnits converts an integer amount in base units to a decimal value.
// E.g., 150000000 with 8 decimals → 1.5
func FromBaseUnits(amount *big.Int, decimals int) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	if decimals < 0 {
		decimals = 0
	}
	return decimal.NewFromBigInt(amount, -int32(decimals))
}

// ParseLoose parses a human-entered number the way a spreadsheet cell holds it:
// thousands separators, spaces and a currency sign on either side of the minus
// are ignored, and accounting parentheses mark a negative value.
// An empty cell parses as zero.
func ParseLoose(value string) (decimal.Decimal, error) {
	s := strings.NewReplacer(",", "", " ", "", "\u00a0", "", "_", "").Replace(value)

	parens := len(s) >= 2 && strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")")
	if parens {
		s = s[1 : len(s)-1]
	}

	sign := ""
	if strings.HasPrefix(s, "-") {
		sign, s = "-", s[1:]
	}
	s = sign + strings.TrimPrefix(s, "$")
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q: %w", value, err)
	}
	if parens && d.IsPositive() {
		d = d.Neg()
	}
	return d, nil
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}
