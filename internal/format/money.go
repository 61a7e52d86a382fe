// Package format renders ledger amounts for people.
package format

import (
	"math"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

var maxMinorUnits = decimal.NewFromInt(math.MaxInt64)

// Money formats amount in the given ISO currency, e.g. "$1,234.50". Unknown
// currencies fall back to the amount with two decimals and the code.
func Money(amount float64, currency string) string {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return strconv.FormatFloat(amount, 'f', -1, 64) + " " + currency
	}
	cur := money.GetCurrency(currency)
	if cur == nil {
		return strconv.FormatFloat(amount, 'f', 2, 64) + " " + currency
	}

	minor := decimal.NewFromFloat(amount).Shift(int32(cur.Fraction)).Round(0)
	if minor.Abs().GreaterThan(maxMinorUnits) {
		return display(decimal.NewFromFloat(amount), cur)
	}
	return money.New(minor.IntPart(), currency).Display()
}

// display lays out amounts too large for money.Money the way its formatter
// does: grouped digits placed into the currency template.
func display(amount decimal.Decimal, cur *money.Currency) string {
	digits := amount.Abs().StringFixed(int32(cur.Fraction))
	whole, frac, _ := strings.Cut(digits, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteString(cur.Thousand)
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteString(cur.Decimal)
		b.WriteString(frac)
	}

	out := strings.Replace(cur.Template, "1", b.String(), 1)
	out = strings.Replace(out, "$", cur.Grapheme, 1)
	if amount.IsNegative() {
		out = "-" + out
	}
	return out
}

// Percent formats a share of total as a percentage with one decimal.
func Percent(part, total float64) string {
	if total <= 0 || math.IsInf(total, 0) || math.IsNaN(part) || math.IsInf(part, 0) {
		return "0.0%"
	}
	return decimal.NewFromFloat(part).
		Div(decimal.NewFromFloat(total)).
		Mul(decimal.NewFromInt(100)).
		StringFixed(1) + "%"
}
