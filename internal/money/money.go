package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// FormatMinor renders minor units with two fraction digits.
func FormatMinor(value int64) string {
	negative := value < 0
	if negative {
		value = -value
	}
	whole := value / 100
	frac := value % 100
	formatted := fmt.Sprintf("%d.%02d", whole, frac)
	if negative {
		return "-" + formatted
	}
	return formatted
}

// PercentOf returns percent% of amount in minor units, rounded half-to-even.
func PercentOf(amount int64, percent decimal.Decimal) int64 {
	return decimal.NewFromInt(amount).Mul(percent).Div(hundred).RoundBank(0).IntPart()
}
