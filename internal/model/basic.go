package model

import "github.com/shopspring/decimal"

// MoneyPlaces is the number of decimal places kept for cash and prices.
const MoneyPlaces = 2

// Money rounds a value to MoneyPlaces.
func Money(d decimal.Decimal) decimal.Decimal {
	return d.Round(MoneyPlaces)
}

// Cost returns price * quantity rounded to MoneyPlaces.
func Cost(price decimal.Decimal, quantity int64) decimal.Decimal {
	return Money(price.Mul(decimal.NewFromInt(quantity)))
}

// FormatMoney renders a value with exactly MoneyPlaces decimals.
func FormatMoney(d decimal.Decimal) string {
	return d.StringFixed(MoneyPlaces)
}
