package money

import "github.com/shopspring/decimal"

// QuantityUnit is the stored quantity that represents one whole purchasable unit.
const QuantityUnit = 100

const displayPlaces = 2

var unitDivisor = decimal.NewFromInt(QuantityUnit)

// Units converts a stored quantity (hundredths) into whole units.
func Units(quantity int) decimal.Decimal {
	return decimal.NewFromInt(int64(quantity)).Div(unitDivisor)
}

// LineTotal returns price * (quantity / 100) rounded to two decimals.
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return Round(price.Mul(Units(quantity)))
}

// Round rounds half away from zero to two decimals.
func Round(amount decimal.Decimal) decimal.Decimal {
	return amount.Round(displayPlaces)
}

// Format renders an amount with exactly two decimals.
func Format(amount decimal.Decimal) string {
	return amount.StringFixed(displayPlaces)
}
