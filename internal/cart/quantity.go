package cart

import "github.com/angelmondragon/storefront/pkg/money"

// MinQuantity is the smallest quantity a client change can produce (one whole unit).
const MinQuantity = money.QuantityUnit

// ClampQuantity floors a requested quantity at one unit and drops any partial unit.
func ClampQuantity(requested int) int {
	if requested < MinQuantity {
		return MinQuantity
	}
	return requested - requested%money.QuantityUnit
}

// Increment returns the quantity one unit above current.
func Increment(current int) int {
	return ClampQuantity(current + money.QuantityUnit)
}

// Decrement returns the quantity one unit below current, never below one unit.
func Decrement(current int) int {
	return ClampQuantity(current - money.QuantityUnit)
}
