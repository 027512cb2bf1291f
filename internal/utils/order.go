package utils

import (
	"github.com/shopspring/decimal"
)

// FeeFunc returns the fee charged for trading quantity.
type FeeFunc func(quantity decimal.Decimal) decimal.Decimal

// RoundQuantityToLot rounds quantity toward zero to a multiple of lotSize.
// A zero or negative lot size leaves the quantity unchanged.
func RoundQuantityToLot(quantity decimal.Decimal, lotSize decimal.Decimal) decimal.Decimal {
	if lotSize.Sign() <= 0 {
		return quantity
	}

	return quantity.Div(lotSize).Truncate(0).Mul(lotSize)
}

// RoundPriceToIncrement rounds price to the nearest multiple of increment,
// ties to even.
func RoundPriceToIncrement(price decimal.Decimal, increment decimal.Decimal) decimal.Decimal {
	if increment.Sign() <= 0 {
		return price
	}

	return price.Div(increment).RoundBank(0).Mul(increment)
}

// CalculateMaxQuantity calculates the largest lot-rounded quantity whose cost
// plus fee fits into balance.
func CalculateMaxQuantity(balance, price, lotSize decimal.Decimal, fee FeeFunc) decimal.Decimal {
	if price.Sign() <= 0 || balance.Sign() <= 0 {
		return decimal.Zero
	}

	if fee == nil {
		fee = func(decimal.Decimal) decimal.Decimal { return decimal.Zero }
	}

	// Initial rough estimate (ignoring fees)
	maxQty := RoundQuantityToLot(balance.Div(price), lotSize)

	for i := 0; i < 10 && maxQty.Sign() > 0; i++ {
		totalCost := maxQty.Mul(price).Add(fee(maxQty))
		if totalCost.LessThanOrEqual(balance) {
			return maxQty
		}

		// Adjust quantity down proportionally
		maxQty = RoundQuantityToLot(maxQty.Mul(balance).Div(totalCost), lotSize)
	}

	step := lotSize
	if step.Sign() <= 0 {
		step = decimal.NewFromInt(1)
	}

	for maxQty.Sign() > 0 && maxQty.Mul(price).Add(fee(maxQty)).GreaterThan(balance) {
		maxQty = maxQty.Sub(step)
	}

	return decimal.Max(maxQty, decimal.Zero)
}

// CalculateOrderQuantityByPercentage calculates the quantity of an order by the given percentage of the balance.
func CalculateOrderQuantityByPercentage(balance, price, lotSize decimal.Decimal, fee FeeFunc, percentage decimal.Decimal) decimal.Decimal {
	return CalculateMaxQuantity(balance.Mul(percentage), price, lotSize, fee)
}
