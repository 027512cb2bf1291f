package securities

import (
	"fmt"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

// BuyingPowerModel decides whether the portfolio can afford an order.
type BuyingPowerModel interface {
	// HasSufficientBuyingPower reports whether order fits. The reason is set
	// when it does not.
	HasSufficientBuyingPower(portfolio *Portfolio, security *Security, order *types.Order) (bool, string)
}

// CashBuyingPowerModel lets orders spend settled cash only. Shorting is not
// allowed; sells must be covered by the holding.
type CashBuyingPowerModel struct{}

// MarginBuyingPowerModel lets the gross exposure reach Leverage times the
// portfolio value.
type MarginBuyingPowerModel struct {
	Leverage decimal.Decimal
}

var (
	_ BuyingPowerModel = CashBuyingPowerModel{}
	_ BuyingPowerModel = MarginBuyingPowerModel{}
)

// orderPrice is the price an order is expected to trade at.
func orderPrice(security *Security, order *types.Order) decimal.Decimal {
	if order.HasLimitPrice() && order.LimitPrice.Sign() > 0 {
		return order.LimitPrice
	}

	if order.HasStopPrice() && order.StopPrice.Sign() > 0 && !security.HasPrice() {
		return order.StopPrice
	}

	return security.Price()
}

// openingQuantity is the part of the order that increases exposure.
func openingQuantity(security *Security, order *types.Order) decimal.Decimal {
	held := security.Holding().Quantity
	quantity := order.Quantity

	if held.IsZero() || held.Sign() == quantity.Sign() {
		return quantity.Abs()
	}

	return decimal.Max(quantity.Abs().Sub(held.Abs()), decimal.Zero)
}

func (CashBuyingPowerModel) HasSufficientBuyingPower(portfolio *Portfolio, security *Security, order *types.Order) (bool, string) {
	held := security.Holding().Quantity

	if order.Quantity.Sign() < 0 {
		if held.Add(order.Quantity).Sign() < 0 {
			return false, fmt.Sprintf("cash account cannot short %s: holding %s, order %s", security.Symbol.Ticker, held, order.Quantity)
		}

		return true, ""
	}

	price := orderPrice(security, order)
	if price.Sign() <= 0 {
		return false, fmt.Sprintf("no price for %s", security.Symbol.Ticker)
	}

	required := order.Quantity.Mul(price).Mul(security.Properties.ContractMultiplier)
	available, _ := portfolio.CashBook.Get(security.Properties.QuoteCurrency)

	if required.GreaterThan(available.Amount) {
		return false, fmt.Sprintf("insufficient buying power: required %s %s, available %s",
			required.StringFixed(2), security.Properties.QuoteCurrency, available.Amount.StringFixed(2))
	}

	return true, ""
}

func (m MarginBuyingPowerModel) HasSufficientBuyingPower(portfolio *Portfolio, security *Security, order *types.Order) (bool, string) {
	opening := openingQuantity(security, order)
	if opening.IsZero() {
		return true, ""
	}

	price := orderPrice(security, order)
	if price.Sign() <= 0 {
		return false, fmt.Sprintf("no price for %s", security.Symbol.Ticker)
	}

	leverage := m.Leverage
	if leverage.Sign() <= 0 {
		leverage = decimal.NewFromInt(1)
	}

	exposure := decimal.Zero
	for _, other := range portfolio.Securities.All() {
		if other.Invested() {
			exposure = exposure.Add(portfolio.CashBook.Convert(other.HoldingsValue().Abs(), other.Properties.QuoteCurrency))
		}
	}

	capacity := portfolio.TotalPortfolioValue().Mul(leverage).Sub(exposure)
	required := portfolio.CashBook.Convert(
		opening.Mul(price).Mul(security.Properties.ContractMultiplier),
		security.Properties.QuoteCurrency,
	)

	if required.GreaterThan(capacity) {
		return false, fmt.Sprintf("insufficient margin: required %s, available %s", required.StringFixed(2), capacity.StringFixed(2))
	}

	return true, ""
}
