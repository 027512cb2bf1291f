package brokerage

import (
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

// FillModel decides whether an open order trades at the security's current
// price.
type FillModel interface {
	Fill(security *securities.Security, order *types.Order) (decimal.Decimal, bool)
}

// ImmediateFillModel fills at the last price as soon as the order's
// conditions hold.
type ImmediateFillModel struct{}

var _ FillModel = ImmediateFillModel{}

func (ImmediateFillModel) Fill(security *securities.Security, order *types.Order) (decimal.Decimal, bool) {
	price := security.Price()
	if price.Sign() <= 0 || !security.IsTradable() {
		return decimal.Zero, false
	}

	buy := order.Quantity.Sign() > 0

	stopHit := func() bool {
		if buy {
			return price.GreaterThanOrEqual(order.StopPrice)
		}

		return price.LessThanOrEqual(order.StopPrice)
	}

	limitHit := func() bool {
		if buy {
			return price.LessThanOrEqual(order.LimitPrice)
		}

		return price.GreaterThanOrEqual(order.LimitPrice)
	}

	switch order.Type {
	case types.OrderTypeMarket:
		return price, true
	case types.OrderTypeLimit:
		return price, limitHit()
	case types.OrderTypeStopMarket:
		return price, stopHit()
	case types.OrderTypeStopLimit:
		return price, stopHit() && limitHit()
	default:
		return decimal.Zero, false
	}
}
