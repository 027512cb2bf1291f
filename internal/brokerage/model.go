package brokerage

import (
	"fmt"

	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

type AccountType string

const (
	AccountTypeCash   AccountType = "cash"
	AccountTypeMargin AccountType = "margin"
)

// Model holds the rules of a brokerage that are checked before orders reach it.
type Model interface {
	CanSubmitOrder(security *securities.Security, order *types.Order) (bool, string)
	// CanUpdateOrder is asked before an update is forwarded. live tells
	// whether the algorithm trades live.
	CanUpdateOrder(security *securities.Security, order *types.Order, request *types.UpdateOrderRequest, live bool) (bool, string)
	FeeModel(security *securities.Security) FeeModel
	BuyingPowerModel(security *securities.Security) securities.BuyingPowerModel
}

// DefaultModel accepts every order on a tradable, priced security.
type DefaultModel struct {
	AccountType AccountType  `yaml:"account_type" json:"account_type" validate:"omitempty,oneof=cash margin"`
	Fee         FeeModelType `yaml:"fee_model" json:"fee_model"`
	// ConstantFee is charged per fill by the constant fee model.
	ConstantFee decimal.Decimal `yaml:"constant_fee" json:"constant_fee"`
	Leverage    decimal.Decimal `yaml:"leverage" json:"leverage"`
	// UpdatesRequireLive refuses order updates in backtests.
	UpdatesRequireLive bool `yaml:"updates_require_live" json:"updates_require_live"`
}

var _ Model = DefaultModel{}

func (m DefaultModel) CanSubmitOrder(security *securities.Security, order *types.Order) (bool, string) {
	if security.IsDelisted() {
		return false, fmt.Sprintf("%s is delisted", security.Symbol.Ticker)
	}

	if order.Type == types.OrderTypeMarket && !security.HasPrice() {
		return false, fmt.Sprintf("no price data for %s yet", security.Symbol.Ticker)
	}

	if order.HasLimitPrice() && order.LimitPrice.Sign() <= 0 {
		return false, "limit price must be positive"
	}

	if order.HasStopPrice() && order.StopPrice.Sign() <= 0 {
		return false, "stop price must be positive"
	}

	return true, ""
}

func (m DefaultModel) CanUpdateOrder(_ *securities.Security, order *types.Order, _ *types.UpdateOrderRequest, live bool) (bool, string) {
	if m.UpdatesRequireLive && !live {
		return false, "order updates are only supported in live trading"
	}

	if order.Type == types.OrderTypeMarket {
		return false, "market orders cannot be updated"
	}

	return true, ""
}

func (m DefaultModel) FeeModel(_ *securities.Security) FeeModel {
	return NewFeeModel(m.Fee, m.ConstantFee)
}

func (m DefaultModel) BuyingPowerModel(_ *securities.Security) securities.BuyingPowerModel {
	if m.AccountType == AccountTypeMargin {
		return securities.MarginBuyingPowerModel{Leverage: m.Leverage}
	}

	return securities.CashBuyingPowerModel{}
}
