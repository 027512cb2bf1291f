package brokerage

import "github.com/shopspring/decimal"

type FeeModel interface {
	// Calculate the fee for a fill of quantity at price, in the quote currency.
	Calculate(quantity, price decimal.Decimal) decimal.Decimal
}

type FeeModelType string

const (
	FeeModelInteractiveBroker FeeModelType = "interactive_broker"
	FeeModelZero              FeeModelType = "zero_commission"
	FeeModelConstant          FeeModelType = "constant"
)

var AllFeeModels = []any{
	FeeModelInteractiveBroker,
	FeeModelZero,
	FeeModelConstant,
}

// NewFeeModel returns the fee model of the given type. Unknown types charge
// nothing. amount is only used by the constant model.
func NewFeeModel(kind FeeModelType, amount decimal.Decimal) FeeModel {
	switch kind {
	case FeeModelInteractiveBroker:
		return NewInteractiveBrokerFeeModel()
	case FeeModelConstant:
		return NewConstantFeeModel(amount)
	case FeeModelZero:
		return NewZeroFeeModel()
	default:
		return NewZeroFeeModel()
	}
}

// InteractiveBrokerFeeModel charges 0.005 per share with a 1.00 minimum.
type InteractiveBrokerFeeModel struct {
	perShare decimal.Decimal
	minimum  decimal.Decimal
}

func NewInteractiveBrokerFeeModel() FeeModel {
	return &InteractiveBrokerFeeModel{
		perShare: decimal.RequireFromString("0.005"),
		minimum:  decimal.NewFromInt(1),
	}
}

func (c *InteractiveBrokerFeeModel) Calculate(quantity, _ decimal.Decimal) decimal.Decimal {
	fee := c.perShare.Mul(quantity.Abs())
	if fee.LessThan(c.minimum) {
		return c.minimum
	}

	return fee
}

// ZeroFeeModel implements FeeModel with zero commission.
type ZeroFeeModel struct{}

func NewZeroFeeModel() FeeModel {
	return &ZeroFeeModel{}
}

// Calculate returns 0 for any quantity.
func (c *ZeroFeeModel) Calculate(_, _ decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// ConstantFeeModel charges the same amount per fill.
type ConstantFeeModel struct {
	amount decimal.Decimal
}

func NewConstantFeeModel(amount decimal.Decimal) FeeModel {
	return &ConstantFeeModel{amount: amount}
}

func (c *ConstantFeeModel) Calculate(_, _ decimal.Decimal) decimal.Decimal {
	return c.amount
}
