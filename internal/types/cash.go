package types

import "github.com/shopspring/decimal"

// AccountCurrencyDefault is used when no account currency is configured.
const AccountCurrencyDefault = "USD"

// CashAmount is one currency balance reported by a brokerage.
type CashAmount struct {
	Currency       string          `yaml:"currency" json:"currency" validate:"required,len=3"`
	Amount         decimal.Decimal `yaml:"amount" json:"amount"`
	ConversionRate decimal.Decimal `yaml:"conversion_rate" json:"conversion_rate"`
}

// NewCashAmount builds a balance with an unknown conversion rate.
func NewCashAmount(currency string, amount decimal.Decimal) CashAmount {
	return CashAmount{Currency: currency, Amount: amount, ConversionRate: decimal.Zero}
}
