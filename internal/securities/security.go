// Package securities tracks the tradable securities of an algorithm, their
// holdings and the cash book, and decides whether orders can be afforded.
package securities

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

// SymbolProperties are the trading rules of a symbol.
type SymbolProperties struct {
	// LotSize is the smallest tradable quantity; orders are rounded to it.
	LotSize decimal.Decimal `yaml:"lot_size" json:"lot_size"`
	// MinimumPriceVariation is the tick size of limit and stop prices.
	MinimumPriceVariation decimal.Decimal `yaml:"minimum_price_variation" json:"minimum_price_variation"`
	ContractMultiplier    decimal.Decimal `yaml:"contract_multiplier" json:"contract_multiplier"`
	QuoteCurrency         string          `yaml:"quote_currency" json:"quote_currency"`
}

// DefaultSymbolProperties returns the usual rules for the symbol's security type.
func DefaultSymbolProperties(symbol types.Symbol) SymbolProperties {
	props := SymbolProperties{
		LotSize:               decimal.NewFromInt(1),
		MinimumPriceVariation: decimal.RequireFromString("0.01"),
		ContractMultiplier:    decimal.NewFromInt(1),
		QuoteCurrency:         types.AccountCurrencyDefault,
	}

	switch symbol.SecurityType {
	case types.SecurityTypeForex:
		props.LotSize = decimal.NewFromInt(1000)
		props.MinimumPriceVariation = decimal.RequireFromString("0.00001")
	case types.SecurityTypeCrypto:
		props.LotSize = decimal.RequireFromString("0.00001")
	case types.SecurityTypeOption:
		props.ContractMultiplier = decimal.NewFromInt(100)
	case types.SecurityTypeFuture:
		props.MinimumPriceVariation = decimal.RequireFromString("0.25")
		props.ContractMultiplier = decimal.NewFromInt(50)
	case types.SecurityTypeBase, types.SecurityTypeEquity:
	}

	if _, quote, ok := symbol.CurrencyPair(); ok {
		props.QuoteCurrency = quote
	}

	return props
}

// Holding is the position in one security.
type Holding struct {
	Quantity     decimal.Decimal `yaml:"quantity" json:"quantity"`
	AveragePrice decimal.Decimal `yaml:"average_price" json:"average_price"`
}

// Security is a symbol the algorithm can trade together with its latest
// price and holding.
type Security struct {
	Symbol     types.Symbol
	Properties SymbolProperties

	mu          sync.RWMutex
	price       decimal.Decimal
	priceTime   time.Time
	holding     Holding
	tradable    bool
	delisted    bool
	totalProfit decimal.Decimal
	totalFees   decimal.Decimal
}

func NewSecurity(symbol types.Symbol, props SymbolProperties) *Security {
	return &Security{
		Symbol:      symbol,
		Properties:  props,
		mu:          sync.RWMutex{},
		price:       decimal.Zero,
		priceTime:   time.Time{},
		holding:     Holding{Quantity: decimal.Zero, AveragePrice: decimal.Zero},
		tradable:    true,
		delisted:    false,
		totalProfit: decimal.Zero,
		totalFees:   decimal.Zero,
	}
}

// Update sets the price from a market data point. Corporate actions and
// other non-price points are ignored.
func (s *Security) Update(point types.BaseData) {
	switch point.(type) {
	case *types.TradeBar, *types.Tick, *types.CustomData:
	default:
		return
	}

	if point.GetValue() <= 0 {
		return
	}

	s.SetPrice(decimal.NewFromFloat(point.GetValue()), point.GetEndTime())
}

func (s *Security) SetPrice(price decimal.Decimal, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.price = price
	s.priceTime = t
}

func (s *Security) Price() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.price
}

// PriceTime is the end time of the point that set the price.
func (s *Security) PriceTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.priceTime
}

func (s *Security) HasPrice() bool {
	return s.Price().Sign() > 0
}

func (s *Security) Holding() Holding {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.holding
}

// Invested reports whether the security has a non-zero position.
func (s *Security) Invested() bool {
	return !s.Holding().Quantity.IsZero()
}

// HoldingsValue is quantity * price * multiplier in the quote currency.
func (s *Security) HoldingsValue() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.holding.Quantity.Mul(s.price).Mul(s.Properties.ContractMultiplier)
}

// UnrealizedProfit is the open profit of the holding in the quote currency.
func (s *Security) UnrealizedProfit() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.price.Sub(s.holding.AveragePrice).Mul(s.holding.Quantity).Mul(s.Properties.ContractMultiplier)
}

// TotalProfit is the realized profit, net of fees.
func (s *Security) TotalProfit() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.totalProfit.Sub(s.totalFees)
}

func (s *Security) TotalFees() decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.totalFees
}

func (s *Security) IsTradable() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.tradable && !s.delisted
}

func (s *Security) SetTradable(tradable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tradable = tradable
}

// MarkDelisted stops the security from trading for good.
func (s *Security) MarkDelisted() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.delisted = true
}

func (s *Security) IsDelisted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.delisted
}

// applyFill moves the holding by quantity at price and returns the realized
// profit of the closed part.
func (s *Security) applyFill(quantity, price, fee decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	held := s.holding.Quantity
	next := held.Add(quantity)
	realized := decimal.Zero

	switch {
	case held.IsZero() || held.Sign() == quantity.Sign():
		// Opening or adding: weighted average.
		cost := held.Mul(s.holding.AveragePrice).Add(quantity.Mul(price))
		s.holding.AveragePrice = cost.Div(next)
	default:
		closed := decimal.Min(quantity.Abs(), held.Abs())
		realized = price.Sub(s.holding.AveragePrice).Mul(closed).Mul(decimal.NewFromInt(int64(held.Sign()))).
			Mul(s.Properties.ContractMultiplier)

		switch {
		case next.IsZero():
			s.holding.AveragePrice = decimal.Zero
		case next.Sign() != held.Sign():
			// Crossed through zero; the remainder opens at the fill price.
			s.holding.AveragePrice = price
		}
	}

	s.holding.Quantity = next
	s.totalProfit = s.totalProfit.Add(realized)
	s.totalFees = s.totalFees.Add(fee)

	return realized
}

// applySplit rescales the holding and price by factor (new/old price) and
// returns the fractional share count that no longer fits a lot.
func (s *Security) applySplit(factor decimal.Decimal) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw := s.holding.Quantity.Div(factor)
	lot := s.Properties.LotSize

	quantity := raw
	if lot.Sign() > 0 {
		quantity = raw.Div(lot).Truncate(0).Mul(lot)
	}

	s.holding.Quantity = quantity
	s.holding.AveragePrice = s.holding.AveragePrice.Mul(factor)
	s.price = s.price.Mul(factor)

	return raw.Sub(quantity)
}

// setHolding overwrites the position, for brokerage reconciliation.
func (s *Security) setHolding(holding Holding) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.holding = holding
}
