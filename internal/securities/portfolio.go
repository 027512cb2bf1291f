package securities

import (
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Portfolio applies fills and corporate actions to holdings and cash.
type Portfolio struct {
	Securities *Manager
	CashBook   *CashBook

	// mu serializes mutations that touch both a holding and the cash book.
	mu     sync.Mutex
	logger *logger.Logger
}

func NewPortfolio(securities *Manager, cashBook *CashBook, log *logger.Logger) *Portfolio {
	return &Portfolio{
		Securities: securities,
		CashBook:   cashBook,
		mu:         sync.Mutex{},
		logger:     log.Named("portfolio"),
	}
}

// SetCash sets the balance of the account currency.
func (p *Portfolio) SetCash(amount decimal.Decimal) {
	p.CashBook.Set(p.CashBook.AccountCurrency(), amount)
}

// Cash is the account currency balance.
func (p *Portfolio) Cash() decimal.Decimal {
	cash, _ := p.CashBook.Get(p.CashBook.AccountCurrency())

	return cash.Amount
}

// ProcessFill applies the fill carried by event. Events without a fill only
// charge their fee.
func (p *Portfolio) ProcessFill(event types.OrderEvent) error {
	security, ok := p.Securities.Get(event.Symbol)
	if !ok {
		return errors.Newf(errors.ErrCodeSecurityNotFound, "no security for %s", event.Symbol)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	feeCurrency := event.FeeCurrency
	if feeCurrency == "" {
		feeCurrency = p.CashBook.AccountCurrency()
	}

	if !event.OrderFee.IsZero() {
		p.CashBook.Add(feeCurrency, event.OrderFee.Neg())
	}

	if event.FillQuantity.IsZero() {
		return nil
	}

	quantity := event.FillQuantity
	if event.Direction == types.OrderDirectionSell && quantity.Sign() > 0 {
		quantity = quantity.Neg()
	}

	quoteCurrency := security.Properties.QuoteCurrency
	if event.FillPriceCurrency != "" {
		quoteCurrency = event.FillPriceCurrency
	}

	cost := quantity.Mul(event.FillPrice).Mul(security.Properties.ContractMultiplier)
	p.CashBook.Add(quoteCurrency, cost.Neg())

	feeInQuote := event.OrderFee
	if feeCurrency != quoteCurrency {
		feeInQuote = decimal.Zero
	}

	realized := security.applyFill(quantity, event.FillPrice, feeInQuote)

	p.logger.Debug("Applied fill",
		zap.Int("order_id", event.OrderID),
		zap.String("symbol", event.Symbol.String()),
		zap.String("quantity", quantity.String()),
		zap.String("price", event.FillPrice.String()),
		zap.String("realized", realized.String()),
	)

	return nil
}

// ApplySplit rescales the holding of the split security. Shares that no
// longer fill a lot are paid out in cash at the post-split price.
func (p *Portfolio) ApplySplit(split *types.Split) {
	if split.Type != types.SplitOccurred || split.SplitFactor <= 0 {
		return
	}

	security, ok := p.Securities.Get(split.Symbol)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	factor := decimal.NewFromFloat(split.SplitFactor)
	leftover := security.applySplit(factor)

	if !leftover.IsZero() {
		payout := leftover.Mul(security.Price()).Mul(security.Properties.ContractMultiplier)
		p.CashBook.Add(security.Properties.QuoteCurrency, payout)
	}

	p.logger.Info("Applied split",
		zap.String("symbol", split.Symbol.String()),
		zap.Float64("factor", split.SplitFactor),
		zap.String("quantity", security.Holding().Quantity.String()),
	)
}

// ApplyDividend credits the dividend for the current holding.
func (p *Portfolio) ApplyDividend(dividend *types.Dividend) {
	security, ok := p.Securities.Get(dividend.Symbol)
	if !ok || !security.Invested() {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	amount := security.Holding().Quantity.Mul(decimal.NewFromFloat(dividend.Distribution)).Mul(security.Properties.ContractMultiplier)
	p.CashBook.Add(security.Properties.QuoteCurrency, amount)

	p.logger.Info("Applied dividend",
		zap.String("symbol", dividend.Symbol.String()),
		zap.Float64("distribution", dividend.Distribution),
		zap.String("amount", amount.String()),
	)
}

// SetHolding overwrites a position, for brokerage reconciliation.
func (p *Portfolio) SetHolding(symbol types.Symbol, holding Holding) {
	security, _ := p.Securities.Add(symbol)
	security.setHolding(holding)
}

// TotalHoldingsValue sums every position in the account currency.
func (p *Portfolio) TotalHoldingsValue() decimal.Decimal {
	total := decimal.Zero

	for _, security := range p.Securities.All() {
		if !security.Invested() {
			continue
		}

		total = total.Add(p.CashBook.Convert(security.HoldingsValue(), security.Properties.QuoteCurrency))
	}

	return total
}

// TotalPortfolioValue is cash plus holdings, in the account currency.
func (p *Portfolio) TotalPortfolioValue() decimal.Decimal {
	return p.CashBook.TotalValue().Add(p.TotalHoldingsValue())
}

// TotalProfit sums realized profit net of fees over every security.
func (p *Portfolio) TotalProfit() decimal.Decimal {
	total := decimal.Zero

	for _, security := range p.Securities.All() {
		total = total.Add(p.CashBook.Convert(security.TotalProfit(), security.Properties.QuoteCurrency))
	}

	return total
}

// Invested reports whether any position is open.
func (p *Portfolio) Invested() bool {
	for _, security := range p.Securities.All() {
		if security.Invested() {
			return true
		}
	}

	return false
}
