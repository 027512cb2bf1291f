package engine

import (
	"context"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/transactions"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/universe"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mock_algorithm_test.go -package=engine_test github.com/rxtech-lab/argo-engine/internal/engine Algorithm

// Algorithm is the trading logic driven by the engine. Everything but
// OnOrderEvent runs on the engine goroutine. OnOrderEvent may run on a
// transaction handler goroutine, must not block and must not add or remove
// securities.
type Algorithm interface {
	Name() string
	// Initialize adds the securities and universes the algorithm trades.
	Initialize(api *API) error
	OnSecuritiesChanged(api *API, changes *types.SecurityChanges) error
	OnData(api *API, slice *datafeed.TimeSlice) error
	OnOrderEvent(api *API, event types.OrderEvent)
}

// API is what an algorithm can do with the engine.
type API struct {
	engine *Engine
}

func (a *API) Time() time.Time {
	return a.engine.clock.Now()
}

func (a *API) IsWarmingUp() bool {
	return a.engine.warmingUp.Load()
}

func (a *API) Logger() *logger.Logger {
	return a.engine.logger.Named("algorithm")
}

func (a *API) Portfolio() *securities.Portfolio {
	return a.engine.portfolio
}

func (a *API) Securities() *securities.Manager {
	return a.engine.securities
}

func (a *API) Transactions() *transactions.Handler {
	return a.engine.transactions
}

// AddEquity subscribes a US equity with the configured universe settings.
func (a *API) AddEquity(ticker string) (types.Symbol, error) {
	symbol := types.NewEquity(ticker)

	return symbol, a.AddSecurity(symbol)
}

// AddForex subscribes a forex pair such as EURUSD.
func (a *API) AddForex(pair string) (types.Symbol, error) {
	symbol := types.NewForex(pair)

	return symbol, a.AddSecurity(symbol)
}

// AddSecurity adds symbol to the manual universe. The security is
// subscribed at once and reported with the next slice.
func (a *API) AddSecurity(symbol types.Symbol) error {
	if !a.engine.manual.AddSymbols(symbol) {
		return nil
	}

	return a.engine.reselect(a.engine.manual)
}

// RemoveSecurity drops symbol from the manual universe. The removal is
// deferred while the security is invested or has open orders.
func (a *API) RemoveSecurity(symbol types.Symbol) error {
	if !a.engine.manual.RemoveSymbol(symbol) {
		return errors.Newf(errors.ErrCodeInvalidSymbol, "%s was not added by the algorithm", symbol)
	}

	return a.engine.reselect(a.engine.manual)
}

// AddUniverse registers u. User defined universes are selected at once,
// the others on their next selection data.
func (a *API) AddUniverse(u *universe.Universe) error {
	return a.engine.addUniverse(u)
}

func (a *API) MarketOrder(symbol types.Symbol, quantity decimal.Decimal, tag string) *transactions.OrderTicket {
	return a.submit(types.OrderTypeMarket, symbol, quantity, decimal.Zero, decimal.Zero, tag)
}

func (a *API) LimitOrder(symbol types.Symbol, quantity, limitPrice decimal.Decimal, tag string) *transactions.OrderTicket {
	return a.submit(types.OrderTypeLimit, symbol, quantity, decimal.Zero, limitPrice, tag)
}

func (a *API) StopMarketOrder(symbol types.Symbol, quantity, stopPrice decimal.Decimal, tag string) *transactions.OrderTicket {
	return a.submit(types.OrderTypeStopMarket, symbol, quantity, stopPrice, decimal.Zero, tag)
}

func (a *API) StopLimitOrder(symbol types.Symbol, quantity, stopPrice, limitPrice decimal.Decimal, tag string) *transactions.OrderTicket {
	return a.submit(types.OrderTypeStopLimit, symbol, quantity, stopPrice, limitPrice, tag)
}

func (a *API) submit(orderType types.OrderType, symbol types.Symbol, quantity, stopPrice, limitPrice decimal.Decimal, tag string) *transactions.OrderTicket {
	request := types.NewSubmitOrderRequest(orderType, symbol, quantity, stopPrice, limitPrice, a.Time(), tag)

	return a.engine.transactions.SubmitOrder(request)
}

// SetHoldings sends a market order that moves the position in symbol to
// fraction of the total portfolio value. It returns nil when no order is
// needed or the security has no price yet.
func (a *API) SetHoldings(symbol types.Symbol, fraction decimal.Decimal, tag string) *transactions.OrderTicket {
	security, ok := a.engine.securities.Get(symbol)
	if !ok || !security.HasPrice() {
		a.engine.logger.Warn("Cannot set holdings without a price", zap.String("symbol", symbol.String()))

		return nil
	}

	price := security.Price()
	fees := a.engine.config.Brokerage.FeeModel(security)

	target := utils.CalculateOrderQuantityByPercentage(
		a.engine.portfolio.TotalPortfolioValue(),
		price,
		security.Properties.LotSize,
		func(quantity decimal.Decimal) decimal.Decimal { return fees.Calculate(quantity, price) },
		fraction,
	)

	current := security.Holding().Quantity.Add(a.engine.transactions.OpenOrdersRemainingQuantity(symbol))

	delta := target.Sub(current)
	if delta.IsZero() {
		return nil
	}

	return a.MarketOrder(symbol, delta, tag)
}

// Liquidate cancels the open orders of symbol and closes its position.
func (a *API) Liquidate(symbol types.Symbol, tag string) *transactions.OrderTicket {
	a.engine.transactions.CancelOpenOrders(symbol, tag)

	security, ok := a.engine.securities.Get(symbol)
	if !ok || !security.Invested() {
		return nil
	}

	return a.MarketOrder(symbol, security.Holding().Quantity.Neg(), tag)
}

// BuyAndHold spreads the portfolio evenly over its tickers on the first
// slice that prices all of them and holds until the end.
type BuyAndHold struct {
	Tickers []string

	symbols []types.Symbol
	done    bool
}

var _ Algorithm = (*BuyAndHold)(nil)

func NewBuyAndHold(tickers ...string) *BuyAndHold {
	//nolint:exhaustruct
	return &BuyAndHold{Tickers: tickers}
}

func (b *BuyAndHold) Name() string {
	return "buy_and_hold"
}

func (b *BuyAndHold) Initialize(api *API) error {
	if len(b.Tickers) == 0 {
		return errors.New(errors.ErrCodeMissingParameter, "buy and hold needs at least one ticker")
	}

	for _, ticker := range b.Tickers {
		symbol, err := api.AddEquity(ticker)
		if err != nil {
			return err
		}

		b.symbols = append(b.symbols, symbol)
	}

	return nil
}

func (b *BuyAndHold) OnSecuritiesChanged(api *API, changes *types.SecurityChanges) error {
	api.Logger().Info("Securities changed", zap.Stringer("changes", changes))

	return nil
}

func (b *BuyAndHold) OnData(api *API, _ *datafeed.TimeSlice) error {
	if b.done {
		return nil
	}

	for _, symbol := range b.symbols {
		security, ok := api.Securities().Get(symbol)
		if !ok || !security.HasPrice() {
			return nil
		}
	}

	fraction := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(b.symbols))))
	for _, symbol := range b.symbols {
		api.SetHoldings(symbol, fraction, "buy and hold")
	}

	b.done = true

	return nil
}

func (b *BuyAndHold) OnOrderEvent(api *API, event types.OrderEvent) {
	if event.Status.IsFill() {
		api.Logger().Info("Filled",
			zap.String("symbol", event.Symbol.String()),
			zap.String("quantity", event.FillQuantity.String()),
			zap.String("price", event.FillPrice.String()),
		)
	}
}

// reselect evaluates a user defined universe now and queues the changes
// for the next slice.
func (e *Engine) reselect(u *universe.Universe) error {
	now := e.clock.Now()

	changes, err := e.selection.ApplyUniverseSelection(context.Background(), u, now, universe.SelectionData{Coarse: nil, Contracts: nil})
	if err != nil {
		return err
	}

	if !changes.IsNone() {
		e.synchronizer.AddSecurityChanges(changes, now)
	}

	return nil
}
