package securities

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PortfolioTestSuite struct {
	suite.Suite
	portfolio *Portfolio
	spy       *Security
	now       time.Time
}

func TestPortfolioSuite(t *testing.T) {
	suite.Run(t, new(PortfolioTestSuite))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (suite *PortfolioTestSuite) SetupTest() {
	suite.portfolio = NewPortfolio(NewManager(nil), NewCashBook("USD"), logger.NewNopLogger())
	suite.portfolio.SetCash(d("10000"))
	suite.spy, _ = suite.portfolio.Securities.Add(types.NewEquity("SPY"))
	suite.spy.SetPrice(d("100"), time.Time{})
	suite.now = time.Date(2020, 1, 2, 15, 0, 0, 0, time.UTC)
}

func (suite *PortfolioTestSuite) fill(symbol types.Symbol, quantity, price, fee string) types.OrderEvent {
	order := &types.Order{ //nolint:exhaustruct
		ID:       1,
		Symbol:   symbol,
		Type:     types.OrderTypeMarket,
		Quantity: d(quantity),
		Status:   types.OrderStatusFilled,
	}

	return types.NewFillEvent(order, suite.now, types.OrderStatusFilled, d(price), d(quantity), d(fee))
}

func (suite *PortfolioTestSuite) equal(expected string, actual decimal.Decimal) {
	suite.True(d(expected).Equal(actual), "expected %s, got %s", expected, actual)
}

func (suite *PortfolioTestSuite) TestDefaultSymbolProperties() {
	tests := []struct {
		name       string
		symbol     types.Symbol
		lot        string
		tick       string
		multiplier string
		quote      string
	}{
		{name: "equity", symbol: types.NewEquity("SPY"), lot: "1", tick: "0.01", multiplier: "1", quote: "USD"},
		{name: "forex", symbol: types.NewForex("EURGBP"), lot: "1000", tick: "0.00001", multiplier: "1", quote: "GBP"},
		{name: "crypto", symbol: types.NewSymbol("BTCUSD", types.SecurityTypeCrypto, types.MarketBinance), lot: "0.00001", tick: "0.01", multiplier: "1", quote: "USD"},
		{
			name:   "option",
			symbol: types.NewOption(types.NewEquity("SPY"), time.Date(2020, 3, 20, 0, 0, 0, 0, time.UTC), 300, types.OptionRightCall),
			lot:    "1", tick: "0.01", multiplier: "100", quote: "USD",
		},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			props := DefaultSymbolProperties(tc.symbol)
			suite.equal(tc.lot, props.LotSize)
			suite.equal(tc.tick, props.MinimumPriceVariation)
			suite.equal(tc.multiplier, props.ContractMultiplier)
			suite.Equal(tc.quote, props.QuoteCurrency)
		})
	}
}

func (suite *PortfolioTestSuite) TestProcessFillOpensAndCloses() {
	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "100", "1")))
	suite.equal("8999", suite.portfolio.Cash())
	suite.equal("10", suite.spy.Holding().Quantity)
	suite.equal("100", suite.spy.Holding().AveragePrice)

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "110", "1")))
	suite.equal("105", suite.spy.Holding().AveragePrice)

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "-5", "115", "1")))
	suite.equal("15", suite.spy.Holding().Quantity)
	suite.equal("105", suite.spy.Holding().AveragePrice)
	// 50 realized less 3 in fees
	suite.equal("47", suite.spy.TotalProfit())

	// Selling through zero leaves a short opened at the fill price.
	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "-20", "100", "0")))
	suite.equal("-5", suite.spy.Holding().Quantity)
	suite.equal("100", suite.spy.Holding().AveragePrice)
	suite.equal("-28", suite.spy.TotalProfit())

	suite.equal(d("10000").Sub(d("1000")).Sub(d("1100")).Add(d("575")).Add(d("2000")).Sub(d("3")).String(), suite.portfolio.Cash())
}

func (suite *PortfolioTestSuite) TestZeroFillOnlyChargesFee() {
	event := suite.fill(suite.spy.Symbol, "0", "0", "2")
	suite.Require().NoError(suite.portfolio.ProcessFill(event))
	suite.equal("9998", suite.portfolio.Cash())
	suite.False(suite.spy.Invested())
}

func (suite *PortfolioTestSuite) TestProcessFillUnknownSecurity() {
	err := suite.portfolio.ProcessFill(suite.fill(types.NewEquity("AAPL"), "1", "1", "0"))
	suite.True(errors.IsCode(err, errors.ErrCodeSecurityNotFound))
}

func (suite *PortfolioTestSuite) TestApplySplit() {
	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "100", "0")))

	suite.portfolio.ApplySplit(&types.Split{Symbol: suite.spy.Symbol, Time: suite.now, SplitFactor: 0.5, ReferencePrice: 100, Type: types.SplitOccurred})

	suite.equal("20", suite.spy.Holding().Quantity)
	suite.equal("50", suite.spy.Holding().AveragePrice)
	suite.equal("50", suite.spy.Price())
	suite.equal("9000", suite.portfolio.Cash())
	suite.equal("10000", suite.portfolio.TotalPortfolioValue())
}

func (suite *PortfolioTestSuite) TestApplySplitPaysFractionInCash() {
	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "3", "100", "0")))

	suite.portfolio.ApplySplit(&types.Split{Symbol: suite.spy.Symbol, Time: suite.now, SplitFactor: 0.4, ReferencePrice: 100, Type: types.SplitOccurred})

	// 3 / 0.4 = 7.5 shares; half a share at 40 is paid out.
	suite.equal("7", suite.spy.Holding().Quantity)
	suite.equal("9720", suite.portfolio.Cash())
}

func (suite *PortfolioTestSuite) TestSplitWarningIsIgnored() {
	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "100", "0")))

	suite.portfolio.ApplySplit(&types.Split{Symbol: suite.spy.Symbol, Time: suite.now, SplitFactor: 0.5, ReferencePrice: 100, Type: types.SplitWarning})

	suite.equal("10", suite.spy.Holding().Quantity)
}

func (suite *PortfolioTestSuite) TestApplyDividend() {
	suite.portfolio.ApplyDividend(&types.Dividend{Symbol: suite.spy.Symbol, Time: suite.now, Distribution: 0.5, ReferencePrice: 100})
	suite.equal("10000", suite.portfolio.Cash())

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "100", "0")))
	suite.portfolio.ApplyDividend(&types.Dividend{Symbol: suite.spy.Symbol, Time: suite.now, Distribution: 0.5, ReferencePrice: 100})
	suite.equal("9005", suite.portfolio.Cash())
}

func (suite *PortfolioTestSuite) TestForexValuation() {
	eurusd, _ := suite.portfolio.Securities.Add(types.NewForex("EURUSD"))
	eurusd.SetPrice(d("1.1"), suite.now)

	suite.portfolio.CashBook.Set("EUR", d("1000"))
	suite.portfolio.CashBook.Ensure("JPY")
	usdjpy, _ := suite.portfolio.Securities.Add(types.NewForex("USDJPY"))
	usdjpy.SetPrice(d("100"), suite.now)
	suite.portfolio.CashBook.Set("JPY", d("10000"))

	suite.Equal([]types.Symbol{types.NewForex("EURUSD"), types.NewForex("JPYUSD")}, suite.portfolio.CashBook.ConversionSymbols())

	suite.portfolio.CashBook.UpdateConversionRates(suite.portfolio.Securities)

	suite.equal("11200", suite.portfolio.TotalPortfolioValue())

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(eurusd.Symbol, "1000", "1.1", "0")))
	suite.equal("8900", suite.portfolio.Cash())
	suite.equal("1100", suite.portfolio.TotalHoldingsValue())
}

func (suite *PortfolioTestSuite) TestOverwriteCash() {
	suite.portfolio.CashBook.Set("EUR", d("50"))
	suite.portfolio.CashBook.Overwrite([]types.CashAmount{types.NewCashAmount("USD", d("123"))})

	suite.equal("123", suite.portfolio.Cash())
	eur, ok := suite.portfolio.CashBook.Get("EUR")
	suite.True(ok)
	suite.True(eur.Amount.IsZero())
}

func (suite *PortfolioTestSuite) TestCashBuyingPower() {
	model := CashBuyingPowerModel{}
	order := func(quantity string) *types.Order {
		return &types.Order{Symbol: suite.spy.Symbol, Type: types.OrderTypeMarket, Quantity: d(quantity)} //nolint:exhaustruct
	}

	ok, _ := model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("100"))
	suite.True(ok)

	ok, reason := model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("101"))
	suite.False(ok)
	suite.Contains(reason, "insufficient buying power")

	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("-1"))
	suite.False(ok)

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "10", "100", "0")))
	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("-10"))
	suite.True(ok)

	limit := order("95")
	limit.Type = types.OrderTypeLimit
	limit.LimitPrice = d("90")
	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, limit)
	suite.True(ok)
}

func (suite *PortfolioTestSuite) TestMarginBuyingPower() {
	model := MarginBuyingPowerModel{Leverage: d("2")}
	order := func(quantity string) *types.Order {
		return &types.Order{Symbol: suite.spy.Symbol, Type: types.OrderTypeMarket, Quantity: d(quantity)} //nolint:exhaustruct
	}

	ok, _ := model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("200"))
	suite.True(ok)

	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("-201"))
	suite.False(ok)

	suite.Require().NoError(suite.portfolio.ProcessFill(suite.fill(suite.spy.Symbol, "150", "100", "0")))

	// Closing never needs margin.
	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("-150"))
	suite.True(ok)

	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("50"))
	suite.True(ok)

	ok, _ = model.HasSufficientBuyingPower(suite.portfolio, suite.spy, order("51"))
	suite.False(ok)
}

func (suite *PortfolioTestSuite) TestManagerUpdatesPrices() {
	manager := suite.portfolio.Securities
	_, created := manager.Add(types.NewEquity("SPY"))
	suite.False(created)

	manager.Update([]types.BaseData{
		&types.TradeBar{Symbol: suite.spy.Symbol, Time: suite.now, Period: time.Minute, Open: 1, High: 1, Low: 1, Close: 101, Volume: 1},
		&types.Split{Symbol: suite.spy.Symbol, Time: suite.now, SplitFactor: 0.5, ReferencePrice: 1, Type: types.SplitWarning},
		&types.TradeBar{Symbol: types.NewEquity("AAPL"), Time: suite.now, Period: time.Minute, Open: 1, High: 1, Low: 1, Close: 5, Volume: 1},
	})

	suite.equal("101", suite.spy.Price())
	suite.Equal(suite.now.Add(time.Minute), suite.spy.PriceTime())
	suite.False(manager.Contains(types.NewEquity("AAPL")))
	suite.Len(manager.All(), 1)
}
