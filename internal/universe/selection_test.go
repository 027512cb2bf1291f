package universe

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/mocks"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"pgregory.net/rapid"
)

// fakeSubscriptions keeps reference sets per key like the data manager does.
type fakeSubscriptions struct {
	mu      sync.Mutex
	refs    map[types.SubscriptionKey]map[string]struct{}
	configs map[types.SubscriptionKey]types.SubscriptionDataConfig
	removed []types.SubscriptionKey
}

func newFakeSubscriptions() *fakeSubscriptions {
	return &fakeSubscriptions{
		mu:      sync.Mutex{},
		refs:    make(map[types.SubscriptionKey]map[string]struct{}),
		configs: make(map[types.SubscriptionKey]types.SubscriptionDataConfig),
		removed: nil,
	}
}

func (f *fakeSubscriptions) AddSubscription(request types.SubscriptionRequest) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := request.Config.Key()
	if refs, ok := f.refs[key]; ok {
		refs[request.Universe] = struct{}{}

		return false, nil
	}

	f.refs[key] = map[string]struct{}{request.Universe: {}}
	f.configs[key] = request.Config

	return true, nil
}

func (f *fakeSubscriptions) RemoveSubscription(key types.SubscriptionKey, universe string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	refs, ok := f.refs[key]
	if !ok {
		return false
	}

	delete(refs, universe)

	if len(refs) > 0 {
		return false
	}

	delete(f.refs, key)
	f.removed = append(f.removed, key)

	return true
}

func (f *fakeSubscriptions) has(symbol types.Symbol) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key := range f.refs {
		if key.Symbol == symbol {
			return true
		}
	}

	return false
}

// fakeOrders reports open orders for the symbols in open.
type fakeOrders struct {
	mu   sync.Mutex
	open map[types.Symbol]bool
}

func (f *fakeOrders) GetOpenOrders(filter func(order *types.Order) bool) []*types.Order {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []*types.Order

	for symbol, open := range f.open {
		if !open {
			continue
		}

		//nolint:exhaustruct
		order := &types.Order{Symbol: symbol, Status: types.OrderStatusSubmitted}
		if filter == nil || filter(order) {
			out = append(out, order)
		}
	}

	return out
}

func (f *fakeOrders) set(symbol types.Symbol, open bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.open[symbol] = open
}

type SelectionTestSuite struct {
	suite.Suite
	ctrl          *gomock.Controller
	securities    *securities.Manager
	cashBook      *securities.CashBook
	portfolio     *securities.Portfolio
	subscriptions *fakeSubscriptions
	orders        *fakeOrders
	fine          *mocks.MockFineFundamentalProvider
	engine        *SelectionEngine
	now           time.Time
}

func TestSelectionSuite(t *testing.T) {
	suite.Run(t, new(SelectionTestSuite))
}

func (suite *SelectionTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.securities = securities.NewManager(nil)
	suite.cashBook = securities.NewCashBook(types.AccountCurrencyDefault)
	suite.portfolio = securities.NewPortfolio(suite.securities, suite.cashBook, logger.NewNopLogger())
	suite.subscriptions = newFakeSubscriptions()
	suite.orders = &fakeOrders{mu: sync.Mutex{}, open: make(map[types.Symbol]bool)}
	suite.fine = mocks.NewMockFineFundamentalProvider(suite.ctrl)
	suite.engine = NewSelectionEngine(Options{
		Securities:    suite.securities,
		CashBook:      suite.cashBook,
		Subscriptions: suite.subscriptions,
		Orders:        suite.orders,
		Fine:          suite.fine,
		Workers:       4,
		Logger:        logger.NewNopLogger(),
	})
	suite.now = time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
}

func (suite *SelectionTestSuite) apply(u *Universe, utc time.Time, data SelectionData) *types.SecurityChanges {
	changes, err := suite.engine.ApplyUniverseSelection(context.Background(), u, utc, data)
	suite.Require().NoError(err)

	return changes
}

func (suite *SelectionTestSuite) dynamic(name string, current *[]types.Symbol) *Universe {
	return NewUserDefinedUniverse(name, DefaultSettings(), func(time.Time) Selection {
		return Select(*current...)
	})
}

var (
	spy  = types.NewEquity("SPY")
	aapl = types.NewEquity("AAPL")
	msft = types.NewEquity("MSFT")
)

func (suite *SelectionTestSuite) TestUserDefinedIsIdempotent() {
	u := NewUserDefinedUniverse("manual", DefaultSettings(), nil, spy, aapl)

	changes := suite.apply(u, suite.now, SelectionData{})
	suite.Equal([]types.Symbol{aapl, spy}, changes.Added)
	suite.Empty(changes.Removed)

	again := suite.apply(u, suite.now.Add(time.Minute), SelectionData{})
	suite.Same(types.SecurityChangesNone, again)

	suite.Len(u.Members(), 2)
	suite.True(suite.subscriptions.has(spy))
}

func (suite *SelectionTestSuite) TestFixedSymbolsCanChange() {
	u := NewUserDefinedUniverse("manual", DefaultSettings(), nil, spy)
	suite.apply(u, suite.now, SelectionData{})

	suite.True(u.AddSymbols(aapl, spy))
	suite.False(u.AddSymbols(aapl))

	changes := suite.apply(u, suite.now.Add(time.Minute), SelectionData{})
	suite.Equal([]types.Symbol{aapl}, changes.Added)

	suite.True(u.RemoveSymbol(spy))
	suite.False(u.RemoveSymbol(msft))

	changes = suite.apply(u, suite.now.Add(2*time.Minute), SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Removed)
	suite.False(u.Contains(spy))
}

func (suite *SelectionTestSuite) TestUnchangedReturnsNone() {
	subscriptions := mocks.NewMockSubscriptionService(suite.ctrl)
	engine := NewSelectionEngine(Options{
		Securities:    suite.securities,
		CashBook:      suite.cashBook,
		Subscriptions: subscriptions,
		Orders:        suite.orders,
		Fine:          suite.fine,
		Workers:       1,
		Logger:        logger.NewNopLogger(),
	})

	u := NewCoarseUniverse("coarse", types.MarketUSA, DefaultSettings(), func(time.Time, []*types.CoarseFundamental) Selection {
		return Unchanged
	})

	for range 2 {
		changes, err := engine.ApplyUniverseSelection(context.Background(), u, suite.now, SelectionData{})
		suite.Require().NoError(err)
		suite.Same(types.SecurityChangesNone, changes)
	}
}

func (suite *SelectionTestSuite) TestSameTimestampSharesSecurity() {
	current := []types.Symbol{spy}
	first := suite.dynamic("first", &current)
	second := NewUserDefinedUniverse("second", DefaultSettings(), nil, spy)

	changes := suite.apply(first, suite.now, SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Added)

	// the subscription already exists so the second universe adds nothing new
	suite.Same(types.SecurityChangesNone, suite.apply(second, suite.now, SelectionData{}))

	a, ok := first.member(spy)
	suite.Require().True(ok)
	b, ok := second.member(spy)
	suite.Require().True(ok)
	suite.Same(a.Security, b.Security)
	suite.Len(suite.securities.All(), 1)

	// the subscription survives while the second universe holds it
	current = nil
	changes = suite.apply(first, suite.now.Add(time.Minute), SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Removed)
	suite.True(suite.subscriptions.has(spy))
}

func (suite *SelectionTestSuite) TestRemovalDeferredWhileOrderOpen() {
	current := []types.Symbol{spy, aapl}
	u := suite.dynamic("dynamic", &current)

	suite.apply(u, suite.now, SelectionData{})
	suite.orders.set(spy, true)

	current = []types.Symbol{aapl}
	changes := suite.apply(u, suite.now.Add(time.Minute), SelectionData{})
	suite.Same(types.SecurityChangesNone, changes)
	suite.True(u.Contains(spy))
	suite.True(suite.engine.PendingRemovals().IsPending("dynamic", spy))
	suite.True(suite.subscriptions.has(spy))

	// still open: nothing moves and the member is not queued twice
	suite.apply(u, suite.now.Add(2*time.Minute), SelectionData{})
	suite.Len(suite.engine.PendingRemovals().PendingRemovals("dynamic"), 1)

	suite.orders.set(spy, false)

	changes = suite.apply(u, suite.now.Add(3*time.Minute), SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Removed)
	suite.False(u.Contains(spy))
	suite.False(suite.engine.PendingRemovals().IsPending("dynamic", spy))
	suite.False(suite.subscriptions.has(spy))
}

func (suite *SelectionTestSuite) TestRemovalDeferredWhileInvested() {
	current := []types.Symbol{spy}
	u := suite.dynamic("dynamic", &current)

	suite.apply(u, suite.now, SelectionData{})
	suite.portfolio.SetHolding(spy, securities.Holding{Quantity: decimal.NewFromInt(10), AveragePrice: decimal.NewFromInt(100)})

	current = nil
	suite.Same(types.SecurityChangesNone, suite.apply(u, suite.now.Add(time.Minute), SelectionData{}))
	suite.True(u.Contains(spy))

	suite.portfolio.SetHolding(spy, securities.Holding{Quantity: decimal.Zero, AveragePrice: decimal.Zero})

	changes := suite.apply(u, suite.now.Add(2*time.Minute), SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Removed)
}

func (suite *SelectionTestSuite) TestReselectedPendingMemberIsKept() {
	current := []types.Symbol{spy}
	u := suite.dynamic("dynamic", &current)

	suite.apply(u, suite.now, SelectionData{})
	suite.orders.set(spy, true)

	current = nil
	suite.apply(u, suite.now.Add(time.Minute), SelectionData{})
	suite.True(suite.engine.PendingRemovals().IsPending("dynamic", spy))

	current = []types.Symbol{spy}
	suite.orders.set(spy, false)

	suite.Same(types.SecurityChangesNone, suite.apply(u, suite.now.Add(2*time.Minute), SelectionData{}))
	suite.False(suite.engine.PendingRemovals().IsPending("dynamic", spy))
	suite.True(u.Contains(spy))
}

func (suite *SelectionTestSuite) TestMinimumTimeInUniverse() {
	settings := DefaultSettings()
	settings.MinimumTimeInUniverse = time.Hour

	current := []types.Symbol{spy}
	u := NewUserDefinedUniverse("sticky", settings, func(time.Time) Selection {
		return Select(current...)
	})

	suite.apply(u, suite.now, SelectionData{})

	current = nil
	suite.Same(types.SecurityChangesNone, suite.apply(u, suite.now.Add(30*time.Minute), SelectionData{}))
	suite.True(u.Contains(spy))

	changes := suite.apply(u, suite.now.Add(time.Hour), SelectionData{})
	suite.Equal([]types.Symbol{spy}, changes.Removed)
}

func (suite *SelectionTestSuite) TestCoarseFineJoin() {
	coarse := []*types.CoarseFundamental{
		{Symbol: spy, Time: suite.now, Price: 470, Volume: 1e6, DollarVolume: 4.7e8, HasFundamentalData: true, PriceFactor: 1, SplitFactor: 1},
		{Symbol: aapl, Time: suite.now, Price: 185, Volume: 1e6, DollarVolume: 1.85e8, HasFundamentalData: true, PriceFactor: 1, SplitFactor: 1},
		{Symbol: msft, Time: suite.now, Price: 370, Volume: 1e6, DollarVolume: 3.7e8, HasFundamentalData: true, PriceFactor: 1, SplitFactor: 1},
		{Symbol: types.NewEquity("TINY"), Time: suite.now, Price: 1, Volume: 10, DollarVolume: 10, HasFundamentalData: false, PriceFactor: 1, SplitFactor: 1},
	}

	u := NewCoarseFineUniverse("fundamentals", types.MarketUSA, DefaultSettings(),
		func(_ time.Time, rows []*types.CoarseFundamental) Selection {
			var out []types.Symbol
			for _, row := range rows {
				if row.HasFundamentalData {
					out = append(out, row.Symbol)
				}
			}

			return Select(out...)
		},
		func(_ time.Time, rows []*types.Fundamentals) Selection {
			var out []types.Symbol
			for _, row := range rows {
				if row.Fine.Sector == "Technology" && row.DollarVolume > 1e8 {
					out = append(out, row.Symbol)
				}
			}

			return Select(out...)
		},
	)

	suite.fine.EXPECT().Fine(gomock.Any(), spy, suite.now).Return(types.FineFundamental{Symbol: spy, Sector: "Fund"}, nil)
	suite.fine.EXPECT().Fine(gomock.Any(), aapl, suite.now).Return(types.FineFundamental{Symbol: aapl, Sector: "Technology"}, nil)
	suite.fine.EXPECT().Fine(gomock.Any(), msft, suite.now).Return(types.FineFundamental{}, errors.New(errors.ErrCodeDataNotFound, "no fine data"))

	changes := suite.apply(u, suite.now, SelectionData{Coarse: coarse})
	suite.Equal([]types.Symbol{aapl}, changes.Added)
	suite.Equal(KindCoarseFine, u.Kind)
	suite.True(u.HasSelectionData())
}

func (suite *SelectionTestSuite) TestCoarseFineCanceledContext() {
	u := NewCoarseFineUniverse("fundamentals", types.MarketUSA, DefaultSettings(),
		func(_ time.Time, rows []*types.CoarseFundamental) Selection {
			return Select(rows[0].Symbol)
		},
		func(time.Time, []*types.Fundamentals) Selection {
			return Select()
		},
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	changes, err := suite.engine.ApplyUniverseSelection(ctx, u, suite.now, SelectionData{
		Coarse: []*types.CoarseFundamental{{Symbol: spy, Time: suite.now, Price: 1, PriceFactor: 1, SplitFactor: 1}},
	})
	suite.Error(err)
	suite.Nil(changes)
}

func (suite *SelectionTestSuite) TestConversionFeedsAreInternal() {
	eurgbp := types.NewForex("EURGBP")
	u := NewUserDefinedUniverse("fx", DefaultSettings(), nil, eurgbp)

	changes := suite.apply(u, suite.now, SelectionData{})
	suite.Equal([]types.Symbol{eurgbp}, changes.Added)
	suite.Equal([]types.Symbol{types.NewForex("GBPUSD")}, changes.InternalAdded)
	suite.True(suite.subscriptions.has(types.NewForex("GBPUSD")))

	_, ok := suite.cashBook.Get("GBP")
	suite.True(ok)
}

func (suite *SelectionTestSuite) TestOptionChainKeepsUnderlying() {
	expiry := time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	call := types.NewOption(spy, expiry, 470, types.OptionRightCall)
	put := types.NewOption(spy, expiry, 460, types.OptionRightPut)

	u := NewOptionChainUniverse(spy, DefaultSettings(), func(_ time.Time, underlying types.Symbol, contracts []types.Symbol) Selection {
		suite.Equal(spy, underlying)

		return Select(slices.DeleteFunc(slices.Clone(contracts), func(s types.Symbol) bool {
			return s.Right != types.OptionRightCall
		})...)
	})
	suite.Equal(BindingUnderlyingSecurity, u.Binding())

	changes := suite.apply(u, suite.now, SelectionData{Contracts: []types.Symbol{call, put}})
	suite.ElementsMatch([]types.Symbol{call, spy}, changes.Added)

	// the underlying cannot go while the call is a member
	suite.False(u.CanRemoveMember(suite.now, spy))
	suite.True(u.CanRemoveMember(suite.now, call))

	changes = suite.apply(u, suite.now.Add(time.Minute), SelectionData{Contracts: []types.Symbol{put}})
	suite.Equal([]types.Symbol{call}, changes.Removed)
	suite.True(u.Contains(spy))
	suite.True(u.CanRemoveMember(suite.now, spy))
}

func (suite *SelectionTestSuite) TestFuturesChainIsCanonical() {
	root := types.NewSymbol("ES", types.SecurityTypeFuture, types.MarketCME)
	contract := types.NewFuture("ES", types.MarketCME, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC))

	u := NewFuturesChainUniverse(root, DefaultSettings(), func(_ time.Time, _ types.Symbol, contracts []types.Symbol) Selection {
		return Select(contracts...)
	})
	suite.Equal(BindingCanonical, u.Binding())

	changes := suite.apply(u, suite.now, SelectionData{Contracts: []types.Symbol{contract}})
	suite.Equal([]types.Symbol{contract}, changes.Added)
	suite.False(u.Contains(root))
}

func (suite *SelectionTestSuite) TestAddUniverseSubscribesSelectionData() {
	u := NewCoarseUniverse("coarse", types.MarketUSA, DefaultSettings(), func(time.Time, []*types.CoarseFundamental) Selection {
		return Unchanged
	})

	suite.Require().NoError(suite.engine.AddUniverse(u, suite.now))
	suite.True(suite.subscriptions.has(u.DataConfig.Symbol))

	err := suite.engine.AddUniverse(u, suite.now)
	suite.True(errors.HasCode(err, errors.ErrCodeUniverseAlreadyAdded))

	// no selection data for user defined universes
	suite.NoError(suite.engine.AddUniverse(NewUserDefinedUniverse("manual", DefaultSettings(), nil), suite.now))
}

// TestMembershipFollowsSelection checks that without open orders the members
// always equal the last selection and a repeated selection is a no-op.
func TestMembershipFollowsSelection(t *testing.T) {
	pool := []types.Symbol{spy, aapl, msft, types.NewEquity("QQQ"), types.NewEquity("IWM")}

	rapid.Check(t, func(t *rapid.T) {
		manager := securities.NewManager(nil)
		engine := NewSelectionEngine(Options{
			Securities:    manager,
			CashBook:      securities.NewCashBook(types.AccountCurrencyDefault),
			Subscriptions: newFakeSubscriptions(),
			Orders:        nil,
			Fine:          nil,
			Workers:       1,
			Logger:        logger.NewNopLogger(),
		})

		var current []types.Symbol

		u := NewUserDefinedUniverse("prop", DefaultSettings(), func(time.Time) Selection {
			return Select(current...)
		})

		now := time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC)
		steps := rapid.IntRange(1, 10).Draw(t, "steps")

		for i := range steps {
			current = rapid.SliceOfDistinct(rapid.SampledFrom(pool), func(s types.Symbol) types.Symbol { return s }).Draw(t, "selection")
			now = now.Add(time.Minute)

			if _, err := engine.ApplyUniverseSelection(context.Background(), u, now, SelectionData{}); err != nil {
				t.Fatalf("step %d: %v", i, err)
			}

			members := make([]types.Symbol, 0)
			for _, m := range u.Members() {
				members = append(members, m.Security.Symbol)
			}

			expected := slices.SortedFunc(slices.Values(current), compareSymbols)
			if !slices.Equal(expected, members) {
				t.Fatalf("step %d: members %v, selected %v", i, members, expected)
			}

			again, err := engine.ApplyUniverseSelection(context.Background(), u, now.Add(time.Second), SelectionData{})
			if err != nil {
				t.Fatalf("step %d: %v", i, err)
			}

			if again != types.SecurityChangesNone {
				t.Fatalf("step %d: repeated selection produced %v", i, again)
			}
		}
	})
}
