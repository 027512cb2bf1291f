package transactions

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/brokerage"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/mocks"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

type HandlerTestSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	brokerage *mocks.MockBrokerage
	manager   *securities.Manager
	portfolio *securities.Portfolio
	clock     *utils.ManualClock
	handler   *Handler

	sinkMu sync.Mutex
	sink   chan<- brokerage.Event

	eventsMu sync.Mutex
	events   []types.OrderEvent

	spy    types.Symbol
	eurusd types.Symbol
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerTestSuite))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (suite *HandlerTestSuite) SetupTest() {
	suite.ctrl = gomock.NewController(suite.T())
	suite.brokerage = mocks.NewMockBrokerage(suite.ctrl)
	suite.brokerage.EXPECT().Name().Return("mock").AnyTimes()
	suite.brokerage.EXPECT().Disconnect().Return(nil).AnyTimes()
	suite.brokerage.EXPECT().Connect(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, sink chan<- brokerage.Event) error {
			suite.sinkMu.Lock()
			suite.sink = sink
			suite.sinkMu.Unlock()

			return nil
		}).AnyTimes()

	suite.clock = utils.NewManualClock(time.Date(2020, 1, 2, 15, 0, 0, 0, time.UTC))
	suite.spy = types.NewEquity("SPY")
	suite.eurusd = types.NewForex("EURUSD")

	suite.manager = securities.NewManager(nil)
	spy, _ := suite.manager.Add(suite.spy)
	spy.SetPrice(d("100"), suite.clock.Now())
	eurusd, _ := suite.manager.Add(suite.eurusd)
	eurusd.SetPrice(d("1.1"), suite.clock.Now())

	suite.portfolio = securities.NewPortfolio(suite.manager, securities.NewCashBook(types.AccountCurrencyDefault), logger.NewNopLogger())
	suite.portfolio.SetCash(d("100000"))

	suite.events = nil
	suite.handler = nil
}

func (suite *HandlerTestSuite) TearDownTest() {
	if suite.handler != nil {
		suite.handler.Exit(time.Second)
		suite.handler = nil
	}
}

func (suite *HandlerTestSuite) start(model brokerage.Model, live bool, warmingUp func() bool) {
	onEvent := OnOrderEventCallback(func(event types.OrderEvent) {
		suite.eventsMu.Lock()
		defer suite.eventsMu.Unlock()

		suite.events = append(suite.events, event)
	})

	suite.handler = NewHandler(Options{
		Brokerage:       suite.brokerage,
		Model:           model,
		Portfolio:       suite.portfolio,
		Clock:           suite.clock,
		Calendar:        nil,
		Live:            live,
		IsWarmingUp:     warmingUp,
		QueueSize:       0,
		EventBufferSize: 0,
		BusyTimeout:     2 * time.Second,
		Callbacks:       Callbacks{OnOrderEvent: &onEvent, OnBrokerageMessage: nil, OnAccountChanged: nil},
		Logger:          logger.NewNopLogger(),
	})
	suite.Require().NoError(suite.handler.Start(context.Background()))
}

func marginModel() brokerage.Model {
	return brokerage.DefaultModel{AccountType: brokerage.AccountTypeMargin, Fee: brokerage.FeeModelZero, Leverage: d("2")} //nolint:exhaustruct
}

func cashModel() brokerage.Model {
	return brokerage.DefaultModel{AccountType: brokerage.AccountTypeCash, Fee: brokerage.FeeModelZero} //nolint:exhaustruct
}

func (suite *HandlerTestSuite) push(events ...types.OrderEvent) {
	suite.sinkMu.Lock()
	sink := suite.sink
	suite.sinkMu.Unlock()

	sink <- brokerage.OrderStatusChanged(events...)
}

// acceptOrders makes PlaceOrder acknowledge every order as submitted.
func (suite *HandlerTestSuite) acceptOrders() {
	suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		submitted := order.Clone()
		submitted.Status = types.OrderStatusSubmitted
		suite.push(types.NewOrderEvent(submitted, suite.clock.Now(), decimal.Zero, ""))

		return true, nil
	}).AnyTimes()
}

func (suite *HandlerTestSuite) wait(done <-chan struct{}) {
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		suite.FailNow("timed out")
	}
}

func (suite *HandlerTestSuite) submit(orderType types.OrderType, symbol types.Symbol, quantity, limit string) *OrderTicket {
	limitPrice := decimal.Zero
	if limit != "" {
		limitPrice = d(limit)
	}

	request := types.NewSubmitOrderRequest(orderType, symbol, d(quantity), decimal.Zero, limitPrice, suite.clock.Now(), "")
	ticket := suite.handler.SubmitOrder(request)
	suite.wait(request.Done())

	return ticket
}

func (suite *HandlerTestSuite) fill(orderID int, price, fee string) types.OrderEvent {
	order, ok := suite.handler.GetOrderByID(orderID)
	suite.Require().True(ok)

	event := types.NewFillEvent(order, suite.clock.Now(), types.OrderStatusFilled, d(price), order.Quantity, d(fee))
	event.FeeCurrency = types.AccountCurrencyDefault
	event.FillPriceCurrency = types.AccountCurrencyDefault

	return event
}

func (suite *HandlerTestSuite) recorded() []types.OrderEvent {
	suite.eventsMu.Lock()
	defer suite.eventsMu.Unlock()

	return append([]types.OrderEvent(nil), suite.events...)
}

func (suite *HandlerTestSuite) TestForexLotRounding() {
	testCases := []struct {
		name     string
		quantity string
		placed   string
	}{
		{name: "rounds a buy down to the lot", quantity: "1600", placed: "1000"},
		{name: "rounds a sell toward zero", quantity: "-1600", placed: "-1000"},
		{name: "below one lot is invalid", quantity: "600", placed: ""},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()
			defer suite.TearDownTest()

			var placed *types.Order

			if tc.placed != "" {
				suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
					placed = order

					return true, nil
				}).Times(1)
			}

			suite.start(marginModel(), false, nil)
			ticket := suite.submit(types.OrderTypeMarket, suite.eurusd, tc.quantity, "")
			response := ticket.SubmitRequest().Response()

			if tc.placed == "" {
				suite.Equal(types.OrderResponseErrorOrderQuantityZero, response.ErrorCode)
				suite.Equal(types.OrderStatusInvalid, ticket.Status())

				order, _ := suite.handler.GetOrderByID(ticket.OrderID())
				suite.Equal(types.OrderStatusInvalid, order.Status)

				events := ticket.OrderEvents()
				suite.Require().Len(events, 1)
				suite.Equal(types.OrderStatusInvalid, events[0].Status)
				suite.Equal(events, suite.recorded())

				return
			}

			suite.True(response.IsSuccess())
			suite.Require().NotNil(placed)
			suite.True(d(tc.placed).Equal(placed.Quantity), placed.Quantity.String())

			order, _ := suite.handler.GetOrderByID(ticket.OrderID())
			suite.True(d(tc.placed).Equal(order.Quantity))
		})
	}
}

func (suite *HandlerTestSuite) TestWarmingUpRejectsWithoutBrokerageCall() {
	suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).Times(0)
	suite.start(marginModel(), false, func() bool { return true })

	ticket := suite.submit(types.OrderTypeMarket, suite.spy, "10", "")

	suite.Equal(types.OrderResponseErrorAlgorithmWarmingUp, ticket.SubmitRequest().Response().ErrorCode)
	suite.Equal(types.OrderStatusInvalid, ticket.Status())

	events := ticket.OrderEvents()
	suite.Require().Len(events, 1)
	suite.True(events[0].FillQuantity.IsZero())
	suite.Equal(types.OrderStatusInvalid, events[0].Status)
	suite.Equal(events, suite.recorded())

	select {
	case <-ticket.Closed():
	default:
		suite.Fail("ticket should be closed")
	}
}

func (suite *HandlerTestSuite) TestPriceRoundedToMinimumVariation() {
	var placed *types.Order

	suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		placed = order

		return true, nil
	})
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "95.125")

	suite.Require().NotNil(placed)
	suite.Equal("95.12", placed.LimitPrice.String())
	suite.Equal("Limit at 95.12", placed.Tag)

	order, ok := suite.handler.GetOrderByID(ticket.OrderID())
	suite.Require().True(ok)
	suite.Equal("Limit at 95.12", order.Tag)
}

func (suite *HandlerTestSuite) TestExplicitTagSurvivesRounding() {
	var placed *types.Order

	suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		placed = order

		return true, nil
	})
	suite.start(marginModel(), false, nil)

	request := types.NewSubmitOrderRequest(types.OrderTypeLimit, suite.spy, d("10"), decimal.Zero, d("95.125"), suite.clock.Now(), "entry")
	suite.handler.SubmitOrder(request)
	suite.wait(request.Done())

	suite.Require().NotNil(placed)
	suite.Equal("entry", placed.Tag)
}

func (suite *HandlerTestSuite) TestInsufficientBuyingPower() {
	suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).Times(0)
	suite.start(cashModel(), false, nil)

	ticket := suite.submit(types.OrderTypeMarket, suite.spy, "2000", "")

	suite.Equal(types.OrderResponseErrorInsufficientBuyingPower, ticket.SubmitRequest().Response().ErrorCode)
	suite.Equal(types.OrderStatusInvalid, ticket.Status())
}

func (suite *HandlerTestSuite) TestUnknownSecurityIsRejected() {
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeMarket, types.NewEquity("QQQ"), "10", "")

	suite.Equal(types.OrderResponseErrorMissingSecurity, ticket.SubmitRequest().Response().ErrorCode)
}

func (suite *HandlerTestSuite) TestBrokerageFailuresAreNotPlaced() {
	testCases := []struct {
		name  string
		place func(*types.Order) (bool, error)
	}{
		{name: "refused", place: func(*types.Order) (bool, error) { return false, nil }},
		{name: "error", place: func(*types.Order) (bool, error) { return false, stderrors.New("connection reset") }},
		{name: "panic", place: func(*types.Order) (bool, error) { panic("boom") }},
	}

	for _, tc := range testCases {
		suite.Run(tc.name, func() {
			suite.SetupTest()
			defer suite.TearDownTest()

			suite.brokerage.EXPECT().PlaceOrder(gomock.Any()).DoAndReturn(tc.place)
			suite.start(marginModel(), false, nil)

			ticket := suite.submit(types.OrderTypeMarket, suite.spy, "10", "")

			suite.Equal(types.OrderResponseErrorBrokerageFailedToSubmit, ticket.SubmitRequest().Response().ErrorCode)
			suite.Equal(types.OrderStatusInvalid, ticket.Status())
			suite.NoError(suite.handler.Fatal())
		})
	}
}

func (suite *HandlerTestSuite) TestFillIsAppliedBeforeEventIsRaised() {
	suite.acceptOrders()

	var holdingAtEvent decimal.Decimal

	suite.start(marginModel(), false, nil)

	onEvent := OnOrderEventCallback(func(event types.OrderEvent) {
		if event.Status == types.OrderStatusFilled {
			spy, _ := suite.manager.Get(suite.spy)
			holdingAtEvent = spy.Holding().Quantity
		}
	})
	suite.handler.opts.Callbacks.OnOrderEvent = &onEvent

	ticket := suite.submit(types.OrderTypeMarket, suite.spy, "10", "")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Equal(types.OrderStatusSubmitted, ticket.Status())

	suite.push(suite.fill(ticket.OrderID(), "100", "1"))
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	suite.Equal(types.OrderStatusFilled, ticket.Status())
	suite.Equal("10", holdingAtEvent.String())
	suite.Equal("98999", suite.portfolio.Cash().String())
	suite.Equal("10", ticket.QuantityFilled().String())
	suite.Equal("100", ticket.AverageFillPrice().String())

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	suite.True(order.LastFillTime.IsSome())
	suite.Empty(suite.handler.GetOpenOrders(nil))

	// a second fill for a closed order is ignored
	suite.push(suite.fill(ticket.OrderID(), "100", "1"))
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	spy, _ := suite.manager.Get(suite.spy)
	suite.Equal("10", spy.Holding().Quantity.String())
}

func (suite *HandlerTestSuite) TestPartialFillIsSticky() {
	suite.acceptOrders()
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "99")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	partial := types.NewFillEvent(order, suite.clock.Now(), types.OrderStatusPartiallyFilled, d("99"), d("4"), decimal.Zero)
	late := types.NewOrderEvent(order, suite.clock.Now(), decimal.Zero, "late ack")
	suite.push(partial, late)
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	suite.Equal(types.OrderStatusPartiallyFilled, ticket.Status())
	suite.Equal("6", suite.handler.OpenOrdersRemainingQuantity(suite.spy).String())
}

func (suite *HandlerTestSuite) TestCancelLifecycle() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().CancelOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		suite.Equal(types.OrderStatusCancelPending, order.Status)

		canceled := order.Clone()
		canceled.Status = types.OrderStatusCanceled
		suite.push(types.NewOrderEvent(canceled, suite.clock.Now(), decimal.Zero, ""))

		return true, nil
	})
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	request := ticket.Cancel("done")
	suite.wait(request.Done())
	suite.True(request.Response().IsSuccess())
	suite.Equal(types.OrderStatusCancelPending, ticket.Status())

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Equal(types.OrderStatusCanceled, ticket.Status())

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	suite.True(order.CanceledTime.IsSome())
	suite.Equal("done", order.Tag)

	var statuses []types.OrderStatus
	for _, event := range ticket.OrderEvents() {
		statuses = append(statuses, event.Status)
	}

	suite.Equal([]types.OrderStatus{types.OrderStatusSubmitted, types.OrderStatusCancelPending, types.OrderStatusCanceled}, statuses)

	// cancelling a closed order is rejected
	again := ticket.Cancel("")
	suite.wait(again.Done())
	suite.Equal(types.OrderResponseErrorInvalidOrderStatus, again.Response().ErrorCode)
}

func (suite *HandlerTestSuite) TestCancelRejectedRestoresStatus() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().CancelOrder(gomock.Any()).Return(false, nil)
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	request := ticket.Cancel("")
	suite.wait(request.Done())

	suite.Equal(types.OrderResponseErrorBrokerageFailedToCancel, request.Response().ErrorCode)

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	suite.Equal(types.OrderStatusSubmitted, order.Status)
}

func (suite *HandlerTestSuite) TestCancelThenFillRace() {
	suite.acceptOrders()
	suite.start(marginModel(), true, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Eventually(func() bool { return ticket.Status() == types.OrderStatusSubmitted }, 2*time.Second, 5*time.Millisecond)

	suite.brokerage.EXPECT().CancelOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		// the fill arrives while the brokerage is still handling the cancel
		suite.push(suite.fill(order.ID, "90", "0"))
		suite.wait(ticket.Closed())

		return false, nil
	})

	request := ticket.Cancel("")
	suite.wait(request.Done())

	suite.Equal(types.OrderResponseErrorInvalidOrderStatus, request.Response().ErrorCode)
	suite.Equal(types.OrderStatusFilled, ticket.Status())

	spy, _ := suite.manager.Get(suite.spy)
	suite.Equal("10", spy.Holding().Quantity.String())

	terminal := 0

	for _, event := range ticket.OrderEvents() {
		if event.Status.IsClosed() {
			terminal++
		}
	}

	suite.Equal(1, terminal)
}

func (suite *HandlerTestSuite) TestUpdateOrder() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().UpdateOrder(gomock.Any()).DoAndReturn(func(order *types.Order) (bool, error) {
		updated := order.Clone()
		updated.Status = types.OrderStatusUpdateSubmitted
		suite.push(types.NewOrderEvent(updated, suite.clock.Now(), decimal.Zero, ""))

		return true, nil
	})
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	//nolint:exhaustruct
	request := ticket.Update(types.UpdateOrderFields{LimitPrice: optional.Some(d("91.005")), Tag: optional.Some("moved")})
	suite.wait(request.Done())
	suite.True(request.Response().IsSuccess())
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	suite.Equal("91", order.LimitPrice.String())
	suite.Equal("moved", order.Tag)
	suite.Equal(types.OrderStatusUpdateSubmitted, order.Status)
	suite.True(order.LastUpdateTime.IsSome())
	suite.Len(ticket.UpdateRequests(), 1)
}

func (suite *HandlerTestSuite) TestUpdateFailureLeavesOrderUnchanged() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().UpdateOrder(gomock.Any()).Return(false, stderrors.New("rejected"))
	suite.start(marginModel(), false, nil)

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	request := ticket.Update(types.UpdateOrderFields{LimitPrice: optional.Some(d("95"))}) //nolint:exhaustruct
	suite.wait(request.Done())

	suite.Equal(types.OrderResponseErrorBrokerageFailedToUpdate, request.Response().ErrorCode)

	order, _ := suite.handler.GetOrderByID(ticket.OrderID())
	suite.Equal("90", order.LimitPrice.String())
	suite.Equal(types.OrderStatusSubmitted, order.Status)
	suite.True(order.LastUpdateTime.IsNone())
}

func (suite *HandlerTestSuite) TestUpdateRejections() {
	suite.acceptOrders()
	suite.start(brokerage.DefaultModel{AccountType: brokerage.AccountTypeMargin, UpdatesRequireLive: true}, false, nil) //nolint:exhaustruct

	ticket := suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	request := ticket.Update(types.UpdateOrderFields{LimitPrice: optional.Some(d("95"))}) //nolint:exhaustruct
	suite.wait(request.Done())
	suite.Equal(types.OrderResponseErrorBrokerageModelRefusedToUpdate, request.Response().ErrorCode)

	missing := types.NewUpdateOrderRequest(42, suite.clock.Now(), types.UpdateOrderFields{}) //nolint:exhaustruct
	suite.handler.UpdateOrder(missing)
	suite.wait(missing.Done())
	suite.Equal(types.OrderResponseErrorUnableToFindOrder, missing.Response().ErrorCode)
}

func (suite *HandlerTestSuite) TestCancelOpenOrdersOfSymbol() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().CancelOrder(gomock.Any()).Return(true, nil).Times(2)
	suite.start(marginModel(), false, nil)

	suite.submit(types.OrderTypeLimit, suite.spy, "10", "90")
	suite.submit(types.OrderTypeLimit, suite.spy, "5", "91")
	suite.submit(types.OrderTypeLimit, suite.eurusd, "1000", "1.05")
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	requests := suite.handler.CancelOpenOrders(suite.spy, "delisted")
	suite.Len(requests, 2)

	for _, request := range requests {
		suite.wait(request.Done())
	}

	pending := suite.handler.GetOpenOrders(func(o *types.Order) bool { return o.Status == types.OrderStatusCancelPending })
	suite.Len(pending, 2)
	suite.Equal(3, suite.handler.OrdersCount())
}

func (suite *HandlerTestSuite) TestRequestsAfterExitAreCanceled() {
	suite.start(marginModel(), false, nil)
	suite.handler.Exit(time.Second)

	request := types.NewSubmitOrderRequest(types.OrderTypeMarket, suite.spy, d("1"), decimal.Zero, decimal.Zero, suite.clock.Now(), "")
	ticket := suite.handler.SubmitOrder(request)

	suite.wait(request.Done())
	suite.Equal(types.OrderResponseErrorRequestCanceled, request.Response().ErrorCode)
	suite.Equal(types.OrderStatusInvalid, ticket.Status())

	suite.handler = nil
}

func (suite *HandlerTestSuite) TestExitWithoutStartLeavesBrokerageAlone() {
	ctrl := gomock.NewController(suite.T())
	broker := mocks.NewMockBrokerage(ctrl)
	broker.EXPECT().Disconnect().Times(0)

	handler := NewHandler(Options{
		Brokerage:       broker,
		Model:           marginModel(),
		Portfolio:       suite.portfolio,
		Clock:           suite.clock,
		Calendar:        nil,
		Live:            false,
		IsWarmingUp:     nil,
		QueueSize:       0,
		EventBufferSize: 0,
		BusyTimeout:     time.Second,
		Callbacks:       Callbacks{OnOrderEvent: nil, OnBrokerageMessage: nil, OnAccountChanged: nil},
		Logger:          logger.NewNopLogger(),
	})

	handler.Exit(time.Second)
	ctrl.Finish()
}

func (suite *HandlerTestSuite) TestBacktestDrainPullsHeldBrokerageEvents() {
	cashBook := securities.NewCashBook(types.AccountCurrencyDefault)
	cashBook.Set(types.AccountCurrencyDefault, d("100000"))

	model := marginModel()
	backtesting := brokerage.NewBacktestingBrokerage(suite.manager, cashBook, model, nil, logger.NewNopLogger())

	suite.handler = NewHandler(Options{
		Brokerage:       backtesting,
		Model:           model,
		Portfolio:       suite.portfolio,
		Clock:           suite.clock,
		Calendar:        nil,
		Live:            false,
		IsWarmingUp:     nil,
		QueueSize:       0,
		EventBufferSize: 1,
		BusyTimeout:     2 * time.Second,
		Callbacks:       Callbacks{OnOrderEvent: nil, OnBrokerageMessage: nil, OnAccountChanged: nil},
		Logger:          logger.NewNopLogger(),
	})
	suite.Require().NoError(suite.handler.Start(context.Background()))

	tickets := make([]*OrderTicket, 0, 3)
	for range 3 {
		tickets = append(tickets, suite.submit(types.OrderTypeMarket, suite.spy, "10", ""))
	}

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	backtesting.Scan(suite.clock.Now())
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	for _, ticket := range tickets {
		suite.Equal(types.OrderStatusFilled, ticket.Status())
	}

	spy, _ := suite.manager.Get(suite.spy)
	suite.True(d("30").Equal(spy.Holding().Quantity))
}

func (suite *HandlerTestSuite) TestAccountChangedUpdatesCash() {
	suite.start(marginModel(), false, nil)

	suite.sinkMu.Lock()
	suite.sink <- brokerage.Event{ //nolint:exhaustruct
		Kind: brokerage.EventAccountChanged,
		Cash: types.NewCashAmount("USD", d("1234")),
	}
	suite.sinkMu.Unlock()

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Equal("1234", suite.portfolio.Cash().String())
}

func (suite *HandlerTestSuite) TestCashSyncSingleFlight() {
	suite.brokerage.EXPECT().GetCashBalance().Return([]types.CashAmount{types.NewCashAmount("USD", d("5000"))}, nil).Times(2)
	// 07:00 New York is too early
	suite.clock = utils.NewManualClock(time.Date(2020, 1, 2, 12, 0, 0, 0, time.UTC))
	suite.start(marginModel(), true, nil)

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Equal("100000", suite.portfolio.Cash().String())

	suite.clock.Set(time.Date(2020, 1, 2, 12, 50, 0, 0, time.UTC))
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.Equal("5000", suite.portfolio.Cash().String())

	// verification passes, same day is not synced again
	suite.clock.Advance(cashSyncVerifyDelay)
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	suite.clock.Set(time.Date(2020, 1, 3, 12, 50, 0, 0, time.UTC))
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.clock.Advance(cashSyncVerifyDelay)
}

func (suite *HandlerTestSuite) TestCashSyncDistrustedWhenFillLands() {
	suite.acceptOrders()
	suite.brokerage.EXPECT().GetCashBalance().Return([]types.CashAmount{types.NewCashAmount("USD", d("5000"))}, nil).Times(2)
	suite.clock = utils.NewManualClock(time.Date(2020, 1, 2, 12, 50, 0, 0, time.UTC))
	suite.start(marginModel(), true, nil)

	ticket := suite.submit(types.OrderTypeMarket, suite.spy, "10", "")
	suite.Eventually(func() bool { return ticket.Status() == types.OrderStatusSubmitted }, 2*time.Second, 5*time.Millisecond)

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())

	suite.handler.HandleOrderEvents([]types.OrderEvent{suite.fill(ticket.OrderID(), "100", "0")})
	suite.clock.Advance(cashSyncVerifyDelay)

	// the sync was distrusted and runs again once fills are quiet
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	suite.clock.Advance(cashSyncVerifyDelay)
	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
}

func (suite *HandlerTestSuite) TestCashSyncFailuresAreFatal() {
	suite.brokerage.EXPECT().GetCashBalance().Return(nil, stderrors.New("timeout")).Times(maxCashSyncFailures)
	suite.clock = utils.NewManualClock(time.Date(2020, 1, 2, 12, 50, 0, 0, time.UTC))
	suite.start(marginModel(), true, nil)

	for i := 1; i < maxCashSyncFailures; i++ {
		suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
	}

	err := suite.handler.ProcessSynchronousEvents()
	suite.Require().Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeCashSyncFailed))

	// no further attempts once exhausted
	suite.Error(suite.handler.ProcessSynchronousEvents())
}

func (suite *HandlerTestSuite) TestCashSyncSkipsHolidays() {
	suite.brokerage.EXPECT().GetCashBalance().Times(0)
	suite.clock = utils.NewManualClock(time.Date(2020, 1, 1, 12, 50, 0, 0, time.UTC))
	suite.start(marginModel(), true, nil)

	suite.Require().NoError(suite.handler.ProcessSynchronousEvents())
}
