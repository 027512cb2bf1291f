// Package transactions runs the order lifecycle: it validates order requests,
// forwards them to the brokerage and applies the brokerage's events to the
// order book and the portfolio.
package transactions

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-engine/internal/brokerage"
	"github.com/rxtech-lab/argo-engine/internal/datafeed"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/internal/utils"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultQueueSize       = 10000
	defaultEventBufferSize = 10000
	defaultBusyTimeout     = time.Second
)

// OnOrderEventCallback receives every order event after it was applied. It
// runs under the handler's event lock and must not block.
type OnOrderEventCallback func(event types.OrderEvent)

// OnBrokerageMessageCallback receives free-form brokerage messages.
type OnBrokerageMessageCallback func(message brokerage.Message)

// OnAccountChangedCallback receives cash balances pushed by the brokerage.
type OnAccountChangedCallback func(cash types.CashAmount)

type Callbacks struct {
	OnOrderEvent       *OnOrderEventCallback
	OnBrokerageMessage *OnBrokerageMessageCallback
	OnAccountChanged   *OnAccountChangedCallback
}

// Options configures a Handler.
type Options struct {
	Brokerage brokerage.Brokerage
	Model     brokerage.Model
	Portfolio *securities.Portfolio
	Clock     utils.Clock
	// Calendar decides on which days the cash book is synced. Defaults to
	// the US equity calendar.
	Calendar *datafeed.TradingCalendar
	// Live selects live mode: brokerage events are consumed by their own
	// goroutine and the cash book is synced daily.
	Live bool
	// IsWarmingUp rejects every submission while it reports true.
	IsWarmingUp     func() bool
	QueueSize       int
	EventBufferSize int
	// BusyTimeout bounds how long ProcessSynchronousEvents waits for queued
	// requests.
	BusyTimeout time.Duration
	Callbacks   Callbacks
	Logger      *logger.Logger
}

// Handler processes order requests on a dedicated goroutine and applies
// brokerage events under a single lock.
type Handler struct {
	opts      Options
	brokerage brokerage.Brokerage
	model     brokerage.Model
	portfolio *securities.Portfolio
	clock     utils.Clock
	calendar  *datafeed.TradingCalendar
	logger    *logger.Logger

	book        *orderBook
	nextOrderID atomic.Int64
	requests    chan types.OrderRequest
	events      chan brokerage.Event
	busy        *busyTracker
	started     atomic.Bool
	stopped     atomic.Bool

	// eventMu guards order status transitions and everything below it.
	eventMu        sync.Mutex
	pendingCancels map[int]types.OrderStatus
	pendingUpdates map[int]bool
	lastFill       time.Time
	fills          int

	cash cashSync

	fatalMu sync.Mutex
	fatal   error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHandler(opts Options) *Handler {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}

	if opts.EventBufferSize <= 0 {
		opts.EventBufferSize = defaultEventBufferSize
	}

	if opts.BusyTimeout <= 0 {
		opts.BusyTimeout = defaultBusyTimeout
	}

	if opts.Clock == nil {
		opts.Clock = utils.RealClock{}
	}

	if opts.Calendar == nil {
		opts.Calendar = datafeed.NewTradingCalendar(types.MarketUSA)
	}

	//nolint:exhaustruct
	return &Handler{
		opts:           opts,
		brokerage:      opts.Brokerage,
		model:          opts.Model,
		portfolio:      opts.Portfolio,
		clock:          opts.Clock,
		calendar:       opts.Calendar,
		logger:         opts.Logger.Named("transactions"),
		book:           newOrderBook(),
		requests:       make(chan types.OrderRequest, opts.QueueSize),
		events:         make(chan brokerage.Event, opts.EventBufferSize),
		busy:           newBusyTracker(),
		pendingCancels: make(map[int]types.OrderStatus),
		pendingUpdates: make(map[int]bool),
	}
}

// Start connects the brokerage and starts the processing goroutines.
func (h *Handler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := h.brokerage.Connect(ctx, h.events); err != nil {
		cancel()

		return errors.Wrap(errors.ErrCodeBrokerageDisconnected, "failed to connect brokerage", err)
	}

	h.cancel = cancel
	h.started.Store(true)

	h.wg.Go(func() { h.processRequests(ctx) })

	if h.opts.Live {
		h.wg.Go(func() { h.processEvents(ctx) })
	}

	h.logger.Info("Transaction handler started",
		zap.String("brokerage", h.brokerage.Name()),
		zap.Bool("live", h.opts.Live),
	)

	return nil
}

// Exit stops the processing goroutines and waits at most timeout for them.
func (h *Handler) Exit(timeout time.Duration) {
	h.stopped.Store(true)

	if h.cancel != nil {
		h.cancel()
	}

	done := make(chan struct{})

	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		h.logger.Error("Timed out waiting for the transaction handler to stop", zap.Duration("timeout", timeout))
	}

	if !h.started.Load() {
		return
	}

	if err := h.brokerage.Disconnect(); err != nil {
		h.logger.Warn("Failed to disconnect brokerage", zap.Error(err))
	}
}

// Fatal returns the error that ended the run, if any.
func (h *Handler) Fatal() error {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()

	return h.fatal
}

func (h *Handler) setFatal(err error) {
	h.fatalMu.Lock()
	defer h.fatalMu.Unlock()

	if h.fatal == nil {
		h.fatal = err
	}

	h.logger.Error("Transaction handler failed", zap.Error(err))
}

// ProcessSynchronousEvents waits for queued requests to be processed. In
// backtests it then applies the pending brokerage events; in live mode it
// runs the daily cash sync. A non-nil error is fatal.
func (h *Handler) ProcessSynchronousEvents() error {
	if !h.busy.wait(h.opts.BusyTimeout) {
		h.logger.Error("Timed out waiting for order requests to be processed",
			zap.Duration("timeout", h.opts.BusyTimeout),
		)
	}

	if h.opts.Live {
		h.maybeSyncCash()
	} else {
		h.drainEvents()
	}

	return h.Fatal()
}

// SubmitOrder assigns an id to request, records the order and queues it.
func (h *Handler) SubmitOrder(request *types.SubmitOrderRequest) *OrderTicket {
	id := int(h.nextOrderID.Add(1))
	request.AssignOrderID(id)

	order := types.NewOrder(request)
	if order.Tag == "" {
		order.Tag = order.DefaultTag()
	}

	if security, ok := h.portfolio.Securities.Get(order.Symbol); ok {
		order.PriceCurrency = security.Properties.QuoteCurrency
	}

	ticket := newOrderTicket(h, request)
	h.book.add(order, ticket)

	h.enqueue(request)

	return ticket
}

// UpdateOrder queues an update of an open order.
func (h *Handler) UpdateOrder(request *types.UpdateOrderRequest) {
	ticket, ok := h.book.ticket(request.OrderID)
	if !ok {
		h.respondError(request, types.OrderResponseErrorUnableToFindOrder, fmt.Sprintf("unable to find order %d", request.OrderID))

		return
	}

	if _, open := h.book.openOrder(request.OrderID); !open {
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d is closed", request.OrderID))

		return
	}

	ticket.addUpdate(request)
	h.enqueue(request)
}

// CancelOrder queues a cancellation of an open order.
func (h *Handler) CancelOrder(request *types.CancelOrderRequest) {
	ticket, ok := h.book.ticket(request.OrderID)
	if !ok {
		h.respondError(request, types.OrderResponseErrorUnableToFindOrder, fmt.Sprintf("unable to find order %d", request.OrderID))

		return
	}

	ticket.setCancel(request)
	h.enqueue(request)
}

// CancelOpenOrders cancels every open order of symbol.
func (h *Handler) CancelOpenOrders(symbol types.Symbol, tag string) []*types.CancelOrderRequest {
	return h.cancelWhere(func(o *types.Order) bool { return o.Symbol == symbol }, tag)
}

// CancelPendingOrders cancels every open order.
func (h *Handler) CancelPendingOrders(tag string) []*types.CancelOrderRequest {
	return h.cancelWhere(nil, tag)
}

func (h *Handler) cancelWhere(filter func(*types.Order) bool, tag string) []*types.CancelOrderRequest {
	orders := h.book.list(false, func(o *types.Order) bool {
		return o.Status != types.OrderStatusCancelPending && (filter == nil || filter(o))
	})

	requests := make([]*types.CancelOrderRequest, 0, len(orders))

	for _, order := range orders {
		request := types.NewCancelOrderRequest(order.ID, h.clock.Now(), tag)
		h.CancelOrder(request)
		requests = append(requests, request)
	}

	return requests
}

// GetOrderByID returns a copy of the order.
func (h *Handler) GetOrderByID(id int) (*types.Order, bool) {
	return h.book.get(id)
}

func (h *Handler) GetOrderTicket(id int) (*OrderTicket, bool) {
	return h.book.ticket(id)
}

// GetOpenOrders returns copies of the open orders accepted by filter.
func (h *Handler) GetOpenOrders(filter func(*types.Order) bool) []*types.Order {
	return h.book.list(false, filter)
}

// GetOrders returns copies of every order accepted by filter.
func (h *Handler) GetOrders(filter func(*types.Order) bool) []*types.Order {
	return h.book.list(true, filter)
}

func (h *Handler) OrdersCount() int {
	return h.book.count()
}

// OpenOrdersRemainingQuantity sums the unfilled quantity of the open orders of symbol.
func (h *Handler) OpenOrdersRemainingQuantity(symbol types.Symbol) decimal.Decimal {
	total := decimal.Zero

	for _, order := range h.book.list(false, func(o *types.Order) bool { return o.Symbol == symbol }) {
		filled := decimal.Zero
		if ticket, ok := h.book.ticket(order.ID); ok {
			filled = ticket.QuantityFilled()
		}

		total = total.Add(order.Quantity.Sub(filled))
	}

	return total
}

func (h *Handler) enqueue(request types.OrderRequest) {
	if h.stopped.Load() {
		h.rejectRequest(request, types.OrderResponseErrorRequestCanceled, "transaction handler is stopped")

		return
	}

	h.busy.add()

	select {
	case h.requests <- request:
	default:
		h.busy.done()
		h.logger.Error("Order request queue is full", zap.Int("order_id", request.Base().OrderID))
		h.rejectRequest(request, types.OrderResponseErrorProcessingError,
			errors.New(errors.ErrCodeRequestQueueFull, "order request queue is full").Error())
	}
}

// rejectRequest answers a request that never reached processing. Submitted
// orders are invalidated.
func (h *Handler) rejectRequest(request types.OrderRequest, code types.OrderResponseErrorCode, message string) {
	if submit, ok := request.(*types.SubmitOrderRequest); ok {
		h.invalidate(submit, code, message)

		return
	}

	h.respondError(request, code, message)
}

func (h *Handler) respondError(request types.OrderRequest, code types.OrderResponseErrorCode, message string) {
	base := request.Base()
	base.SetResponse(types.ErrorResponse(base.OrderID, code, message), types.OrderRequestStatusError)
}

func (h *Handler) processRequests(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.drainRequests()

			return
		case request := <-h.requests:
			h.handleRequest(request)
		}
	}
}

func (h *Handler) drainRequests() {
	for {
		select {
		case request := <-h.requests:
			h.rejectRequest(request, types.OrderResponseErrorRequestCanceled, "transaction handler is stopped")
			h.busy.done()
		default:
			return
		}
	}
}

func (h *Handler) handleRequest(request types.OrderRequest) {
	defer h.busy.done()

	defer func() {
		if r := recover(); r != nil {
			h.setFatal(errors.Newf(errors.ErrCodeEngineRuntime, "order request %d panicked: %v", request.Base().OrderID, r))
			h.respondError(request, types.OrderResponseErrorProcessingError, fmt.Sprintf("%v", r))
		}
	}()

	switch r := request.(type) {
	case *types.SubmitOrderRequest:
		h.handleSubmit(r)
	case *types.UpdateOrderRequest:
		h.handleUpdate(r)
	case *types.CancelOrderRequest:
		h.handleCancel(r)
	}
}

func (h *Handler) handleSubmit(request *types.SubmitOrderRequest) {
	order, ok := h.book.openOrder(request.OrderID)
	if !ok {
		h.respondError(request, types.OrderResponseErrorUnableToFindOrder, fmt.Sprintf("unable to find order %d", request.OrderID))

		return
	}

	if h.opts.IsWarmingUp != nil && h.opts.IsWarmingUp() {
		h.invalidate(request, types.OrderResponseErrorAlgorithmWarmingUp, "orders cannot be submitted while the algorithm is warming up")

		return
	}

	if err := order.Validate(); err != nil {
		h.invalidate(request, types.OrderResponseErrorInvalidRequest, err.Error())

		return
	}

	security, ok := h.portfolio.Securities.Get(order.Symbol)
	if !ok {
		h.invalidate(request, types.OrderResponseErrorMissingSecurity, fmt.Sprintf("%s is not in the securities list", order.Symbol))

		return
	}

	if !security.IsTradable() {
		h.invalidate(request, types.OrderResponseErrorNonTradableSecurity, fmt.Sprintf("%s is not tradable", order.Symbol))

		return
	}

	lot := security.Properties.LotSize

	quantity := utils.RoundQuantityToLot(order.Quantity, lot)
	if quantity.IsZero() {
		h.invalidate(request, types.OrderResponseErrorOrderQuantityZero,
			fmt.Sprintf("order quantity %s is less than the lot size %s", order.Quantity, lot))

		return
	}

	order.Quantity = quantity
	h.roundPrices(order, security)

	// the default tag quotes prices, so it follows the rounding
	if request.Tag == "" {
		order.Tag = order.DefaultTag()
	}

	h.book.mutate(order.ID, func(o *types.Order) {
		o.Quantity = order.Quantity
		o.LimitPrice = order.LimitPrice
		o.StopPrice = order.StopPrice
		o.PriceCurrency = security.Properties.QuoteCurrency
		o.Tag = order.Tag
	})

	order.PriceCurrency = security.Properties.QuoteCurrency

	if ok, reason := h.model.BuyingPowerModel(security).HasSufficientBuyingPower(h.portfolio, security, order); !ok {
		h.invalidate(request, types.OrderResponseErrorInsufficientBuyingPower, reason)

		return
	}

	if ok, reason := h.model.CanSubmitOrder(security, order); !ok {
		h.invalidate(request, types.OrderResponseErrorBrokerageModelRefusedToSubmit, reason)

		return
	}

	placed, err := h.callBrokerage("place", func() (bool, error) { return h.brokerage.PlaceOrder(order) })
	if err != nil || !placed {
		message := fmt.Sprintf("brokerage failed to place order %d", order.ID)
		if err != nil {
			message = fmt.Sprintf("%s: %s", message, err)
		}

		h.invalidate(request, types.OrderResponseErrorBrokerageFailedToSubmit, message)

		return
	}

	request.SetResponse(types.SuccessResponse(order.ID), types.OrderRequestStatusProcessed)
}

func (h *Handler) handleUpdate(request *types.UpdateOrderRequest) {
	order, ok := h.book.openOrder(request.OrderID)
	if !ok {
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d is closed", request.OrderID))

		return
	}

	if order.Status == types.OrderStatusCancelPending {
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d is pending cancellation", order.ID))

		return
	}

	security, ok := h.portfolio.Securities.Get(order.Symbol)
	if !ok {
		h.respondError(request, types.OrderResponseErrorMissingSecurity, fmt.Sprintf("%s is not in the securities list", order.Symbol))

		return
	}

	if ok, reason := h.model.CanUpdateOrder(security, order, request, h.opts.Live); !ok {
		h.respondError(request, types.OrderResponseErrorBrokerageModelRefusedToUpdate, reason)

		return
	}

	updated := order.Clone()
	updated.ApplyUpdate(request)

	updated.Quantity = utils.RoundQuantityToLot(updated.Quantity, security.Properties.LotSize)
	if updated.Quantity.IsZero() {
		h.respondError(request, types.OrderResponseErrorOrderQuantityZero,
			fmt.Sprintf("updated quantity of order %d is less than the lot size %s", order.ID, security.Properties.LotSize))

		return
	}

	h.roundPrices(updated, security)

	h.eventMu.Lock()
	h.pendingUpdates[order.ID] = true
	h.eventMu.Unlock()

	accepted, err := h.callBrokerage("update", func() (bool, error) { return h.brokerage.UpdateOrder(updated) })

	h.eventMu.Lock()

	if err != nil || !accepted {
		delete(h.pendingUpdates, order.ID)
		h.eventMu.Unlock()

		message := fmt.Sprintf("brokerage failed to update order %d", order.ID)
		if err != nil {
			message = fmt.Sprintf("%s: %s", message, err)
		}

		h.respondError(request, types.OrderResponseErrorBrokerageFailedToUpdate, message)

		return
	}

	stillOpen := h.book.mutate(order.ID, func(o *types.Order) {
		o.Quantity = updated.Quantity
		o.LimitPrice = updated.LimitPrice
		o.StopPrice = updated.StopPrice
		o.Tag = updated.Tag
	})
	h.eventMu.Unlock()

	if !stillOpen {
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d closed while it was updated", order.ID))

		return
	}

	request.SetResponse(types.SuccessResponse(order.ID), types.OrderRequestStatusProcessed)
}

func (h *Handler) handleCancel(request *types.CancelOrderRequest) {
	h.eventMu.Lock()

	order, ok := h.book.openOrder(request.OrderID)
	if !ok {
		h.eventMu.Unlock()
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d is already closed", request.OrderID))

		return
	}

	if order.Status == types.OrderStatusCancelPending {
		h.eventMu.Unlock()
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d is already pending cancellation", order.ID))

		return
	}

	h.pendingCancels[order.ID] = order.Status

	var (
		event    types.OrderEvent
		snapshot *types.Order
	)

	h.book.mutate(order.ID, func(o *types.Order) {
		o.Status = types.OrderStatusCancelPending
		if request.Tag != "" {
			o.Tag = request.Tag
		}

		event = types.NewOrderEvent(o, h.clock.Now(), decimal.Zero, "cancel requested")
		event.ID = o.NextEventID()
		snapshot = o.Clone()
	})
	h.raise(event, types.OrderStatusCancelPending)
	h.eventMu.Unlock()

	canceled, err := h.callBrokerage("cancel", func() (bool, error) { return h.brokerage.CancelOrder(snapshot) })
	if err == nil && canceled {
		request.SetResponse(types.SuccessResponse(order.ID), types.OrderRequestStatusProcessed)

		return
	}

	h.eventMu.Lock()

	previous, pending := h.pendingCancels[order.ID]
	delete(h.pendingCancels, order.ID)

	stillOpen := h.book.mutate(order.ID, func(o *types.Order) {
		if pending && o.Status == types.OrderStatusCancelPending {
			o.Status = previous
		}
	})
	h.eventMu.Unlock()

	if !stillOpen {
		h.respondError(request, types.OrderResponseErrorInvalidOrderStatus, fmt.Sprintf("order %d closed before it could be canceled", order.ID))

		return
	}

	message := fmt.Sprintf("brokerage failed to cancel order %d", order.ID)
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, err)
	}

	h.logger.Warn("Cancel rejected, order status restored",
		zap.Int("order_id", order.ID),
		zap.String("status", string(previous)),
	)
	h.respondError(request, types.OrderResponseErrorBrokerageFailedToCancel, message)
}

// invalidate closes a submitted order as Invalid and raises the zero-fill
// event.
func (h *Handler) invalidate(request *types.SubmitOrderRequest, code types.OrderResponseErrorCode, message string) {
	h.logger.Warn("Order rejected",
		zap.Int("order_id", request.OrderID),
		zap.String("symbol", request.Symbol.String()),
		zap.String("code", string(code)),
		zap.String("message", message),
	)

	h.eventMu.Lock()

	var event types.OrderEvent

	if h.book.mutate(request.OrderID, func(o *types.Order) {
		o.Status = types.OrderStatusInvalid
		event = types.NewOrderEvent(o, h.clock.Now(), decimal.Zero, message)
		event.ID = o.NextEventID()
	}) {
		h.raise(event, types.OrderStatusInvalid)
	}

	h.eventMu.Unlock()

	h.respondError(request, code, message)
}

func (h *Handler) roundPrices(order *types.Order, security *securities.Security) {
	increment := security.Properties.MinimumPriceVariation

	round := func(field string, price decimal.Decimal) decimal.Decimal {
		rounded := utils.RoundPriceToIncrement(price, increment)
		if !rounded.Equal(price) {
			h.logger.Warn("Order price rounded to the minimum price variation",
				zap.Int("order_id", order.ID),
				zap.String("field", field),
				zap.String("price", price.String()),
				zap.String("rounded", rounded.String()),
			)
		}

		return rounded
	}

	if order.HasLimitPrice() {
		order.LimitPrice = round("limit_price", order.LimitPrice)
	}

	if order.HasStopPrice() {
		order.StopPrice = round("stop_price", order.StopPrice)
	}
}

// callBrokerage runs a brokerage order call, turning a panic into an error.
func (h *Handler) callBrokerage(action string, call func() (bool, error)) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = errors.Newf(errors.ErrCodeBrokerageFailed, "brokerage %s panicked: %v", action, r)
		}
	}()

	ok, err = call()
	if err != nil {
		h.logger.Warn("Brokerage call failed", zap.String("action", action), zap.Error(err))
	}

	return ok, err
}

func (h *Handler) processEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.events:
			h.handleBrokerageEvent(event)
			h.flushBrokerage()
		}
	}
}

func (h *Handler) drainEvents() {
	for {
		select {
		case event := <-h.events:
			h.handleBrokerageEvent(event)
		default:
			if h.flushBrokerage() == 0 {
				return
			}
		}
	}
}

// flushBrokerage pulls events the brokerage held back while the buffer was
// full.
func (h *Handler) flushBrokerage() int {
	if flusher, ok := h.brokerage.(brokerage.Flusher); ok {
		return flusher.Flush()
	}

	return 0
}

func (h *Handler) handleBrokerageEvent(event brokerage.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.setFatal(errors.Newf(errors.ErrCodeEngineRuntime, "brokerage event %s panicked: %v", event.Kind, r))
		}
	}()

	switch event.Kind {
	case brokerage.EventOrderStatusChanged:
		h.HandleOrderEvents(event.OrderEvents)
	case brokerage.EventOptionPositionAssigned:
		for i := range event.OrderEvents {
			event.OrderEvents[i].IsAssignment = true
		}

		h.HandleOrderEvents(event.OrderEvents)
	case brokerage.EventAccountChanged:
		h.portfolio.CashBook.Set(event.Cash.Currency, event.Cash.Amount)

		if cb := h.opts.Callbacks.OnAccountChanged; cb != nil {
			(*cb)(event.Cash)
		}
	case brokerage.EventMessage:
		h.logBrokerageMessage(event.Message)

		if cb := h.opts.Callbacks.OnBrokerageMessage; cb != nil {
			(*cb)(event.Message)
		}
	default:
		h.logger.Warn("Unknown brokerage event", zap.String("kind", string(event.Kind)))
	}
}

func (h *Handler) logBrokerageMessage(message brokerage.Message) {
	fields := []zap.Field{zap.String("code", message.Code), zap.String("message", message.Text)}

	switch message.Level {
	case brokerage.MessageError, brokerage.MessageDisconnect:
		h.logger.Error("Brokerage message", fields...)
	case brokerage.MessageWarning:
		h.logger.Warn("Brokerage message", fields...)
	default:
		h.logger.Info("Brokerage message", fields...)
	}
}

// HandleOrderEvents applies brokerage order events to the order book and
// the portfolio and raises them.
func (h *Handler) HandleOrderEvents(events []types.OrderEvent) {
	h.eventMu.Lock()
	defer h.eventMu.Unlock()

	for _, event := range events {
		h.applyOrderEvent(event)
	}
}

func (h *Handler) applyOrderEvent(event types.OrderEvent) {
	if event.UTCTime.IsZero() {
		event.UTCTime = h.clock.Now()
	}

	var status types.OrderStatus

	found := h.book.mutate(event.OrderID, func(o *types.Order) {
		h.transition(o, event)

		event.ID = o.NextEventID()
		event.Symbol = o.Symbol
		event.Direction = o.Direction()
		event.Quantity = o.Quantity
		event.LimitPrice = o.LimitPrice
		event.StopPrice = o.StopPrice
		status = o.Status
	})
	if !found {
		h.logger.Debug("Ignoring event for a closed or unknown order",
			zap.Int("order_id", event.OrderID),
			zap.String("status", string(event.Status)),
		)

		return
	}

	if event.Status.IsFill() {
		h.lastFill = h.clock.Now()
		h.fills++

		if err := h.applyFill(event); err != nil {
			h.logger.Error("Failed to apply fill to the portfolio",
				zap.Int("order_id", event.OrderID),
				zap.Error(err),
			)
		}
	}

	h.raise(event, status)
}

// applyFill hands the fill to the portfolio. A panic is returned as an error
// so the event is still raised.
func (h *Handler) applyFill(event types.OrderEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeFillFailed, "portfolio fill panicked: %v", r)
		}
	}()

	return h.portfolio.ProcessFill(event)
}

// transition moves o to the status carried by event. PartiallyFilled is
// sticky against acknowledgements and CancelPending only yields to a
// terminal status.
func (h *Handler) transition(o *types.Order, event types.OrderEvent) {
	switch event.Status {
	case types.OrderStatusFilled, types.OrderStatusPartiallyFilled:
		o.LastFillTime = optional.Some(event.UTCTime)
		o.Price = event.FillPrice

		if event.FillPriceCurrency != "" {
			o.PriceCurrency = event.FillPriceCurrency
		}

		if o.Status == types.OrderStatusCancelPending && event.Status == types.OrderStatusPartiallyFilled {
			h.pendingCancels[o.ID] = types.OrderStatusPartiallyFilled
		} else {
			o.Status = event.Status
		}
	case types.OrderStatusCanceled:
		o.Status = types.OrderStatusCanceled
		o.CanceledTime = optional.Some(event.UTCTime)
	case types.OrderStatusSubmitted, types.OrderStatusUpdateSubmitted:
		if h.pendingUpdates[o.ID] {
			o.LastUpdateTime = optional.Some(event.UTCTime)
			delete(h.pendingUpdates, o.ID)
		}

		switch o.Status {
		case types.OrderStatusNew, types.OrderStatusSubmitted, types.OrderStatusUpdateSubmitted:
			o.Status = event.Status
		}
	case types.OrderStatusCancelPending:
		if o.Status != types.OrderStatusCancelPending {
			h.pendingCancels[o.ID] = o.Status
			o.Status = types.OrderStatusCancelPending
		}
	case types.OrderStatusInvalid:
		o.Status = types.OrderStatusInvalid
	}

	if o.Status.IsClosed() {
		delete(h.pendingCancels, o.ID)
		delete(h.pendingUpdates, o.ID)
	}
}

// raise hands an applied event to the ticket and the callback. Callers hold
// eventMu.
func (h *Handler) raise(event types.OrderEvent, status types.OrderStatus) {
	if ticket, ok := h.book.ticket(event.OrderID); ok {
		ticket.apply(event, status)
	}

	h.logger.Debug("Order event", zap.String("event", event.String()))

	if cb := h.opts.Callbacks.OnOrderEvent; cb != nil {
		(*cb)(event)
	}
}
