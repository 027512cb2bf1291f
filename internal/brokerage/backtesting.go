package brokerage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-engine/internal/logger"
	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BacktestingBrokerage simulates a broker against the latest security prices.
// Open orders are matched on Scan.
type BacktestingBrokerage struct {
	securities *securities.Manager
	cashBook   *securities.CashBook
	model      Model
	fill       FillModel
	logger     *logger.Logger

	mu        sync.Mutex
	sink      chan<- Event
	backlog   []Event
	connected bool
	open      map[int]*types.Order
	now       time.Time
}

var _ Brokerage = (*BacktestingBrokerage)(nil)

func NewBacktestingBrokerage(manager *securities.Manager, cashBook *securities.CashBook, model Model, fill FillModel, log *logger.Logger) *BacktestingBrokerage {
	if fill == nil {
		fill = ImmediateFillModel{}
	}

	return &BacktestingBrokerage{
		securities: manager,
		cashBook:   cashBook,
		model:      model,
		fill:       fill,
		logger:     log.Named("backtesting_brokerage"),
		mu:         sync.Mutex{},
		sink:       nil,
		backlog:    nil,
		connected:  false,
		open:       make(map[int]*types.Order),
		now:        time.Time{},
	}
}

func (b *BacktestingBrokerage) Name() string {
	return "backtesting"
}

func (b *BacktestingBrokerage) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.connected
}

func (b *BacktestingBrokerage) Connect(ctx context.Context, sink chan<- Event) error {
	b.mu.Lock()
	b.sink = sink
	b.connected = true
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.Disconnect() //nolint:errcheck
	})

	return nil
}

func (b *BacktestingBrokerage) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connected = false

	return nil
}

// PlaceOrder accepts the order and acknowledges it as submitted.
func (b *BacktestingBrokerage) PlaceOrder(order *types.Order) (bool, error) {
	b.mu.Lock()

	if !b.connected {
		b.mu.Unlock()

		return false, errors.New(errors.ErrCodeBrokerageDisconnected, "brokerage is not connected")
	}

	stored := order.Clone()
	stored.BrokerIDs = append(stored.BrokerIDs, uuid.New().String())
	stored.Status = types.OrderStatusSubmitted
	b.open[order.ID] = stored

	event := types.NewOrderEvent(stored, b.eventTime(order.Time), decimal.Zero, "")
	b.mu.Unlock()

	b.emit(OrderStatusChanged(event))

	return true, nil
}

// UpdateOrder replaces the stored copy of an open order.
func (b *BacktestingBrokerage) UpdateOrder(order *types.Order) (bool, error) {
	b.mu.Lock()

	stored, ok := b.open[order.ID]
	if !ok {
		b.mu.Unlock()

		return false, nil
	}

	updated := order.Clone()
	updated.BrokerIDs = stored.BrokerIDs
	updated.Status = types.OrderStatusUpdateSubmitted
	b.open[order.ID] = updated

	event := types.NewOrderEvent(updated, b.eventTime(time.Time{}), decimal.Zero, "")
	b.mu.Unlock()

	b.emit(OrderStatusChanged(event))

	return true, nil
}

// CancelOrder cancels an open order. Orders that already filled cannot be
// canceled.
func (b *BacktestingBrokerage) CancelOrder(order *types.Order) (bool, error) {
	b.mu.Lock()

	stored, ok := b.open[order.ID]
	if !ok {
		b.mu.Unlock()

		return false, nil
	}

	delete(b.open, order.ID)
	stored.Status = types.OrderStatusCanceled

	event := types.NewOrderEvent(stored, b.eventTime(time.Time{}), decimal.Zero, "")
	b.mu.Unlock()

	b.emit(OrderStatusChanged(event))

	return true, nil
}

// GetCashBalance reports the simulated cash book.
func (b *BacktestingBrokerage) GetCashBalance() ([]types.CashAmount, error) {
	var balances []types.CashAmount

	for _, cash := range b.cashBook.All() {
		balances = append(balances, types.CashAmount{Currency: cash.Currency, Amount: cash.Amount, ConversionRate: cash.ConversionRate})
	}

	return balances, nil
}

// OpenOrders returns copies of the orders still working, by id.
func (b *BacktestingBrokerage) OpenOrders() []*types.Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]*types.Order, 0, len(b.open))
	for _, order := range b.open {
		out = append(out, order.Clone())
	}

	slices.SortFunc(out, func(a, c *types.Order) int { return a.ID - c.ID })

	return out
}

// Scan matches every open order against current prices at utcTime.
func (b *BacktestingBrokerage) Scan(utcTime time.Time) {
	b.mu.Lock()

	b.now = utcTime

	ids := make([]int, 0, len(b.open))
	for id := range b.open {
		ids = append(ids, id)
	}

	slices.Sort(ids)

	var events []types.OrderEvent

	for _, id := range ids {
		order := b.open[id]

		security, ok := b.securities.Get(order.Symbol)
		if !ok {
			continue
		}

		price, filled := b.fill.Fill(security, order)
		if !filled {
			continue
		}

		fee := b.model.FeeModel(security).Calculate(order.Quantity, price)
		order.Status = types.OrderStatusFilled
		delete(b.open, id)

		event := types.NewFillEvent(order, utcTime, types.OrderStatusFilled, price, order.Quantity, fee)
		event.FillPriceCurrency = security.Properties.QuoteCurrency
		event.FeeCurrency = security.Properties.QuoteCurrency
		events = append(events, event)

		b.logger.Debug("Filled order",
			zap.Int("order_id", id),
			zap.String("symbol", order.Symbol.String()),
			zap.String("quantity", order.Quantity.String()),
			zap.String("price", price.String()),
		)
	}

	b.mu.Unlock()

	if len(events) > 0 {
		b.emit(OrderStatusChanged(events...))
	}
}

// eventTime returns the later of the last scan time and fallback.
func (b *BacktestingBrokerage) eventTime(fallback time.Time) time.Time {
	if fallback.After(b.now) {
		return fallback
	}

	return b.now
}

// emit queues event behind any backlog and moves what fits into the sink
// without blocking. The rest waits for Flush.
func (b *BacktestingBrokerage) emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.sink == nil {
		return
	}

	b.backlog = append(b.backlog, event)

	b.flushLocked()

	if len(b.backlog) > 0 {
		b.logger.Debug("Event sink full, holding events", zap.Int("backlog", len(b.backlog)))
	}
}

// Flush moves held events into the sink until it is full and reports how
// many it moved.
func (b *BacktestingBrokerage) Flush() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.flushLocked()
}

func (b *BacktestingBrokerage) flushLocked() int {
	moved := 0

	for len(b.backlog) > 0 {
		select {
		case b.sink <- b.backlog[0]:
			b.backlog = b.backlog[1:]
			moved++
		default:
			return moved
		}
	}

	b.backlog = nil

	return moved
}
