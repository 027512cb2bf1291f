package transactions

import (
	"context"
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/shopspring/decimal"
)

// OrderTicket is the caller's handle on a submitted order.
type OrderTicket struct {
	handler *Handler
	submit  *types.SubmitOrderRequest

	mu             sync.Mutex
	status         types.OrderStatus
	updates        []*types.UpdateOrderRequest
	cancel         *types.CancelOrderRequest
	events         []types.OrderEvent
	quantityFilled decimal.Decimal
	averagePrice   decimal.Decimal
	closed         chan struct{}
}

func newOrderTicket(handler *Handler, submit *types.SubmitOrderRequest) *OrderTicket {
	return &OrderTicket{
		handler:        handler,
		submit:         submit,
		mu:             sync.Mutex{},
		status:         types.OrderStatusNew,
		updates:        nil,
		cancel:         nil,
		events:         nil,
		quantityFilled: decimal.Zero,
		averagePrice:   decimal.Zero,
		closed:         make(chan struct{}),
	}
}

func (t *OrderTicket) OrderID() int {
	return t.submit.OrderID
}

func (t *OrderTicket) Symbol() types.Symbol {
	return t.submit.Symbol
}

// SubmitRequest returns the request that created the order. Its response is
// set once the handler processed it.
func (t *OrderTicket) SubmitRequest() *types.SubmitOrderRequest {
	return t.submit
}

func (t *OrderTicket) Status() types.OrderStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.status
}

func (t *OrderTicket) QuantityFilled() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.quantityFilled
}

func (t *OrderTicket) AverageFillPrice() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.averagePrice
}

// OrderEvents returns the events raised for the order so far.
func (t *OrderTicket) OrderEvents() []types.OrderEvent {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]types.OrderEvent(nil), t.events...)
}

// UpdateRequests returns the update requests sent through this ticket.
func (t *OrderTicket) UpdateRequests() []*types.UpdateOrderRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]*types.UpdateOrderRequest(nil), t.updates...)
}

// CancelRequest returns the cancel request, nil if the order was never
// canceled.
func (t *OrderTicket) CancelRequest() *types.CancelOrderRequest {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.cancel
}

// Update queues an update of the order. Wait on the request's Done channel
// for the response.
func (t *OrderTicket) Update(fields types.UpdateOrderFields) *types.UpdateOrderRequest {
	request := types.NewUpdateOrderRequest(t.OrderID(), t.handler.clock.Now(), fields)
	t.handler.UpdateOrder(request)

	return request
}

// Cancel queues a cancellation of the order.
func (t *OrderTicket) Cancel(tag string) *types.CancelOrderRequest {
	request := types.NewCancelOrderRequest(t.OrderID(), t.handler.clock.Now(), tag)
	t.handler.CancelOrder(request)

	return request
}

// Closed is closed once the order reached Filled, Canceled or Invalid.
func (t *OrderTicket) Closed() <-chan struct{} {
	return t.closed
}

// WaitClosed blocks until the order is closed or ctx is done.
func (t *OrderTicket) WaitClosed(ctx context.Context) error {
	select {
	case <-t.closed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *OrderTicket) addUpdate(request *types.UpdateOrderRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.updates = append(t.updates, request)
}

func (t *OrderTicket) setCancel(request *types.CancelOrderRequest) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.cancel = request
}

// apply records an event the handler raised for the order and the order
// status that resulted from it.
func (t *OrderTicket) apply(event types.OrderEvent, status types.OrderStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.events = append(t.events, event)
	t.status = status

	if !event.FillQuantity.IsZero() {
		filled := t.quantityFilled.Add(event.FillQuantity)
		if !filled.IsZero() {
			cost := t.averagePrice.Mul(t.quantityFilled).Add(event.FillPrice.Mul(event.FillQuantity))
			t.averagePrice = cost.Div(filled)
		}

		t.quantityFilled = filled
	}

	if status.IsClosed() {
		select {
		case <-t.closed:
		default:
			close(t.closed)
		}
	}
}
