package transactions

import (
	"slices"
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// orderBook stores every order the handler has seen, keyed by id. The
// handler is the only writer; readers get clones.
type orderBook struct {
	mu       sync.RWMutex
	open     map[int]*types.Order
	complete map[int]*types.Order
	tickets  map[int]*OrderTicket
}

func newOrderBook() *orderBook {
	return &orderBook{
		mu:       sync.RWMutex{},
		open:     make(map[int]*types.Order),
		complete: make(map[int]*types.Order),
		tickets:  make(map[int]*OrderTicket),
	}
}

func (b *orderBook) add(order *types.Order, ticket *OrderTicket) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.open[order.ID] = order
	b.tickets[order.ID] = ticket
}

// mutate runs fn on the stored order. Closed orders are moved to the
// complete map once fn returns.
func (b *orderBook) mutate(id int, fn func(order *types.Order)) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	order, ok := b.open[id]
	if !ok {
		return false
	}

	fn(order)

	if order.Status.IsClosed() {
		delete(b.open, id)
		b.complete[id] = order
	}

	return true
}

// openOrder returns a clone of an open order.
func (b *orderBook) openOrder(id int) (*types.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	order, ok := b.open[id]
	if !ok {
		return nil, false
	}

	return order.Clone(), true
}

func (b *orderBook) get(id int) (*types.Order, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if order, ok := b.open[id]; ok {
		return order.Clone(), true
	}

	if order, ok := b.complete[id]; ok {
		return order.Clone(), true
	}

	return nil, false
}

func (b *orderBook) ticket(id int) (*OrderTicket, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	ticket, ok := b.tickets[id]

	return ticket, ok
}

// list returns clones of the orders accepted by filter, by id. A nil
// filter accepts every order.
func (b *orderBook) list(includeClosed bool, filter func(*types.Order) bool) []*types.Order {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*types.Order, 0, len(b.open))

	collect := func(orders map[int]*types.Order) {
		for _, order := range orders {
			if filter == nil || filter(order) {
				out = append(out, order.Clone())
			}
		}
	}

	collect(b.open)

	if includeClosed {
		collect(b.complete)
	}

	slices.SortFunc(out, func(a, c *types.Order) int { return a.ID - c.ID })

	return out
}

func (b *orderBook) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.open) + len(b.complete)
}
