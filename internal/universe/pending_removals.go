package universe

import (
	"slices"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// OrderProvider answers which orders are still open.
type OrderProvider interface {
	GetOpenOrders(filter func(order *types.Order) bool) []*types.Order
}

// RemovedMember is a member that left the selection but could not be
// removed yet.
type RemovedMember struct {
	Universe string
	Security *securities.Security
	Since    time.Time
}

// PendingRemovalsManager defers removing members that still have open orders
// or holdings until they settle.
type PendingRemovalsManager struct {
	mu      sync.Mutex
	orders  OrderProvider
	pending map[string][]RemovedMember
}

func NewPendingRemovalsManager(orders OrderProvider) *PendingRemovalsManager {
	return &PendingRemovalsManager{
		mu:      sync.Mutex{},
		orders:  orders,
		pending: make(map[string][]RemovedMember),
	}
}

// PendingRemovals returns the deferred members of universe.
func (m *PendingRemovalsManager) PendingRemovals(universe string) []RemovedMember {
	m.mu.Lock()
	defer m.mu.Unlock()

	return slices.Clone(m.pending[universe])
}

// IsPending reports whether symbol waits for removal from universe.
func (m *PendingRemovalsManager) IsPending(universe string, symbol types.Symbol) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.indexOf(universe, symbol) >= 0
}

// TryRemoveMember reports whether member can be removed from u right away.
// Otherwise it is recorded as pending and false is returned.
func (m *PendingRemovalsManager) TryRemoveMember(member *securities.Security, u *Universe, utc time.Time) bool {
	if m.isSafeToRemove(member, u) {
		m.mu.Lock()
		m.drop(u.Name, member.Symbol)
		m.mu.Unlock()

		return true
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.indexOf(u.Name, member.Symbol) < 0 {
		m.pending[u.Name] = append(m.pending[u.Name], RemovedMember{
			Universe: u.Name,
			Security: member,
			Since:    utc,
		})
	}

	return false
}

// CheckPendingRemovals forgets pending members that were selected again and
// returns those that became safe to remove.
func (m *PendingRemovalsManager) CheckPendingRemovals(selected map[types.Symbol]struct{}, u *Universe) []RemovedMember {
	m.mu.Lock()
	candidates := slices.Clone(m.pending[u.Name])
	m.mu.Unlock()

	var ready []RemovedMember

	for _, removed := range candidates {
		symbol := removed.Security.Symbol

		if _, ok := selected[symbol]; ok {
			m.mu.Lock()
			m.drop(u.Name, symbol)
			m.mu.Unlock()

			continue
		}

		if !m.isSafeToRemove(removed.Security, u) {
			continue
		}

		m.mu.Lock()
		m.drop(u.Name, symbol)
		m.mu.Unlock()

		ready = append(ready, removed)
	}

	return ready
}

// isSafeToRemove holds when the security has no open orders and no holdings.
// The underlying of a chain is only safe once none of its members is pinned.
func (m *PendingRemovalsManager) isSafeToRemove(security *securities.Security, u *Universe) bool {
	if security.Invested() {
		return false
	}

	if m.orders != nil {
		symbol := security.Symbol

		open := m.orders.GetOpenOrders(func(order *types.Order) bool {
			return order.Symbol == symbol
		})
		if len(open) > 0 {
			return false
		}
	}

	if u.Binding() == BindingUnderlyingSecurity && security.Symbol == u.Underlying {
		for _, member := range u.Members() {
			if member.Security.Symbol == u.Underlying {
				continue
			}

			if !m.isSafeToRemove(member.Security, u) {
				return false
			}
		}
	}

	return true
}

func (m *PendingRemovalsManager) indexOf(universe string, symbol types.Symbol) int {
	return slices.IndexFunc(m.pending[universe], func(r RemovedMember) bool {
		return r.Security.Symbol == symbol
	})
}

func (m *PendingRemovalsManager) drop(universe string, symbol types.Symbol) {
	if i := m.indexOf(universe, symbol); i >= 0 {
		m.pending[universe] = slices.Delete(m.pending[universe], i, i+1)
	}

	if len(m.pending[universe]) == 0 {
		delete(m.pending, universe)
	}
}
