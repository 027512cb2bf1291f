package securities

import (
	"slices"
	"strings"
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// PropertiesFunc resolves the trading rules of a symbol.
type PropertiesFunc func(symbol types.Symbol) SymbolProperties

// Manager holds every security the algorithm has seen. Securities are never
// dropped so holdings and history survive universe removals.
type Manager struct {
	mu         sync.RWMutex
	securities map[types.Symbol]*Security
	properties PropertiesFunc
}

func NewManager(properties PropertiesFunc) *Manager {
	if properties == nil {
		properties = DefaultSymbolProperties
	}

	return &Manager{
		mu:         sync.RWMutex{},
		securities: make(map[types.Symbol]*Security),
		properties: properties,
	}
}

// Add returns the security of symbol, creating it on first use. The second
// result reports whether it was created.
func (m *Manager) Add(symbol types.Symbol) (*Security, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if security, ok := m.securities[symbol]; ok {
		return security, false
	}

	security := NewSecurity(symbol, m.properties(symbol))
	m.securities[symbol] = security

	return security, true
}

func (m *Manager) Get(symbol types.Symbol) (*Security, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	security, ok := m.securities[symbol]

	return security, ok
}

func (m *Manager) Contains(symbol types.Symbol) bool {
	_, ok := m.Get(symbol)

	return ok
}

// All returns the securities sorted by symbol.
func (m *Manager) All() []*Security {
	m.mu.RLock()
	out := make([]*Security, 0, len(m.securities))
	for _, security := range m.securities {
		out = append(out, security)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b *Security) int {
		return strings.Compare(a.Symbol.String(), b.Symbol.String())
	})

	return out
}

// Update pushes the latest prices of points into their securities.
func (m *Manager) Update(points []types.BaseData) {
	for _, point := range points {
		if security, ok := m.Get(point.GetSymbol()); ok {
			security.Update(point)
		}
	}
}
