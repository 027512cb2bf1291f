package source

import (
	"sync"

	"github.com/rxtech-lab/argo-engine/internal/types"
	"github.com/rxtech-lab/argo-engine/pkg/errors"
)

// Registry maps data kinds to their factories. It is filled once at startup
// and read by every subscription reader.
type Registry struct {
	mu        sync.RWMutex
	factories map[types.DataKind]Factory
}

func NewRegistry() *Registry {
	return &Registry{
		mu:        sync.RWMutex{},
		factories: make(map[types.DataKind]Factory),
	}
}

// NewDefaultRegistry registers the built-in kinds rooted at dataRoot, which
// may be a directory or an http(s) base URL.
func NewDefaultRegistry(dataRoot string) *Registry {
	r := NewRegistry()
	r.Register(types.DataKindTradeBar, &TradeBarFactory{Root: dataRoot, Format: FormatCSV})
	r.Register(types.DataKindTick, &TickFactory{Root: dataRoot})
	r.Register(types.DataKindCoarse, &CoarseFactory{Root: dataRoot})
	r.Register(types.DataKindCustom, &CustomFactory{Root: dataRoot, Kind: types.DataKindCustom})

	return r
}

// Register adds or replaces the factory for kind.
func (r *Registry) Register(kind types.DataKind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[kind] = factory
}

// Lookup returns the factory for kind.
func (r *Registry) Lookup(kind types.DataKind) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[kind]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeUnknownDataKind, "no factory registered for data kind %q", kind)
	}

	return factory, nil
}
