// Package universe decides which securities are in scope. A Universe pairs a
// selection rule with its live membership; the SelectionEngine reconciles a
// selection result against the securities, their data subscriptions and the
// members that still have open orders.
package universe

import (
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/securities"
	"github.com/rxtech-lab/argo-engine/internal/types"
)

// Kind tags the selection rule of a universe.
type Kind string

const (
	KindUserDefined  Kind = "user_defined"
	KindCoarse       Kind = "coarse"
	KindCoarseFine   Kind = "coarse_fine"
	KindOptionChain  Kind = "option_chain"
	KindFuturesChain Kind = "futures_chain"
)

// UnderlyingBinding says how a universe relates to the security its members
// derive from.
type UnderlyingBinding string

const (
	// BindingNone means members stand on their own.
	BindingNone UnderlyingBinding = "none"
	// BindingUnderlyingSecurity keeps the underlying selected and subscribed
	// while any contract of the chain is a member.
	BindingUnderlyingSecurity UnderlyingBinding = "underlying_security"
	// BindingCanonical means contracts share a canonical root that is not a
	// tradable security itself.
	BindingCanonical UnderlyingBinding = "canonical"
)

// Selection is the result of a selection rule. Use Unchanged when the rule
// wants to keep the current members.
type Selection struct {
	Symbols   []types.Symbol
	unchanged bool
}

// Unchanged keeps the current membership and makes ApplyUniverseSelection
// return types.SecurityChangesNone.
var Unchanged = Selection{Symbols: nil, unchanged: true}

// Select builds a selection from symbols.
func Select(symbols ...types.Symbol) Selection {
	return Selection{Symbols: symbols, unchanged: false}
}

func (s Selection) IsUnchanged() bool {
	return s.unchanged
}

// SelectionData is the input of one universe evaluation.
type SelectionData struct {
	Coarse []*types.CoarseFundamental
	// Contracts lists the tradable contracts of a chain universe.
	Contracts []types.Symbol
}

type SymbolSelector func(utc time.Time) Selection

type CoarseSelector func(utc time.Time, coarse []*types.CoarseFundamental) Selection

type FineSelector func(utc time.Time, fundamentals []*types.Fundamentals) Selection

type ChainFilter func(utc time.Time, underlying types.Symbol, contracts []types.Symbol) Selection

// Settings apply to the subscriptions of every member.
type Settings struct {
	Resolution        types.Resolution            `yaml:"resolution" json:"resolution" validate:"omitempty,oneof=TICK SECOND MINUTE HOUR DAILY"`
	NormalizationMode types.DataNormalizationMode `yaml:"normalization_mode" json:"normalization_mode" validate:"omitempty,oneof=RAW ADJUSTED SPLIT_ADJUSTED TOTAL_RETURN"`
	// MinimumTimeInUniverse keeps a member at least this long after it was added.
	MinimumTimeInUniverse time.Duration `yaml:"minimum_time_in_universe" json:"minimum_time_in_universe"`
}

// DefaultSettings subscribes members to adjusted minute bars.
func DefaultSettings() Settings {
	return Settings{
		Resolution:            types.ResolutionMinute,
		NormalizationMode:     types.NormalizationAdjusted,
		MinimumTimeInUniverse: 0,
	}
}

// Member is a security currently in a universe.
type Member struct {
	Security      *securities.Security
	Added         time.Time
	Subscriptions []types.SubscriptionKey
}

// Universe is a named selection rule with its live membership. Membership
// only changes through SelectionEngine.ApplyUniverseSelection.
type Universe struct {
	Name     string
	Kind     Kind
	Settings Settings
	// DataConfig is the selection data subscription; zero for universes
	// that need no selection data.
	DataConfig types.SubscriptionDataConfig
	Underlying types.Symbol

	symbols      []types.Symbol
	selectUser   SymbolSelector
	selectCoarse CoarseSelector
	selectFine   FineSelector
	filterChain  ChainFilter

	mu      sync.RWMutex
	members map[types.Symbol]*Member
}

func newUniverse(name string, kind Kind, settings Settings) *Universe {
	if settings.Resolution == "" {
		settings.Resolution = types.ResolutionMinute
	}

	if settings.NormalizationMode == "" {
		settings.NormalizationMode = types.NormalizationAdjusted
	}

	//nolint:exhaustruct
	return &Universe{
		Name:     name,
		Kind:     kind,
		Settings: settings,
		members:  make(map[types.Symbol]*Member),
	}
}

// NewUserDefinedUniverse selects a fixed set of symbols. With a selector the
// set is recomputed on every evaluation instead.
func NewUserDefinedUniverse(name string, settings Settings, selector SymbolSelector, symbols ...types.Symbol) *Universe {
	u := newUniverse(name, KindUserDefined, settings)
	u.symbols = symbols
	u.selectUser = selector

	return u
}

// CoarseDataConfig is the daily coarse data subscription of market.
func CoarseDataConfig(market string) types.SubscriptionDataConfig {
	symbol := types.NewSymbol("universe-coarse-"+market, types.SecurityTypeBase, market)
	config := types.NewSubscriptionDataConfig(symbol, types.DataKindCoarse, types.ResolutionDaily, nil)
	config.NormalizationMode = types.NormalizationRaw
	config.IsUniverseSubscription = true

	return config
}

// NewCoarseUniverse selects from the daily coarse data of market.
func NewCoarseUniverse(name, market string, settings Settings, selector CoarseSelector) *Universe {
	u := newUniverse(name, KindCoarse, settings)
	u.DataConfig = CoarseDataConfig(market)
	u.selectCoarse = selector

	return u
}

// NewCoarseFineUniverse runs coarse first, then fine on the coarse survivors.
func NewCoarseFineUniverse(name, market string, settings Settings, coarse CoarseSelector, fine FineSelector) *Universe {
	u := NewCoarseUniverse(name, market, settings, coarse)
	u.Kind = KindCoarseFine
	u.selectFine = fine

	return u
}

// NewOptionChainUniverse filters the listed contracts of underlying.
func NewOptionChainUniverse(underlying types.Symbol, settings Settings, filter ChainFilter) *Universe {
	u := newUniverse("options-"+underlying.String(), KindOptionChain, settings)
	u.Underlying = underlying
	u.filterChain = filter

	return u
}

// NewFuturesChainUniverse filters the listed contracts of the future root.
func NewFuturesChainUniverse(root types.Symbol, settings Settings, filter ChainFilter) *Universe {
	u := newUniverse("futures-"+root.String(), KindFuturesChain, settings)
	u.Underlying = root
	u.filterChain = filter

	return u
}

// Binding returns the underlying binding of the universe kind.
func (u *Universe) Binding() UnderlyingBinding {
	switch u.Kind {
	case KindOptionChain:
		return BindingUnderlyingSecurity
	case KindFuturesChain:
		return BindingCanonical
	case KindUserDefined, KindCoarse, KindCoarseFine:
		return BindingNone
	default:
		return BindingNone
	}
}

// HasSelectionData reports whether the universe is driven by a data feed.
func (u *Universe) HasSelectionData() bool {
	return u.DataConfig.Kind != ""
}

// AddSymbols extends the fixed symbols of a user-defined universe. It
// reports whether any symbol was new.
func (u *Universe) AddSymbols(symbols ...types.Symbol) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	added := false

	for _, symbol := range symbols {
		if !slices.Contains(u.symbols, symbol) {
			u.symbols = append(u.symbols, symbol)
			added = true
		}
	}

	return added
}

// RemoveSymbol drops symbol from the fixed symbols. The member leaves on the
// next evaluation.
func (u *Universe) RemoveSymbol(symbol types.Symbol) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	i := slices.Index(u.symbols, symbol)
	if i < 0 {
		return false
	}

	u.symbols = slices.Delete(u.symbols, i, i+1)

	return true
}

func (u *Universe) fixedSymbols() []types.Symbol {
	u.mu.RLock()
	defer u.mu.RUnlock()

	return slices.Clone(u.symbols)
}

// CanRemoveMember is the universe's veto on removing symbol at utc.
func (u *Universe) CanRemoveMember(utc time.Time, symbol types.Symbol) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	member, ok := u.members[symbol]
	if !ok {
		return false
	}

	if minimum := u.Settings.MinimumTimeInUniverse; minimum > 0 && utc.Sub(member.Added) < minimum {
		return false
	}

	switch u.Binding() {
	case BindingUnderlyingSecurity:
		if symbol != u.Underlying {
			return true
		}

		// the underlying goes last
		for other := range u.members {
			if other != u.Underlying {
				return false
			}
		}

		return true
	case BindingCanonical, BindingNone:
		return true
	default:
		return true
	}
}

// Members returns the current members sorted by symbol.
func (u *Universe) Members() []*Member {
	u.mu.RLock()
	defer u.mu.RUnlock()

	symbols := slices.SortedFunc(maps.Keys(u.members), compareSymbols)

	out := make([]*Member, 0, len(symbols))
	for _, symbol := range symbols {
		out = append(out, u.members[symbol])
	}

	return out
}

// Contains reports whether symbol is a member.
func (u *Universe) Contains(symbol types.Symbol) bool {
	u.mu.RLock()
	defer u.mu.RUnlock()

	_, ok := u.members[symbol]

	return ok
}

func (u *Universe) member(symbol types.Symbol) (*Member, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	member, ok := u.members[symbol]

	return member, ok
}

func (u *Universe) addMember(member *Member) bool {
	u.mu.Lock()
	defer u.mu.Unlock()

	symbol := member.Security.Symbol
	if _, ok := u.members[symbol]; ok {
		return false
	}

	u.members[symbol] = member

	return true
}

func (u *Universe) removeMember(symbol types.Symbol) (*Member, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()

	member, ok := u.members[symbol]
	if ok {
		delete(u.members, symbol)
	}

	return member, ok
}

// subscriptionConfig is the data subscription of a member.
func (u *Universe) subscriptionConfig(symbol types.Symbol) types.SubscriptionDataConfig {
	kind := types.DataKindTradeBar
	if u.Settings.Resolution == types.ResolutionTick {
		kind = types.DataKindTick
	}

	config := types.NewSubscriptionDataConfig(symbol, kind, u.Settings.Resolution, nil)
	// the exchange zone is resolved from the market calendar
	config.ExchangeTimeZone = nil
	config.DataTimeZone = nil
	config.NormalizationMode = u.Settings.NormalizationMode

	if symbol.SecurityType == types.SecurityTypeForex || symbol.SecurityType == types.SecurityTypeCrypto {
		config.NormalizationMode = types.NormalizationRaw
	}

	return config
}

func compareSymbols(a, b types.Symbol) int {
	return strings.Compare(a.String(), b.String())
}
