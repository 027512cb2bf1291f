package datafeed

import (
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// TimeSlice is all data that became available at one instant, together with
// the security changes effective by then.
type TimeSlice struct {
	// Time is the shared end time of the data, in UTC.
	Time            time.Time
	Data            []types.BaseData
	SecurityChanges *types.SecurityChanges

	byKey map[types.SubscriptionKey][]types.BaseData
}

func newTimeSlice(t time.Time) *TimeSlice {
	return &TimeSlice{
		Time:            t.UTC(),
		Data:            nil,
		SecurityChanges: types.SecurityChangesNone,
		byKey:           make(map[types.SubscriptionKey][]types.BaseData),
	}
}

func (s *TimeSlice) add(key types.SubscriptionKey, point types.BaseData) {
	s.Data = append(s.Data, point)
	s.byKey[key] = append(s.byKey[key], point)
}

// IsEmpty reports whether the slice carries neither data nor changes.
func (s *TimeSlice) IsEmpty() bool {
	return len(s.Data) == 0 && s.SecurityChanges.IsNone()
}

// ForSubscription returns the points the given subscription contributed.
func (s *TimeSlice) ForSubscription(key types.SubscriptionKey) []types.BaseData {
	return s.byKey[key]
}

// Bars returns the trade bars by symbol.
func (s *TimeSlice) Bars() map[types.Symbol]*types.TradeBar {
	bars := make(map[types.Symbol]*types.TradeBar)

	for _, point := range s.Data {
		if bar, ok := point.(*types.TradeBar); ok {
			bars[bar.Symbol] = bar
		}
	}

	return bars
}

// Ticks returns the ticks by symbol, in arrival order.
func (s *TimeSlice) Ticks() map[types.Symbol][]*types.Tick {
	ticks := make(map[types.Symbol][]*types.Tick)

	for _, point := range s.Data {
		if tick, ok := point.(*types.Tick); ok {
			ticks[tick.Symbol] = append(ticks[tick.Symbol], tick)
		}
	}

	return ticks
}

func (s *TimeSlice) Splits() []*types.Split {
	return collect[*types.Split](s.Data)
}

func (s *TimeSlice) Dividends() []*types.Dividend {
	return collect[*types.Dividend](s.Data)
}

func (s *TimeSlice) Delistings() []*types.Delisting {
	return collect[*types.Delisting](s.Data)
}

func (s *TimeSlice) SymbolChanges() []*types.SymbolChangedEvent {
	return collect[*types.SymbolChangedEvent](s.Data)
}

func (s *TimeSlice) Coarse() []*types.CoarseFundamental {
	return collect[*types.CoarseFundamental](s.Data)
}

// Custom returns the custom data points of the given kind.
func (s *TimeSlice) Custom(kind types.DataKind) []*types.CustomData {
	var out []*types.CustomData

	for _, d := range collect[*types.CustomData](s.Data) {
		if d.Kind == kind {
			out = append(out, d)
		}
	}

	return out
}

func collect[T types.BaseData](data []types.BaseData) []T {
	var out []T

	for _, point := range data {
		if typed, ok := point.(T); ok {
			out = append(out, typed)
		}
	}

	return out
}
