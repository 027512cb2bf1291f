package types

import (
	"fmt"
	"time"
)

type Resolution string

type DataNormalizationMode string

// DataKind names a registered data type such as "tradebar" or a custom kind.
type DataKind string

const (
	ResolutionTick   Resolution = "TICK"
	ResolutionSecond Resolution = "SECOND"
	ResolutionMinute Resolution = "MINUTE"
	ResolutionHour   Resolution = "HOUR"
	ResolutionDaily  Resolution = "DAILY"
)

const (
	NormalizationRaw           DataNormalizationMode = "RAW"
	NormalizationAdjusted      DataNormalizationMode = "ADJUSTED"
	NormalizationSplitAdjusted DataNormalizationMode = "SPLIT_ADJUSTED"
	NormalizationTotalReturn   DataNormalizationMode = "TOTAL_RETURN"
)

const (
	DataKindTradeBar  DataKind = "tradebar"
	DataKindTick      DataKind = "tick"
	DataKindCoarse    DataKind = "coarse"
	DataKindExchange  DataKind = "exchange_rate"
	DataKindDividend  DataKind = "dividend"
	DataKindSplit     DataKind = "split"
	DataKindDelisting DataKind = "delisting"
	DataKindSymbolMap DataKind = "symbol_changed"
	DataKindCustom    DataKind = "custom"
)

// Duration returns the bar period of the resolution. Ticks have no period.
func (r Resolution) Duration() time.Duration {
	switch r {
	case ResolutionTick:
		return 0
	case ResolutionSecond:
		return time.Second
	case ResolutionMinute:
		return time.Minute
	case ResolutionHour:
		return time.Hour
	case ResolutionDaily:
		return 24 * time.Hour
	default:
		return 0
	}
}

// SubscriptionKey identifies a subscription: one per (symbol, kind, resolution).
type SubscriptionKey struct {
	Symbol     Symbol
	Kind       DataKind
	Resolution Resolution
}

func (k SubscriptionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.Symbol, k.Kind, k.Resolution)
}

// SubscriptionDataConfig describes one data subscription.
type SubscriptionDataConfig struct {
	Symbol            Symbol                `yaml:"symbol" json:"symbol" validate:"required"`
	Kind              DataKind              `yaml:"kind" json:"kind" validate:"required"`
	Resolution        Resolution            `yaml:"resolution" json:"resolution" validate:"required,oneof=TICK SECOND MINUTE HOUR DAILY"`
	ExchangeTimeZone  *time.Location        `yaml:"-" json:"-"`
	DataTimeZone      *time.Location        `yaml:"-" json:"-"`
	NormalizationMode DataNormalizationMode `yaml:"normalization_mode" json:"normalization_mode" validate:"omitempty,oneof=RAW ADJUSTED SPLIT_ADJUSTED TOTAL_RETURN"`
	// IsInternalFeed marks subscriptions the engine needs (currency conversion,
	// underlying prices) but the algorithm did not ask for.
	IsInternalFeed bool `yaml:"is_internal_feed" json:"is_internal_feed"`
	// IsUniverseSubscription marks the selection data feed of a universe.
	IsUniverseSubscription bool `yaml:"is_universe_subscription" json:"is_universe_subscription"`
	IsCustomData           bool `yaml:"is_custom_data" json:"is_custom_data"`
	// MappedTicker is the ticker used for file lookups; it follows renames.
	MappedTicker string `yaml:"mapped_ticker" json:"mapped_ticker"`
}

// NewSubscriptionDataConfig builds a config with both time zones set to the exchange zone.
func NewSubscriptionDataConfig(symbol Symbol, kind DataKind, resolution Resolution, exchangeTZ *time.Location) SubscriptionDataConfig {
	if exchangeTZ == nil {
		exchangeTZ = time.UTC
	}

	return SubscriptionDataConfig{
		Symbol:                 symbol,
		Kind:                   kind,
		Resolution:             resolution,
		ExchangeTimeZone:       exchangeTZ,
		DataTimeZone:           exchangeTZ,
		NormalizationMode:      NormalizationAdjusted,
		IsInternalFeed:         false,
		IsUniverseSubscription: false,
		IsCustomData:           false,
		MappedTicker:           symbol.Ticker,
	}
}

// Key returns the subscription key.
func (c SubscriptionDataConfig) Key() SubscriptionKey {
	return SubscriptionKey{Symbol: c.Symbol, Kind: c.Kind, Resolution: c.Resolution}
}

// ExchangeLocation returns the exchange time zone, defaulting to UTC.
func (c SubscriptionDataConfig) ExchangeLocation() *time.Location {
	if c.ExchangeTimeZone == nil {
		return time.UTC
	}

	return c.ExchangeTimeZone
}

// DataLocation returns the time zone the raw data is stamped in, defaulting to the exchange zone.
func (c SubscriptionDataConfig) DataLocation() *time.Location {
	if c.DataTimeZone == nil {
		return c.ExchangeLocation()
	}

	return c.DataTimeZone
}

// TickerForLookup returns the mapped ticker if set, else the symbol ticker.
func (c SubscriptionDataConfig) TickerForLookup() string {
	if c.MappedTicker != "" {
		return c.MappedTicker
	}

	return c.Symbol.Ticker
}

// SubscriptionRequest asks the data manager to add a subscription on behalf of a universe.
type SubscriptionRequest struct {
	Config   SubscriptionDataConfig
	Universe string
	StartUTC time.Time
	EndUTC   time.Time
}

// IsUniverseSubscription reports whether the request is for universe selection data.
func (r SubscriptionRequest) IsUniverseSubscription() bool {
	return r.Config.IsUniverseSubscription
}
