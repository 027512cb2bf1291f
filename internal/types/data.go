package types

import (
	"time"
)

// BaseData is a single point of market data.
type BaseData interface {
	GetSymbol() Symbol
	// GetTime returns the start of the period the point covers.
	GetTime() time.Time
	// GetEndTime returns the moment the point became available.
	GetEndTime() time.Time
	// GetValue returns the representative price of the point.
	GetValue() float64
	GetKind() DataKind
	Clone() BaseData
}

// Scalable is implemented by data points whose price fields can be rewritten
// by normalization.
type Scalable interface {
	BaseData
	Scale(fn func(price float64) float64)
}

// TradeBar is an OHLCV bar.
type TradeBar struct {
	Symbol Symbol        `yaml:"symbol" json:"symbol" csv:"symbol"`
	Time   time.Time     `yaml:"time" json:"time" csv:"time"`
	Period time.Duration `yaml:"period" json:"period" csv:"period"`
	Open   float64       `yaml:"open" json:"open" csv:"open"`
	High   float64       `yaml:"high" json:"high" csv:"high"`
	Low    float64       `yaml:"low" json:"low" csv:"low"`
	Close  float64       `yaml:"close" json:"close" csv:"close"`
	Volume float64       `yaml:"volume" json:"volume" csv:"volume"`
}

var _ Scalable = (*TradeBar)(nil)

func (b *TradeBar) GetSymbol() Symbol     { return b.Symbol }
func (b *TradeBar) GetTime() time.Time    { return b.Time }
func (b *TradeBar) GetEndTime() time.Time { return b.Time.Add(b.Period) }
func (b *TradeBar) GetValue() float64     { return b.Close }
func (b *TradeBar) GetKind() DataKind     { return DataKindTradeBar }

func (b *TradeBar) Clone() BaseData {
	c := *b

	return &c
}

// Scale rewrites the four price fields.
func (b *TradeBar) Scale(fn func(float64) float64) {
	b.Open = fn(b.Open)
	b.High = fn(b.High)
	b.Low = fn(b.Low)
	b.Close = fn(b.Close)
}

// Tick is a single trade or quote print.
type Tick struct {
	Symbol   Symbol    `yaml:"symbol" json:"symbol"`
	Time     time.Time `yaml:"time" json:"time"`
	Price    float64   `yaml:"price" json:"price"`
	Quantity float64   `yaml:"quantity" json:"quantity"`
	BidPrice float64   `yaml:"bid_price" json:"bid_price"`
	AskPrice float64   `yaml:"ask_price" json:"ask_price"`
}

var _ Scalable = (*Tick)(nil)

func (t *Tick) GetSymbol() Symbol     { return t.Symbol }
func (t *Tick) GetTime() time.Time    { return t.Time }
func (t *Tick) GetEndTime() time.Time { return t.Time }
func (t *Tick) GetValue() float64     { return t.Price }
func (t *Tick) GetKind() DataKind     { return DataKindTick }

func (t *Tick) Clone() BaseData {
	c := *t

	return &c
}

func (t *Tick) Scale(fn func(float64) float64) {
	t.Price = fn(t.Price)
	if t.BidPrice != 0 {
		t.BidPrice = fn(t.BidPrice)
	}

	if t.AskPrice != 0 {
		t.AskPrice = fn(t.AskPrice)
	}
}

// CustomData carries user-defined values. Custom data may repeat end times.
type CustomData struct {
	Symbol  Symbol             `yaml:"symbol" json:"symbol"`
	Kind    DataKind           `yaml:"kind" json:"kind"`
	Time    time.Time          `yaml:"time" json:"time"`
	EndTime time.Time          `yaml:"end_time" json:"end_time"`
	Value   float64            `yaml:"value" json:"value"`
	Fields  map[string]float64 `yaml:"fields" json:"fields"`
}

func (d *CustomData) GetSymbol() Symbol  { return d.Symbol }
func (d *CustomData) GetTime() time.Time { return d.Time }
func (d *CustomData) GetValue() float64  { return d.Value }
func (d *CustomData) GetKind() DataKind  { return d.Kind }

func (d *CustomData) GetEndTime() time.Time {
	if d.EndTime.IsZero() {
		return d.Time
	}

	return d.EndTime
}

func (d *CustomData) Clone() BaseData {
	c := *d
	if d.Fields != nil {
		c.Fields = make(map[string]float64, len(d.Fields))
		for k, v := range d.Fields {
			c.Fields[k] = v
		}
	}

	return &c
}
