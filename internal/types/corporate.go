package types

import "time"

type SplitType string

type DelistingType string

const (
	SplitWarning  SplitType = "WARNING"
	SplitOccurred SplitType = "OCCURRED"
)

const (
	DelistingWarning  DelistingType = "WARNING"
	DelistingDelisted DelistingType = "DELISTED"
)

// Split announces a change in share count. SplitFactor is new/old price, so a
// 2:1 split carries 0.5.
type Split struct {
	Symbol         Symbol    `yaml:"symbol" json:"symbol"`
	Time           time.Time `yaml:"time" json:"time"`
	SplitFactor    float64   `yaml:"split_factor" json:"split_factor"`
	ReferencePrice float64   `yaml:"reference_price" json:"reference_price"`
	Type           SplitType `yaml:"type" json:"type"`
}

func (s *Split) GetSymbol() Symbol     { return s.Symbol }
func (s *Split) GetTime() time.Time    { return s.Time }
func (s *Split) GetEndTime() time.Time { return s.Time }
func (s *Split) GetValue() float64     { return s.SplitFactor }
func (s *Split) GetKind() DataKind     { return DataKindSplit }

func (s *Split) Clone() BaseData {
	c := *s

	return &c
}

// Dividend is a cash distribution per share in raw price terms.
type Dividend struct {
	Symbol         Symbol    `yaml:"symbol" json:"symbol"`
	Time           time.Time `yaml:"time" json:"time"`
	Distribution   float64   `yaml:"distribution" json:"distribution"`
	ReferencePrice float64   `yaml:"reference_price" json:"reference_price"`
}

func (d *Dividend) GetSymbol() Symbol     { return d.Symbol }
func (d *Dividend) GetTime() time.Time    { return d.Time }
func (d *Dividend) GetEndTime() time.Time { return d.Time }
func (d *Dividend) GetValue() float64     { return d.Distribution }
func (d *Dividend) GetKind() DataKind     { return DataKindDividend }

func (d *Dividend) Clone() BaseData {
	c := *d

	return &c
}

// Delisting tells the algorithm a security stops trading.
type Delisting struct {
	Symbol Symbol        `yaml:"symbol" json:"symbol"`
	Time   time.Time     `yaml:"time" json:"time"`
	Price  float64       `yaml:"price" json:"price"`
	Type   DelistingType `yaml:"type" json:"type"`
}

func (d *Delisting) GetSymbol() Symbol     { return d.Symbol }
func (d *Delisting) GetTime() time.Time    { return d.Time }
func (d *Delisting) GetEndTime() time.Time { return d.Time }
func (d *Delisting) GetValue() float64     { return d.Price }
func (d *Delisting) GetKind() DataKind     { return DataKindDelisting }

func (d *Delisting) Clone() BaseData {
	c := *d

	return &c
}

// SymbolChangedEvent reports a ticker rename taken from the map file.
type SymbolChangedEvent struct {
	Symbol    Symbol    `yaml:"symbol" json:"symbol"`
	Time      time.Time `yaml:"time" json:"time"`
	OldTicker string    `yaml:"old_ticker" json:"old_ticker"`
	NewTicker string    `yaml:"new_ticker" json:"new_ticker"`
}

func (e *SymbolChangedEvent) GetSymbol() Symbol     { return e.Symbol }
func (e *SymbolChangedEvent) GetTime() time.Time    { return e.Time }
func (e *SymbolChangedEvent) GetEndTime() time.Time { return e.Time }
func (e *SymbolChangedEvent) GetValue() float64     { return 0 }
func (e *SymbolChangedEvent) GetKind() DataKind     { return DataKindSymbolMap }

func (e *SymbolChangedEvent) Clone() BaseData {
	c := *e

	return &c
}
