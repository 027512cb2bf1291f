package types

import "time"

// CoarseFundamental is one row of daily coarse selection data.
type CoarseFundamental struct {
	Symbol             Symbol    `yaml:"symbol" json:"symbol"`
	Time               time.Time `yaml:"time" json:"time"`
	Price              float64   `yaml:"price" json:"price"`
	Volume             float64   `yaml:"volume" json:"volume"`
	DollarVolume       float64   `yaml:"dollar_volume" json:"dollar_volume"`
	HasFundamentalData bool      `yaml:"has_fundamental_data" json:"has_fundamental_data"`
	PriceFactor        float64   `yaml:"price_factor" json:"price_factor"`
	SplitFactor        float64   `yaml:"split_factor" json:"split_factor"`
}

func (c *CoarseFundamental) GetSymbol() Symbol     { return c.Symbol }
func (c *CoarseFundamental) GetTime() time.Time    { return c.Time }
func (c *CoarseFundamental) GetEndTime() time.Time { return c.Time.Add(24 * time.Hour) }
func (c *CoarseFundamental) GetValue() float64     { return c.Price }
func (c *CoarseFundamental) GetKind() DataKind     { return DataKindCoarse }

func (c *CoarseFundamental) Clone() BaseData {
	cp := *c

	return &cp
}

// AdjustedPrice returns the price scaled by both factors.
func (c *CoarseFundamental) AdjustedPrice() float64 {
	factor := c.PriceFactor * c.SplitFactor
	if factor == 0 {
		return c.Price
	}

	return c.Price * factor
}

// FineFundamental holds the expensive per-company fields fetched after coarse selection.
type FineFundamental struct {
	Symbol            Symbol    `yaml:"symbol" json:"symbol"`
	Time              time.Time `yaml:"time" json:"time"`
	CompanyName       string    `yaml:"company_name" json:"company_name"`
	Sector            string    `yaml:"sector" json:"sector"`
	MarketCap         float64   `yaml:"market_cap" json:"market_cap"`
	PERatio           float64   `yaml:"pe_ratio" json:"pe_ratio"`
	EarningsPerShare  float64   `yaml:"earnings_per_share" json:"earnings_per_share"`
	BookValuePerShare float64   `yaml:"book_value_per_share" json:"book_value_per_share"`
}

// Fundamentals is the union of the coarse pricing fields and the fine fields for a symbol.
type Fundamentals struct {
	CoarseFundamental
	Fine FineFundamental `yaml:"fine" json:"fine"`
}

// NewFundamentals merges a coarse row with its fine counterpart.
func NewFundamentals(coarse *CoarseFundamental, fine FineFundamental) *Fundamentals {
	return &Fundamentals{
		CoarseFundamental: *coarse,
		Fine:              fine,
	}
}

func (f *Fundamentals) Clone() BaseData {
	c := *f

	return &c
}
