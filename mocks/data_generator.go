package mocks

import (
	"encoding/csv"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-engine/internal/types"
)

// DataGenerator generates realistic trade bars for tests and benchmarks.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator creates a new DataGenerator with the given seed.
// Use a fixed seed for reproducible results in tests.
func NewDataGenerator(seed int64) *DataGenerator {
	return &DataGenerator{
		rng: rand.New(rand.NewSource(seed)),
	}
}

// GeneratorConfig configures how bars are generated.
type GeneratorConfig struct {
	Symbol types.Symbol
	// StartTime is the start of the first bar
	StartTime time.Time
	// Interval is the bar period
	Interval time.Duration
	// Count is the number of bars to generate
	Count int
	// InitialPrice is the starting price
	InitialPrice float64
	// Volatility controls price movement (0.01 = 1% per bar)
	Volatility float64
	// Trend is the drift over the whole series
	Trend float64
	// VolumeBase is the average volume per bar
	VolumeBase float64
	// VolumeVariance is the variance in volume (0.0 to 1.0)
	VolumeVariance float64
	// SessionOnly skips bars outside 09:30-16:00 New York on weekdays.
	SessionOnly bool
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() GeneratorConfig {
	return GeneratorConfig{
		Symbol:         types.NewEquity("TEST"),
		StartTime:      time.Date(2024, 1, 2, 14, 30, 0, 0, time.UTC),
		Interval:       time.Minute,
		Count:          10000,
		InitialPrice:   100.0,
		Volatility:     0.002,
		Trend:          0.0,
		VolumeBase:     10000,
		VolumeVariance: 0.3,
		SessionOnly:    false,
	}
}

var newYork = mustLoadLocation("America/New_York")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}

	return loc
}

func inSession(t time.Time) bool {
	local := t.In(newYork)
	if local.Weekday() == time.Saturday || local.Weekday() == time.Sunday {
		return false
	}

	minutes := local.Hour()*60 + local.Minute()

	return minutes >= 9*60+30 && minutes < 16*60
}

// Generate creates bars following a geometric Brownian motion.
func (g *DataGenerator) Generate(config GeneratorConfig) []*types.TradeBar {
	data := make([]*types.TradeBar, 0, config.Count)
	currentPrice := config.InitialPrice
	currentTime := config.StartTime

	for len(data) < config.Count {
		if config.SessionOnly && !inSession(currentTime) {
			currentTime = currentTime.Add(config.Interval)

			continue
		}

		open := currentPrice

		// Box-Muller transform for a normal draw
		u1 := g.rng.Float64()
		u2 := g.rng.Float64()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)

		drift := config.Trend / float64(config.Count)

		closePrice := open * (1 + config.Volatility*z + drift)
		if closePrice <= 0 {
			closePrice = open * 0.99
		}

		highExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)
		lowExtension := math.Abs(g.rng.Float64() * config.Volatility * open * 0.5)

		high := math.Max(open, closePrice) + highExtension

		low := math.Min(open, closePrice) - lowExtension
		if low <= 0 {
			low = math.Min(open, closePrice) * 0.99
		}

		volume := config.VolumeBase * (1.0 + (g.rng.Float64()*2-1)*config.VolumeVariance)
		if volume < 0 {
			volume = config.VolumeBase * 0.1
		}

		data = append(data, &types.TradeBar{
			Symbol: config.Symbol,
			Time:   currentTime,
			Period: config.Interval,
			Open:   roundToDecimals(open, 4),
			High:   roundToDecimals(high, 4),
			Low:    roundToDecimals(low, 4),
			Close:  roundToDecimals(closePrice, 4),
			Volume: roundToDecimals(volume, 0),
		})

		currentPrice = closePrice
		currentTime = currentTime.Add(config.Interval)
	}

	return data
}

// GenerateMultiSymbol generates bars for several symbols.
func (g *DataGenerator) GenerateMultiSymbol(symbols []types.Symbol, baseConfig GeneratorConfig) []*types.TradeBar {
	var allData []*types.TradeBar

	for _, symbol := range symbols {
		config := baseConfig
		config.Symbol = symbol
		// vary initial price and volatility per symbol
		config.InitialPrice = baseConfig.InitialPrice * (0.8 + g.rng.Float64()*0.4)
		config.Volatility = baseConfig.Volatility * (0.8 + g.rng.Float64()*0.4)

		allData = append(allData, g.Generate(config)...)
	}

	return allData
}

// Generate10K generates 10,000 minute bars with default settings.
func Generate10K(ticker string) []*types.TradeBar {
	gen := NewDataGenerator(42)
	config := DefaultConfig()
	config.Symbol = types.NewEquity(ticker)
	config.Count = 10000

	return gen.Generate(config)
}

// WriteMinuteFiles writes bars into daily trade files under root using the
// <type>/<market>/minute/<ticker>/<yyyyMMdd>_trade.csv layout. Times are
// written as milliseconds since midnight in loc. It returns the written paths.
func WriteMinuteFiles(root string, bars []*types.TradeBar, loc *time.Location) ([]string, error) {
	type fileKey struct {
		ticker string
		day    string
	}

	rows := make(map[fileKey][][]string)

	var order []fileKey

	for _, bar := range bars {
		local := bar.Time.In(loc)
		key := fileKey{ticker: strings.ToLower(bar.Symbol.Ticker), day: local.Format("20060102")}

		if _, ok := rows[key]; !ok {
			order = append(order, key)
		}

		midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		rows[key] = append(rows[key], []string{
			strconv.FormatInt(local.Sub(midnight).Milliseconds(), 10),
			formatFloat(bar.Open),
			formatFloat(bar.High),
			formatFloat(bar.Low),
			formatFloat(bar.Close),
			formatFloat(bar.Volume),
		})
	}

	paths := make([]string, 0, len(order))

	for _, key := range order {
		symbol := bars[0].Symbol
		dir := filepath.Join(root, strings.ToLower(string(symbol.SecurityType)), symbol.Market, "minute", key.ticker)

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}

		path := filepath.Join(dir, key.day+"_trade.csv")
		if err := writeCSV(path, rows[key]); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", path, err)
		}

		paths = append(paths, path)
	}

	return paths, nil
}

func writeCSV(path string, records [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		return err
	}

	return f.Sync()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// roundToDecimals rounds a float64 to the specified number of decimal places.
func roundToDecimals(val float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))

	return math.Round(val*pow) / pow
}
